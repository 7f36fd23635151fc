package clicmds

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/vscan"
)

func FileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "path",
			Usage:    "file to scan",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "config to use",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "pattern database (json or yaml), defaults to the bundled database",
			Value: "",
		},
		&cli.StringSliceFlag{
			Name:  "remote-keywords",
			Usage: "search the NVD for these keywords instead of matching patterns",
		},
		&cli.BoolFlag{
			Name:  "static",
			Usage: "also run static analysis",
			Value: false,
		},
	}
}

// fileScanConfig applies the file command's flags over the loaded config
func fileScanConfig(ctx *cli.Context) (*vscan.Config, error) {
	cfg, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.String("db") != "" {
		cfg.CVE.DatabasePath = ctx.String("db")
	}
	if keywords := ctx.StringSlice("remote-keywords"); len(keywords) > 0 {
		cfg.CVE.Remote = true
		cfg.CVE.RemoteKeywords = keywords
	}
	if ctx.Bool("static") {
		cfg.Static.Enabled = true
	}
	return cfg, nil
}

// FileScan matches a file against the pattern database
func FileScan(ctx *cli.Context) error {
	cfg, err := fileScanConfig(ctx)
	if err != nil {
		return err
	}

	scanContext, cancel := signalContext()
	defer cancel()

	svc, err := newService(scanContext, ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.ScanFile(scanContext, ctx.String("path"))
	if err != nil {
		log.Error().Err(err).Msg("file scan failed")
		return err
	}
	return printResults(ctx, result)
}

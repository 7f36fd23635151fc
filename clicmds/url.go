package clicmds

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/vscan"
)

func URLFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Usage:    "target to scan",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "quick or thorough",
			Value: string(vscan.ModeThorough),
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "config to use",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "path to the zap jar or start script",
			Value: "",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "local port for the engine api",
			Value: 0,
		},
	}
}

func urlScanConfig(ctx *cli.Context) (*vscan.Config, vscan.Mode, error) {
	mode, err := vscan.ParseMode(ctx.String("mode"))
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, "", err
	}
	if ctx.String("engine") != "" {
		cfg.Engine.Artifact = ctx.String("engine")
	}
	if ctx.Int("port") != 0 {
		cfg.Engine.Port = ctx.Int("port")
	}
	return cfg, mode, nil
}

// URLScan runs the engine against a target
func URLScan(ctx *cli.Context) error {
	cfg, mode, err := urlScanConfig(ctx)
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

	log.Info().Str("url", ctx.String("url")).Str("mode", string(mode)).Msg("Starting vulnscan")
	result, err := svc.ScanURL(scanContext, ctx.String("url"), mode)
	if err != nil {
		log.Error().Err(err).Msg("url scan failed")
		return err
	}
	return printResults(ctx, result)
}

package clicmds

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/metrics"
	"gitlab.com/vulnscan/scanner"
	"gitlab.com/vulnscan/scanner/report"
	"gitlab.com/vulnscan/store"
	"gitlab.com/vulnscan/vscan"
)

// GlobalFlags shared by every command
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "datadir",
			Usage: "data directory for stored results",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "debug, info, warn or error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "report format, text or json",
			Value: "text",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve prometheus metrics on this address, e.g. :9090",
			Value: "",
		},
	}
}

// SetupLogging for the console
func SetupLogging(ctx *cli.Context) error {
	level, err := zerolog.ParseLevel(ctx.String("loglevel"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// signalContext is cancelled on ctrl-c so running scans can release the engine
func signalContext() (context.Context, context.CancelFunc) {
	scanContext, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			log.Info().Msg("Ctrl-C Pressed, shutting down")
			cancel()
		case <-scanContext.Done():
		}
		signal.Stop(c)
	}()
	return scanContext, cancel
}

// newService wires the service with a result store under datadir and optional metrics
func newService(scanContext context.Context, ctx *cli.Context, cfg *vscan.Config) (*scanner.Service, error) {
	if ctx.String("datadir") != "" {
		cfg.DataPath = ctx.String("datadir")
	}

	svc := scanner.New(cfg).SetStore(store.NewResultStore(cfg.DataPath + "/results"))

	if addr := ctx.String("metrics-addr"); addr != "" {
		recorder, err := metrics.New()
		if err != nil {
			return nil, err
		}
		svc.SetMetrics(recorder)
		go func() {
			if err := recorder.Serve(scanContext, addr); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	if err := svc.Init(); err != nil {
		log.Error().Err(err).Msg("failed to init result store")
		return nil, err
	}
	return svc, nil
}

func printResults(ctx *cli.Context, results ...*vscan.ScanResult) error {
	format, err := report.ParseFormat(ctx.String("format"))
	if err != nil {
		return err
	}
	r := report.New(format)
	for _, result := range results {
		r.Add(result)
	}
	return r.Print(ctx.App.Writer)
}

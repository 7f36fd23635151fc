package clicmds

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/vulnscan/vscan"
)

func ScheduleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "time between the end of a run and the start of the next",
			Value: 10 * time.Minute,
		},
		&cli.IntFlag{
			Name:  "runs",
			Usage: "number of runs, 0 runs until interrupted",
			Value: 0,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "target to scan",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "file to scan",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "quick or thorough",
			Value: string(vscan.ModeQuick),
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "config to use",
			Value: "",
		},
	}
}

// Schedule repeats a url and/or file scan every interval. Failed runs are
// logged and retried on the next interval.
func Schedule(ctx *cli.Context) error {
	target, path := ctx.String("url"), ctx.String("path")
	if target == "" && path == "" {
		return errors.New("schedule needs --url or --path")
	}
	if ctx.Duration("interval") <= 0 {
		return errors.New("interval must be positive")
	}

	mode, err := vscan.ParseMode(ctx.String("mode"))
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(ctx.String("config"))
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

	for run := 1; ; run++ {
		log.Info().Int("run", run).Msg("starting scheduled scan")
		results := make([]*vscan.ScanResult, 0, 2)

		if path != "" {
			if result, err := svc.ScanFile(scanContext, path); err != nil {
				log.Error().Err(err).Int("run", run).Msg("scheduled file scan failed")
			} else {
				results = append(results, result)
			}
		}
		if target != "" {
			if result, err := svc.ScanURL(scanContext, target, mode); err != nil {
				log.Error().Err(err).Int("run", run).Msg("scheduled url scan failed")
			} else {
				results = append(results, result)
			}
		}
		if err := printResults(ctx, results...); err != nil {
			return err
		}

		if ctx.Int("runs") > 0 && run >= ctx.Int("runs") {
			return nil
		}
		if !waitNextRun(scanContext, ctx.Duration("interval")) {
			log.Info().Msg("schedule stopped")
			return nil
		}
	}
}

// waitNextRun waits a full interval from now, false if ctx ended first
func waitNextRun(ctx context.Context, interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package phase drives a ready engine through the crawl and probe phases
package phase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

// Outcome of a phased scan
type Outcome struct {
	Alerts        []*vscan.Alert
	CrawlTimedOut bool
	ProbeTimedOut bool
	CrawlDuration time.Duration
	ProbeDuration time.Duration
}

type progressFn func(ctx context.Context, id string) (int, error)

// Controller runs the phases of a url scan against one engine
type Controller struct {
	cfg    *vscan.PhaseConfig
	engine vscan.Engine
}

// New phase controller for a ready engine
func New(cfg *vscan.PhaseConfig, engine vscan.Engine) *Controller {
	return &Controller{cfg: cfg, engine: engine}
}

// Settings returns the phase parameters for mode
func (c *Controller) Settings(mode vscan.Mode) (*vscan.ModeSettings, error) {
	return SettingsFor(c.cfg, mode)
}

// SettingsFor returns the phase parameters for mode, configured modes first
func SettingsFor(cfg *vscan.PhaseConfig, mode vscan.Mode) (*vscan.ModeSettings, error) {
	if settings, ok := cfg.Modes[mode]; ok && settings != nil {
		return settings, nil
	}
	if settings, ok := vscan.DefaultModes()[mode]; ok {
		return settings, nil
	}
	return nil, vscan.WithKind(vscan.ErrInvalidMode, errors.Errorf("unknown scan mode %q", mode))
}

// Run primes the target, crawls it, probes it and returns every alert the engine raised.
// A phase exceeding its budget is stopped and the scan continues.
func (c *Controller) Run(ctx context.Context, target string, mode vscan.Mode) (*Outcome, error) {
	if _, err := ParseTarget(target); err != nil {
		return nil, err
	}
	settings, err := c.Settings(mode)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("target", target).Str("mode", string(mode)).Logger()
	outcome := &Outcome{}

	if err := c.engine.AccessURL(ctx, target); err != nil {
		if ctx.Err() != nil {
			return nil, vscan.WithKind(vscan.ErrScanAborted, ctx.Err())
		}
		logger.Warn().Err(err).Msg("priming request failed")
	}
	if err := wait(ctx, c.cfg.PrimeDelay); err != nil {
		return nil, err
	}

	logger.Info().Int("depth", settings.MaxCrawlDepth).Dur("budget", settings.CrawlBudget).Msg("starting crawl")
	if err := c.engine.ConfigureCrawl(ctx, settings.MaxCrawlDepth, settings.CrawlBudget); err != nil {
		return nil, aborted(ctx, err, "configuring crawl")
	}
	crawlID, err := c.engine.StartCrawl(ctx, target)
	if err != nil {
		return nil, aborted(ctx, err, "starting crawl")
	}
	start := time.Now()
	outcome.CrawlTimedOut, err = c.poll(ctx, "crawl", crawlID, c.cfg.CrawlPollInterval, settings.CrawlBudget, c.engine.CrawlProgress)
	if err != nil {
		return nil, err
	}
	if outcome.CrawlTimedOut {
		logger.Warn().Dur("budget", settings.CrawlBudget).Msg("crawl exceeded budget, stopping")
		if err := c.engine.StopCrawl(ctx, crawlID); err != nil {
			logger.Warn().Err(err).Msg("failed to stop crawl")
		}
	}
	outcome.CrawlDuration = time.Since(start)
	logger.Info().Dur("took", outcome.CrawlDuration).Bool("timed_out", outcome.CrawlTimedOut).Msg("crawl complete")

	// let passive scanning catch up on crawled traffic
	if err := wait(ctx, c.cfg.SettleDelay); err != nil {
		return nil, err
	}

	logger.Info().Int("threads", settings.ProbeConcurrency).Dur("budget", settings.ProbeBudget).Msg("starting probe")
	if err := c.engine.ConfigureProbe(ctx, settings.ProbeBudget, settings.ProbeConcurrency); err != nil {
		return nil, aborted(ctx, err, "configuring probe")
	}
	probeID, err := c.engine.StartProbe(ctx, target, true)
	if err != nil {
		return nil, aborted(ctx, err, "starting probe")
	}
	start = time.Now()
	outcome.ProbeTimedOut, err = c.poll(ctx, "probe", probeID, c.cfg.ProbePollInterval, settings.ProbeBudget, c.engine.ProbeProgress)
	if err != nil {
		return nil, err
	}
	if outcome.ProbeTimedOut {
		logger.Warn().Dur("budget", settings.ProbeBudget).Msg("probe exceeded budget, stopping")
		if err := c.engine.StopProbe(ctx, probeID); err != nil {
			logger.Warn().Err(err).Msg("failed to stop probe")
		}
	}
	outcome.ProbeDuration = time.Since(start)
	logger.Info().Dur("took", outcome.ProbeDuration).Bool("timed_out", outcome.ProbeTimedOut).Msg("probe complete")

	alerts, err := c.engine.Alerts(ctx)
	if err != nil {
		return nil, aborted(ctx, err, "retrieving alerts")
	}
	if alerts == nil {
		alerts = make([]*vscan.Alert, 0)
	}
	outcome.Alerts = alerts
	return outcome, nil
}

// poll reads progress every interval until it reaches 100 or the budget (0 is unlimited) expires.
// Progress reads share the budget, a read still pending when it expires is abandoned.
// Returns true if the budget expired.
func (c *Controller) poll(ctx context.Context, phase, id string, interval, budget time.Duration, progress progressFn) (bool, error) {
	phaseCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		percent, err := progress(phaseCtx, id)
		switch {
		case ctx.Err() != nil:
			return false, vscan.WithKind(vscan.ErrScanAborted, ctx.Err())
		case phaseCtx.Err() != nil:
			return true, nil
		case err != nil:
			failures++
			if failures > c.cfg.MaxPollErrors {
				return false, vscan.WithKind(vscan.ErrScanAborted, errors.Wrapf(err, "reading %s progress", phase))
			}
			log.Warn().Err(err).Str("phase", phase).Int("failures", failures).Msg("failed to read progress")
		case percent >= 100:
			return false, nil
		default:
			failures = 0
			log.Debug().Str("phase", phase).Int("progress", percent).Msg("polling")
		}

		select {
		case <-phaseCtx.Done():
			if ctx.Err() != nil {
				return false, vscan.WithKind(vscan.ErrScanAborted, ctx.Err())
			}
			return true, nil
		case <-ticker.C:
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return vscan.WithKind(vscan.ErrScanAborted, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func aborted(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return vscan.WithKind(vscan.ErrScanAborted, errors.Wrap(err, msg))
}

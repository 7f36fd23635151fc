package phase_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vulnscan/mock"
	"gitlab.com/vulnscan/scanner/phase"
	"gitlab.com/vulnscan/vscan"
)

func testConfig() *vscan.PhaseConfig {
	cfg := vscan.DefaultConfig().Phases
	cfg.CrawlPollInterval = 5 * time.Millisecond
	cfg.ProbePollInterval = 5 * time.Millisecond
	cfg.PrimeDelay = 0
	cfg.SettleDelay = time.Millisecond
	return cfg
}

func TestRunQuick(t *testing.T) {
	engine := mock.MakeMockEngine()
	var depth, threads int
	var crawlBudget, probeBudget time.Duration
	var recurse bool
	engine.ConfigureCrawlFn = func(ctx context.Context, maxDepth int, maxDuration time.Duration) error {
		depth, crawlBudget = maxDepth, maxDuration
		return nil
	}
	engine.ConfigureProbeFn = func(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error {
		probeBudget, threads = maxDuration, threadsPerHost
		return nil
	}
	engine.StartProbeFn = func(ctx context.Context, target string, r bool) (string, error) {
		recurse = r
		return "1", nil
	}
	engine.AlertsFn = func(ctx context.Context) ([]*vscan.Alert, error) {
		return []*vscan.Alert{{Name: "XSS", Risk: "High"}, {Name: "XSS", Risk: "High"}}, nil
	}

	outcome, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)

	assert.Equal(t, 3, depth)
	assert.Equal(t, 5*time.Minute, crawlBudget)
	assert.Equal(t, 10*time.Minute, probeBudget)
	assert.Equal(t, 5, threads)
	assert.True(t, recurse)

	// alerts are returned as reported, duplicates included
	require.Len(t, outcome.Alerts, 2)
	assert.False(t, outcome.CrawlTimedOut)
	assert.False(t, outcome.ProbeTimedOut)

	expected := []string{"access_url", "configure_crawl", "start_crawl", "crawl_progress",
		"configure_probe", "start_probe", "probe_progress", "alerts"}
	assert.Equal(t, expected, engine.Calls)
}

func TestRunThoroughSettings(t *testing.T) {
	engine := mock.MakeMockEngine()
	var depth, threads int
	var crawlBudget, probeBudget time.Duration
	engine.ConfigureCrawlFn = func(ctx context.Context, maxDepth int, maxDuration time.Duration) error {
		depth, crawlBudget = maxDepth, maxDuration
		return nil
	}
	engine.ConfigureProbeFn = func(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error {
		probeBudget, threads = maxDuration, threadsPerHost
		return nil
	}

	_, err := phase.New(testConfig(), engine).Run(context.Background(), "https://example.test/app", vscan.ModeThorough)
	require.NoError(t, err)
	assert.Equal(t, 10, depth)
	assert.Equal(t, time.Duration(0), crawlBudget)
	assert.Equal(t, time.Duration(0), probeBudget)
	assert.Equal(t, 2, threads)
}

func TestInvalidTarget(t *testing.T) {
	engine := mock.MakeMockEngine()
	for _, target := range []string{"not-a-url", "", "/relative", "ftp://example.test", "http://"} {
		_, err := phase.New(testConfig(), engine).Run(context.Background(), target, vscan.ModeQuick)
		if !errors.Is(err, vscan.ErrInvalidTarget) {
			t.Fatalf("expected invalid target for %q got %v", target, err)
		}
	}
	assert.Len(t, engine.Calls, 0)
}

// crawl never finishes within its budget, probe still runs to completion
func TestCrawlBudgetExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.Modes = map[vscan.Mode]*vscan.ModeSettings{
		vscan.ModeQuick: {MaxCrawlDepth: 3, CrawlBudget: 50 * time.Millisecond, ProbeBudget: time.Second, ProbeConcurrency: 5},
	}
	engine := mock.MakeMockEngine()
	engine.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		return 10, nil
	}
	var probePolls int32
	engine.ProbeProgressFn = func(ctx context.Context, id string) (int, error) {
		if atomic.AddInt32(&probePolls, 1) < 3 {
			return 50, nil
		}
		return 100, nil
	}
	engine.AlertsFn = func(ctx context.Context) ([]*vscan.Alert, error) {
		return []*vscan.Alert{{Name: "found during crawl", Risk: "Medium"}}, nil
	}

	outcome, err := phase.New(cfg, engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)

	assert.True(t, outcome.CrawlTimedOut)
	assert.False(t, outcome.ProbeTimedOut)
	assert.Equal(t, 1, engine.Called("stop_crawl"))
	assert.Equal(t, 0, engine.Called("stop_probe"))
	assert.Equal(t, 3, engine.Called("probe_progress"))
	require.Len(t, outcome.Alerts, 1)

	// never more than one interval past the budget, with scheduling slack
	assert.Less(t, int64(outcome.CrawlDuration), int64(50*time.Millisecond+cfg.CrawlPollInterval+40*time.Millisecond))
	assert.GreaterOrEqual(t, int64(outcome.CrawlDuration), int64(50*time.Millisecond))
}

func TestBlockingProgressHonorsBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Modes = map[vscan.Mode]*vscan.ModeSettings{
		vscan.ModeQuick: {MaxCrawlDepth: 3, CrawlBudget: 50 * time.Millisecond, ProbeBudget: time.Second, ProbeConcurrency: 5},
	}
	engine := mock.MakeMockEngine()
	engine.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		select {
		case <-time.After(400 * time.Millisecond):
			return 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	outcome, err := phase.New(cfg, engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)

	assert.True(t, outcome.CrawlTimedOut)
	assert.Equal(t, 1, engine.Called("crawl_progress"))
	assert.Equal(t, 1, engine.Called("stop_crawl"))
	assert.Equal(t, 1, engine.Called("alerts"))
	assert.Less(t, int64(outcome.CrawlDuration), int64(50*time.Millisecond+cfg.CrawlPollInterval+40*time.Millisecond))
}

func TestProbeBudgetExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.Modes = map[vscan.Mode]*vscan.ModeSettings{
		vscan.ModeQuick: {MaxCrawlDepth: 3, CrawlBudget: time.Second, ProbeBudget: 30 * time.Millisecond, ProbeConcurrency: 5},
	}
	engine := mock.MakeMockEngine()
	engine.ProbeProgressFn = func(ctx context.Context, id string) (int, error) {
		return 99, nil
	}
	engine.StopProbeFn = func(ctx context.Context, id string) error {
		return errors.New("stop failed")
	}

	outcome, err := phase.New(cfg, engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)
	assert.False(t, outcome.CrawlTimedOut)
	assert.True(t, outcome.ProbeTimedOut)
	assert.Equal(t, 1, engine.Called("alerts"))
}

func TestUnlimitedBudget(t *testing.T) {
	engine := mock.MakeMockEngine()
	var polls int32
	engine.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		if atomic.AddInt32(&polls, 1) < 20 {
			return 5, nil
		}
		return 100, nil
	}

	outcome, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeThorough)
	require.NoError(t, err)
	assert.False(t, outcome.CrawlTimedOut)
	assert.Equal(t, 20, engine.Called("crawl_progress"))
	assert.Equal(t, 0, engine.Called("stop_crawl"))
}

func TestPollErrorsTolerated(t *testing.T) {
	engine := mock.MakeMockEngine()
	var polls int32
	engine.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		if atomic.AddInt32(&polls, 1) <= 3 {
			return 0, errors.New("connection reset")
		}
		return 100, nil
	}

	_, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)
	assert.Equal(t, 4, engine.Called("crawl_progress"))
}

func TestPollErrorsAbort(t *testing.T) {
	engine := mock.MakeMockEngine()
	engine.ProbeProgressFn = func(ctx context.Context, id string) (int, error) {
		return 0, errors.New("connection refused")
	}

	outcome, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	assert.Nil(t, outcome)
	require.True(t, errors.Is(err, vscan.ErrScanAborted), "expected aborted got %v", err)
	assert.Equal(t, 4, engine.Called("probe_progress"))
	assert.Equal(t, 0, engine.Called("alerts"))
}

func TestStartFailureAborts(t *testing.T) {
	engine := mock.MakeMockEngine()
	engine.StartCrawlFn = func(ctx context.Context, target string) (string, error) {
		return "", errors.New("engine gone")
	}

	_, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.True(t, errors.Is(err, vscan.ErrScanAborted), "expected aborted got %v", err)
	assert.Equal(t, 0, engine.Called("start_probe"))
}

func TestAlertsFailureAborts(t *testing.T) {
	engine := mock.MakeMockEngine()
	engine.AlertsFn = func(ctx context.Context) ([]*vscan.Alert, error) {
		return nil, errors.New("bad gateway")
	}

	_, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.True(t, errors.Is(err, vscan.ErrScanAborted), "expected aborted got %v", err)
}

func TestPrimingFailureIgnored(t *testing.T) {
	engine := mock.MakeMockEngine()
	engine.AccessURLFn = func(ctx context.Context, target string) error {
		return errors.New("timeout")
	}

	_, err := phase.New(testConfig(), engine).Run(context.Background(), "http://example.test", vscan.ModeQuick)
	require.NoError(t, err)
}

func TestCancelStopsPolling(t *testing.T) {
	engine := mock.MakeMockEngine()
	engine.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := phase.New(testConfig(), engine).Run(ctx, "http://example.test", vscan.ModeThorough)
	require.True(t, errors.Is(err, vscan.ErrScanAborted), "expected aborted got %v", err)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
	assert.Equal(t, 0, engine.Called("start_probe"))
}

func TestParseTarget(t *testing.T) {
	u, err := phase.ParseTarget(" https://example.test:8443/app?x=1 ")
	require.NoError(t, err)
	assert.Equal(t, "example.test", u.Hostname())

	_, err = phase.ParseTarget("example.test")
	assert.True(t, errors.Is(err, vscan.ErrInvalidTarget))
}

package mock

import (
	"context"
	"sync"
	"time"

	"gitlab.com/vulnscan/vscan"
)

// Engine is a fake engine control api
type Engine struct {
	mu    sync.Mutex
	Calls []string

	VersionFn        func(ctx context.Context) (string, error)
	AccessURLFn      func(ctx context.Context, target string) error
	ConfigureCrawlFn func(ctx context.Context, maxDepth int, maxDuration time.Duration) error
	StartCrawlFn     func(ctx context.Context, target string) (string, error)
	CrawlProgressFn  func(ctx context.Context, id string) (int, error)
	StopCrawlFn      func(ctx context.Context, id string) error
	ConfigureProbeFn func(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error
	StartProbeFn     func(ctx context.Context, target string, recurse bool) (string, error)
	ProbeProgressFn  func(ctx context.Context, id string) (int, error)
	StopProbeFn      func(ctx context.Context, id string) error
	AlertsFn         func(ctx context.Context) ([]*vscan.Alert, error)
	ShutdownFn       func(ctx context.Context) error
}

// MakeMockEngine returns an engine that is ready and completes every phase immediately
func MakeMockEngine() *Engine {
	e := &Engine{Calls: make([]string, 0)}
	e.VersionFn = func(ctx context.Context) (string, error) {
		return "2.16.0", nil
	}
	e.AccessURLFn = func(ctx context.Context, target string) error {
		return nil
	}
	e.ConfigureCrawlFn = func(ctx context.Context, maxDepth int, maxDuration time.Duration) error {
		return nil
	}
	e.StartCrawlFn = func(ctx context.Context, target string) (string, error) {
		return "0", nil
	}
	e.CrawlProgressFn = func(ctx context.Context, id string) (int, error) {
		return 100, nil
	}
	e.StopCrawlFn = func(ctx context.Context, id string) error {
		return nil
	}
	e.ConfigureProbeFn = func(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error {
		return nil
	}
	e.StartProbeFn = func(ctx context.Context, target string, recurse bool) (string, error) {
		return "1", nil
	}
	e.ProbeProgressFn = func(ctx context.Context, id string) (int, error) {
		return 100, nil
	}
	e.StopProbeFn = func(ctx context.Context, id string) error {
		return nil
	}
	e.AlertsFn = func(ctx context.Context) ([]*vscan.Alert, error) {
		return []*vscan.Alert{}, nil
	}
	e.ShutdownFn = func(ctx context.Context) error {
		return nil
	}
	return e
}

// Called returns how many times call was made
func (e *Engine) Called(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, c := range e.Calls {
		if c == call {
			count++
		}
	}
	return count
}

func (e *Engine) record(call string) {
	e.mu.Lock()
	e.Calls = append(e.Calls, call)
	e.mu.Unlock()
}

func (e *Engine) Version(ctx context.Context) (string, error) {
	e.record("version")
	return e.VersionFn(ctx)
}

func (e *Engine) AccessURL(ctx context.Context, target string) error {
	e.record("access_url")
	return e.AccessURLFn(ctx, target)
}

func (e *Engine) ConfigureCrawl(ctx context.Context, maxDepth int, maxDuration time.Duration) error {
	e.record("configure_crawl")
	return e.ConfigureCrawlFn(ctx, maxDepth, maxDuration)
}

func (e *Engine) StartCrawl(ctx context.Context, target string) (string, error) {
	e.record("start_crawl")
	return e.StartCrawlFn(ctx, target)
}

func (e *Engine) CrawlProgress(ctx context.Context, id string) (int, error) {
	e.record("crawl_progress")
	return e.CrawlProgressFn(ctx, id)
}

func (e *Engine) StopCrawl(ctx context.Context, id string) error {
	e.record("stop_crawl")
	return e.StopCrawlFn(ctx, id)
}

func (e *Engine) ConfigureProbe(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error {
	e.record("configure_probe")
	return e.ConfigureProbeFn(ctx, maxDuration, threadsPerHost)
}

func (e *Engine) StartProbe(ctx context.Context, target string, recurse bool) (string, error) {
	e.record("start_probe")
	return e.StartProbeFn(ctx, target, recurse)
}

func (e *Engine) ProbeProgress(ctx context.Context, id string) (int, error) {
	e.record("probe_progress")
	return e.ProbeProgressFn(ctx, id)
}

func (e *Engine) StopProbe(ctx context.Context, id string) error {
	e.record("stop_probe")
	return e.StopProbeFn(ctx, id)
}

func (e *Engine) Alerts(ctx context.Context) ([]*vscan.Alert, error) {
	e.record("alerts")
	return e.AlertsFn(ctx)
}

func (e *Engine) Shutdown(ctx context.Context) error {
	e.record("shutdown")
	return e.ShutdownFn(ctx)
}

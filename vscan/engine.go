package vscan

import (
	"context"
	"time"
)

// Engine is the control API of the dynamic analysis engine
type Engine interface {
	HealthProber
	// AccessURL issues a request to the target through the engine
	AccessURL(ctx context.Context, target string) error

	ConfigureCrawl(ctx context.Context, maxDepth int, maxDuration time.Duration) error
	StartCrawl(ctx context.Context, target string) (string, error)
	CrawlProgress(ctx context.Context, id string) (int, error)
	StopCrawl(ctx context.Context, id string) error

	ConfigureProbe(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error
	StartProbe(ctx context.Context, target string, recurse bool) (string, error)
	ProbeProgress(ctx context.Context, id string) (int, error)
	StopProbe(ctx context.Context, id string) error

	// Alerts returns every alert the engine holds, unfiltered
	Alerts(ctx context.Context) ([]*Alert, error)
	Shutdown(ctx context.Context) error
}

// Package metrics exposes scan counters for prometheus
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

// Recorder collects scan metrics into its own registry. A nil Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	scans         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	findings      *prometheus.CounterVec
	phaseTimeouts *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	engineState   prometheus.Gauge
}

// New recorder with every collector registered
func New() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.scans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnscan_scans_total",
		Help: "Completed scans",
	}, []string{"type", "mode"})

	r.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnscan_scan_failures_total",
		Help: "Scans that failed, by error kind",
	}, []string{"type", "kind"})

	r.findings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnscan_findings_total",
		Help: "Findings reported",
	}, []string{"kind", "risk"})

	r.phaseTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnscan_phase_timeouts_total",
		Help: "Url scan phases stopped at their time budget",
	}, []string{"phase"})

	r.degraded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vulnscan_degraded_total",
		Help: "Scans completed without a collaborator",
	}, []string{"reason"})

	r.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vulnscan_scan_duration_seconds",
		Help:    "Scan duration",
		Buckets: []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600},
	}, []string{"type"})

	r.engineState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vulnscan_engine_state",
		Help: "Current engine daemon state",
	})

	collectors := []prometheus.Collector{r.scans, r.failures, r.findings, r.phaseTimeouts, r.degraded, r.duration, r.engineState}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Registry the collectors are registered with
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Result records a completed scan
func (r *Recorder) Result(result *vscan.ScanResult) {
	if r == nil {
		return
	}
	r.scans.WithLabelValues(string(result.Type), string(result.Mode)).Inc()
	r.duration.WithLabelValues(string(result.Type)).Observe(result.Duration.Seconds())

	for _, f := range result.Findings {
		r.findings.WithLabelValues(f.Kind.String(), f.Risk.String()).Inc()
	}

	d := result.Degraded
	if d.CrawlTimedOut {
		r.phaseTimeouts.WithLabelValues("crawl").Inc()
	}
	if d.ProbeTimedOut {
		r.phaseTimeouts.WithLabelValues("probe").Inc()
	}
	if d.DatabaseUnavailable {
		r.degraded.WithLabelValues("database").Inc()
	}
	if d.StaticUnavailable {
		r.degraded.WithLabelValues("static").Inc()
	}
}

// Failure records a scan that returned an error
func (r *Recorder) Failure(scanType vscan.ScanType, err error) {
	if r == nil {
		return
	}
	kind := "unknown"
	if k := vscan.KindOf(err); k != nil {
		kind = k.Error()
	}
	r.failures.WithLabelValues(string(scanType), kind).Inc()
}

// EngineState records the engine daemon state
func (r *Recorder) EngineState(state vscan.DaemonState) {
	if r == nil {
		return
	}
	r.engineState.Set(float64(state))
}

// Handler serving the registry
func (r *Recorder) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	return router
}

// Serve metrics on addr until ctx is done
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}

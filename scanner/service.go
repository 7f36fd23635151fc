package scanner

import (
	"context"
	"io/ioutil"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/semaphore"

	"gitlab.com/vulnscan/metrics"
	"gitlab.com/vulnscan/scanner/cve"
	"gitlab.com/vulnscan/scanner/daemon"
	"gitlab.com/vulnscan/scanner/phase"
	"gitlab.com/vulnscan/scanner/static"
	"gitlab.com/vulnscan/scanner/zap"
	"gitlab.com/vulnscan/vscan"
)

const engineCallTimeout = 30 * time.Second

// EngineFactory creates the engine api client for the daemon listening on addr
type EngineFactory func(addr string) vscan.Engine

// Service runs file and url scans. Url scans share one engine daemon and are
// run one at a time, file scans run in parallel.
type Service struct {
	cfg      *vscan.Config
	matcher  vscan.CVEMatcher
	analyzer vscan.StaticAnalyzer
	host     vscan.ProcessHost
	engine   EngineFactory
	store    vscan.ResultStorer
	metrics  *metrics.Recorder

	queue *semaphore.Weighted
}

// New service with the collaborators selected by cfg
func New(cfg *vscan.Config) *Service {
	s := &Service{
		cfg:   cfg,
		host:  daemon.NewOSHost(),
		queue: semaphore.NewWeighted(1),
		engine: func(addr string) vscan.Engine {
			return zap.New(addr, engineCallTimeout)
		},
	}

	if cfg.CVE.Remote {
		s.matcher = cve.NewRemoteMatcher(cfg.CVE.RemoteEndpoint, cfg.CVE.RemoteKeywords, cfg.CVE.RemoteDelay, cfg.CVE.RemoteResults)
	} else {
		s.matcher = cve.NewLocalMatcher(cfg.CVE.DatabasePath)
	}

	if cfg.Static.Enabled {
		s.analyzer = static.NewBandit(cfg.Static.Command)
	}
	return s
}

// SetMatcher overrides the cve matcher
func (s *Service) SetMatcher(matcher vscan.CVEMatcher) *Service {
	s.matcher = matcher
	return s
}

// SetAnalyzer overrides the static analyzer, nil disables static analysis
func (s *Service) SetAnalyzer(analyzer vscan.StaticAnalyzer) *Service {
	s.analyzer = analyzer
	return s
}

// SetProcessHost overrides where the engine process is spawned
func (s *Service) SetProcessHost(host vscan.ProcessHost) *Service {
	s.host = host
	return s
}

// SetEngineFactory overrides the engine api client
func (s *Service) SetEngineFactory(factory EngineFactory) *Service {
	s.engine = factory
	return s
}

// SetStore saves every successful result to store
func (s *Service) SetStore(store vscan.ResultStorer) *Service {
	s.store = store
	return s
}

// SetMetrics records results and failures with recorder
func (s *Service) SetMetrics(recorder *metrics.Recorder) *Service {
	s.metrics = recorder
	return s
}

// Init the result store if one is set
func (s *Service) Init() error {
	if s.store == nil {
		return nil
	}
	log.Info().Msg("initializing result store")
	return s.store.Init()
}

// Close the result store if one is set
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func newResult(scanType vscan.ScanType, target string) *vscan.ScanResult {
	return &vscan.ScanResult{
		ID:        uuid.NewV4().String(),
		Type:      scanType,
		Target:    target,
		StartedAt: time.Now(),
		Findings:  make([]*vscan.Finding, 0),
	}
}

// ScanFile matches the file at path against the cve matcher and, when enabled,
// runs static analysis on it. Missing collaborators degrade the result, an
// unreadable file fails the scan.
func (s *Service) ScanFile(ctx context.Context, path string) (*vscan.ScanResult, error) {
	result := newResult(vscan.FileScan, path)
	logger := log.With().Str("scan_id", result.ID).Str("path", path).Logger()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, s.fail(vscan.FileScan, vscan.WithKind(vscan.ErrArtifactUnreadable, err))
	}
	artifact := &vscan.Artifact{Path: path, Lines: splitLines(string(data))}
	logger.Info().Int("lines", len(artifact.Lines)).Str("matcher", s.matcher.Name()).Msg("scanning file")

	findings, err := s.matcher.FindCVEs(ctx, artifact)
	if ctx.Err() != nil {
		return nil, s.fail(vscan.FileScan, vscan.WithKind(vscan.ErrScanAborted, ctx.Err()))
	}
	if err != nil {
		logger.Warn().Err(err).Msg("cve matching incomplete")
		result.Degraded.DatabaseUnavailable = true
		result.Degraded.Warn(err.Error())
	}
	result.Findings = append(result.Findings, findings...)

	if s.analyzer != nil {
		issues, err := s.analyzer.Analyze(ctx, path)
		if ctx.Err() != nil {
			return nil, s.fail(vscan.FileScan, vscan.WithKind(vscan.ErrScanAborted, ctx.Err()))
		}
		if err != nil {
			logger.Warn().Err(err).Str("analyzer", s.analyzer.Name()).Msg("static analysis unavailable")
			result.Degraded.StaticUnavailable = true
			result.Degraded.Warn(err.Error())
		}
		result.Findings = append(result.Findings, issues...)
	}

	return s.finish(result), nil
}

// ScanURL launches the engine, runs the crawl and probe phases against target
// and returns the normalized alerts. The engine is always shut down before returning.
func (s *Service) ScanURL(ctx context.Context, target string, mode vscan.Mode) (*vscan.ScanResult, error) {
	if _, err := phase.ParseTarget(target); err != nil {
		return nil, s.fail(vscan.URLScan, err)
	}
	if _, err := phase.SettingsFor(s.cfg.Phases, mode); err != nil {
		return nil, s.fail(vscan.URLScan, err)
	}

	if err := s.queue.Acquire(ctx, 1); err != nil {
		return nil, s.fail(vscan.URLScan, vscan.WithKind(vscan.ErrScanAborted, err))
	}
	defer s.queue.Release(1)

	result := newResult(vscan.URLScan, target)
	result.Mode = mode
	logger := log.With().Str("scan_id", result.ID).Str("target", target).Logger()

	addr := net.JoinHostPort(s.cfg.Engine.Host, strconv.Itoa(s.cfg.Engine.Port))
	engine := s.engine(addr)
	supervisor := daemon.New(s.cfg.Engine, s.host, engine)
	defer func() {
		supervisor.Shutdown()
		s.metrics.EngineState(supervisor.State())
	}()

	logger.Info().Str("addr", addr).Msg("launching engine")
	if err := supervisor.Launch(ctx); err != nil {
		return nil, s.fail(vscan.URLScan, err)
	}
	s.metrics.EngineState(supervisor.State())

	if err := supervisor.AwaitReady(ctx); err != nil {
		return nil, s.fail(vscan.URLScan, err)
	}
	s.metrics.EngineState(supervisor.State())

	outcome, err := phase.New(s.cfg.Phases, engine).Run(ctx, target, mode)
	if err != nil {
		return nil, s.fail(vscan.URLScan, err)
	}

	result.Degraded.CrawlTimedOut = outcome.CrawlTimedOut
	result.Degraded.ProbeTimedOut = outcome.ProbeTimedOut
	for _, alert := range outcome.Alerts {
		result.Findings = append(result.Findings, alert.ToFinding(zap.Name))
	}
	logger.Info().Int("alerts", len(outcome.Alerts)).Msg("engine phases complete")
	return s.finish(result), nil
}

func (s *Service) finish(result *vscan.ScanResult) *vscan.ScanResult {
	result.Duration = time.Since(result.StartedAt)
	s.metrics.Result(result)

	if s.store != nil {
		if err := s.store.Save(result); err != nil {
			log.Error().Err(err).Str("scan_id", result.ID).Msg("failed to save result")
		}
	}
	log.Info().Str("scan_id", result.ID).Int("findings", len(result.Findings)).
		Dur("took", result.Duration).Bool("degraded", result.Degraded.Any()).Msg("scan complete")
	return result
}

func (s *Service) fail(scanType vscan.ScanType, err error) error {
	s.metrics.Failure(scanType, err)
	log.Error().Err(err).Str("type", string(scanType)).Msg("scan failed")
	return err
}

func splitLines(data string) []string {
	if data == "" {
		return []string{}
	}
	data = strings.ReplaceAll(data, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(data, "\n"), "\n")
}

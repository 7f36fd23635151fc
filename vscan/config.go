package vscan

import (
	"time"

	"github.com/pkg/errors"
)

// Mode of a url scan
type Mode string

const (
	ModeQuick    Mode = "quick"
	ModeThorough Mode = "thorough"
)

// ParseMode returns the scan mode, defaulting to thorough for empty input
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeThorough:
		return ModeThorough, nil
	case ModeQuick:
		return ModeQuick, nil
	}
	return "", WithKind(ErrInvalidMode, errors.Errorf("unknown scan mode %q", s))
}

// ModeSettings for the crawl and probe phases. A zero budget is unlimited.
type ModeSettings struct {
	MaxCrawlDepth    int
	CrawlBudget      time.Duration
	ProbeBudget      time.Duration
	ProbeConcurrency int
}

// DefaultModes are the settings used for each scan mode
func DefaultModes() map[Mode]*ModeSettings {
	return map[Mode]*ModeSettings{
		ModeQuick: {
			MaxCrawlDepth:    3,
			CrawlBudget:      5 * time.Minute,
			ProbeBudget:      10 * time.Minute,
			ProbeConcurrency: 5,
		},
		ModeThorough: {
			MaxCrawlDepth:    10,
			CrawlBudget:      0,
			ProbeBudget:      0,
			ProbeConcurrency: 2,
		},
	}
}

// EngineConfig for the dynamic analysis engine daemon
type EngineConfig struct {
	Command          string // launcher, e.g. java. Empty runs Artifact directly.
	Artifact         string // engine jar or start script, must exist
	WorkDir          string
	Host             string
	Port             int
	StateDir         string // empty uses a fresh temporary directory per scan
	ProcessMatch     string // command line regexp identifying a prior instance, empty derives it from Artifact and Port
	AlertThreshold   string
	MaxAlertsPerRule int

	StartupGrace    time.Duration
	ReadyTimeout    time.Duration
	ReadyInterval   time.Duration
	ShutdownTimeout time.Duration
}

// PhaseConfig for polling the engine
type PhaseConfig struct {
	CrawlPollInterval time.Duration
	ProbePollInterval time.Duration
	PrimeDelay        time.Duration
	SettleDelay       time.Duration
	MaxPollErrors     int
	Modes             map[Mode]*ModeSettings
}

// CVEConfig selects and configures the pattern matcher
type CVEConfig struct {
	DatabasePath   string // empty uses the bundled database
	Remote         bool
	RemoteEndpoint string
	RemoteKeywords []string
	RemoteDelay    time.Duration
	RemoteResults  int
}

// StaticConfig for the static analysis tool
type StaticConfig struct {
	Enabled bool
	Command string
}

// Config for vulnscan
type Config struct {
	DataPath string
	Engine   *EngineConfig
	Phases   *PhaseConfig
	CVE      *CVEConfig
	Static   *StaticConfig
}

// DefaultConfig returns a config with every field but the engine install location set
func DefaultConfig() *Config {
	return &Config{
		DataPath: "vulnscantmp",
		Engine: &EngineConfig{
			Host:             "127.0.0.1",
			Port:             8080,
			AlertThreshold:   "MEDIUM",
			MaxAlertsPerRule: 10,
			StartupGrace:     2 * time.Second,
			ReadyTimeout:     2 * time.Minute,
			ReadyInterval:    5 * time.Second,
			ShutdownTimeout:  15 * time.Second,
		},
		Phases: &PhaseConfig{
			CrawlPollInterval: 2 * time.Second,
			ProbePollInterval: 5 * time.Second,
			PrimeDelay:        time.Second,
			SettleDelay:       5 * time.Second,
			MaxPollErrors:     3,
			Modes:             DefaultModes(),
		},
		CVE: &CVEConfig{
			RemoteEndpoint: "https://services.nvd.nist.gov/rest/json/cves/2.0",
			RemoteDelay:    6 * time.Second,
			RemoteResults:  20,
		},
		Static: &StaticConfig{
			Command: "bandit",
		},
	}
}

package clicmds

import (
	"io/ioutil"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gitlab.com/vulnscan/scanner/daemon"
	"gitlab.com/vulnscan/vscan"
)

// durations are strings such as "90s" or "5m", "0" is unlimited where a budget allows it
type engineConfig struct {
	Command          string `toml:"command"`
	Artifact         string `toml:"artifact"`
	WorkDir          string `toml:"work_dir"`
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	StateDir         string `toml:"state_dir"`
	ProcessMatch     string `toml:"process_match"`
	AlertThreshold   string `toml:"alert_threshold"`
	MaxAlertsPerRule int    `toml:"max_alerts_per_rule"`
	StartupGrace     string `toml:"startup_grace"`
	ReadyTimeout     string `toml:"ready_timeout"`
	ReadyInterval    string `toml:"ready_interval"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`
}

type modeConfig struct {
	MaxCrawlDepth    int    `toml:"max_crawl_depth"`
	CrawlBudget      string `toml:"crawl_budget"`
	ProbeBudget      string `toml:"probe_budget"`
	ProbeConcurrency int    `toml:"probe_concurrency"`
}

type phaseConfig struct {
	CrawlPollInterval string      `toml:"crawl_poll_interval"`
	ProbePollInterval string      `toml:"probe_poll_interval"`
	PrimeDelay        string      `toml:"prime_delay"`
	SettleDelay       string      `toml:"settle_delay"`
	MaxPollErrors     int         `toml:"max_poll_errors"`
	Quick             *modeConfig `toml:"quick"`
	Thorough          *modeConfig `toml:"thorough"`
}

type cveConfig struct {
	Database       string   `toml:"database"`
	Remote         bool     `toml:"remote"`
	RemoteEndpoint string   `toml:"remote_endpoint"`
	RemoteKeywords []string `toml:"remote_keywords"`
	RemoteDelay    string   `toml:"remote_delay"`
	RemoteResults  int      `toml:"remote_results"`
}

type staticConfig struct {
	Enabled bool   `toml:"enabled"`
	Command string `toml:"command"`
}

type fileConfig struct {
	DataPath string        `toml:"data_path"`
	Engine   *engineConfig `toml:"engine"`
	Phases   *phaseConfig  `toml:"phases"`
	CVE      *cveConfig    `toml:"cve"`
	Static   *staticConfig `toml:"static"`
}

// LoadConfig reads the TOML config at path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*vscan.Config, error) {
	cfg := vscan.DefaultConfig()
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}

		file := &fileConfig{}
		if err := toml.NewDecoder(strings.NewReader(string(data))).Decode(file); err != nil {
			return nil, errors.Wrapf(err, "decoding config %s", path)
		}
		if err := file.apply(cfg); err != nil {
			return nil, errors.Wrapf(err, "invalid config %s", path)
		}
	}

	if cfg.Engine.Artifact == "" {
		cfg.Engine.Command, cfg.Engine.Artifact = daemon.FindEngine()
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrap(err, name)
	}
	*dst = d
	return nil
}

type durationField struct {
	dst   *time.Duration
	value string
	name  string
}

func setDurations(fields []durationField) error {
	for _, f := range fields {
		if err := setDuration(f.dst, f.value, f.name); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileConfig) apply(cfg *vscan.Config) error {
	setString(&cfg.DataPath, f.DataPath)

	if e := f.Engine; e != nil {
		setString(&cfg.Engine.Command, e.Command)
		setString(&cfg.Engine.Artifact, e.Artifact)
		setString(&cfg.Engine.WorkDir, e.WorkDir)
		setString(&cfg.Engine.Host, e.Host)
		setInt(&cfg.Engine.Port, e.Port)
		setString(&cfg.Engine.StateDir, e.StateDir)
		setString(&cfg.Engine.ProcessMatch, e.ProcessMatch)
		setString(&cfg.Engine.AlertThreshold, e.AlertThreshold)
		setInt(&cfg.Engine.MaxAlertsPerRule, e.MaxAlertsPerRule)
		err := setDurations([]durationField{
			{&cfg.Engine.StartupGrace, e.StartupGrace, "engine.startup_grace"},
			{&cfg.Engine.ReadyTimeout, e.ReadyTimeout, "engine.ready_timeout"},
			{&cfg.Engine.ReadyInterval, e.ReadyInterval, "engine.ready_interval"},
			{&cfg.Engine.ShutdownTimeout, e.ShutdownTimeout, "engine.shutdown_timeout"},
		})
		if err != nil {
			return err
		}
	}

	if p := f.Phases; p != nil {
		setInt(&cfg.Phases.MaxPollErrors, p.MaxPollErrors)
		err := setDurations([]durationField{
			{&cfg.Phases.CrawlPollInterval, p.CrawlPollInterval, "phases.crawl_poll_interval"},
			{&cfg.Phases.ProbePollInterval, p.ProbePollInterval, "phases.probe_poll_interval"},
			{&cfg.Phases.PrimeDelay, p.PrimeDelay, "phases.prime_delay"},
			{&cfg.Phases.SettleDelay, p.SettleDelay, "phases.settle_delay"},
		})
		if err != nil {
			return err
		}
		if err := p.Quick.apply(cfg.Phases.Modes[vscan.ModeQuick], "phases.quick"); err != nil {
			return err
		}
		if err := p.Thorough.apply(cfg.Phases.Modes[vscan.ModeThorough], "phases.thorough"); err != nil {
			return err
		}
	}

	if c := f.CVE; c != nil {
		setString(&cfg.CVE.DatabasePath, c.Database)
		cfg.CVE.Remote = cfg.CVE.Remote || c.Remote
		setString(&cfg.CVE.RemoteEndpoint, c.RemoteEndpoint)
		if len(c.RemoteKeywords) > 0 {
			cfg.CVE.RemoteKeywords = c.RemoteKeywords
		}
		setInt(&cfg.CVE.RemoteResults, c.RemoteResults)
		if err := setDuration(&cfg.CVE.RemoteDelay, c.RemoteDelay, "cve.remote_delay"); err != nil {
			return err
		}
	}

	if s := f.Static; s != nil {
		cfg.Static.Enabled = cfg.Static.Enabled || s.Enabled
		setString(&cfg.Static.Command, s.Command)
	}

	if cfg.Phases.CrawlPollInterval <= 0 || cfg.Phases.ProbePollInterval <= 0 || cfg.Engine.ReadyInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	return nil
}

func (m *modeConfig) apply(settings *vscan.ModeSettings, name string) error {
	if m == nil {
		return nil
	}
	setInt(&settings.MaxCrawlDepth, m.MaxCrawlDepth)
	setInt(&settings.ProbeConcurrency, m.ProbeConcurrency)
	return setDurations([]durationField{
		{&settings.CrawlBudget, m.CrawlBudget, name + ".crawl_budget"},
		{&settings.ProbeBudget, m.ProbeBudget, name + ".probe_budget"},
	})
}

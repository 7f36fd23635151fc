package vscan

import (
	"io"
	"time"
)

// ScanType of a result
type ScanType string

const (
	FileScan ScanType = "file"
	URLScan  ScanType = "url"
)

// Degraded conditions that reduced the completeness of a scan
type Degraded struct {
	DatabaseUnavailable bool     `msgpack:"db_unavailable" json:"database_unavailable,omitempty"`
	StaticUnavailable   bool     `msgpack:"static_unavailable" json:"static_unavailable,omitempty"`
	CrawlTimedOut       bool     `msgpack:"crawl_timeout" json:"crawl_timed_out,omitempty"`
	ProbeTimedOut       bool     `msgpack:"probe_timeout" json:"probe_timed_out,omitempty"`
	Warnings            []string `msgpack:"warnings" json:"warnings,omitempty"`
}

// Any returns true if any condition was recorded
func (d *Degraded) Any() bool {
	return d.DatabaseUnavailable || d.StaticUnavailable || d.CrawlTimedOut || d.ProbeTimedOut || len(d.Warnings) > 0
}

// Warn records a free form warning
func (d *Degraded) Warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// ScanResult of a single file or url scan
type ScanResult struct {
	ID        string        `msgpack:"id" json:"id"`
	Type      ScanType      `msgpack:"type" json:"type"`
	Target    string        `msgpack:"target" json:"target"`
	Mode      Mode          `msgpack:"mode" json:"mode,omitempty"`
	StartedAt time.Time     `msgpack:"started_at" json:"started_at"`
	Duration  time.Duration `msgpack:"duration" json:"duration"`
	Findings  []*Finding    `msgpack:"findings" json:"findings"`
	Degraded  Degraded      `msgpack:"degraded" json:"degraded"`
}

// ResultStorer persists scan results
type ResultStorer interface {
	Init() error
	Save(result *ScanResult) error
	Get(id string) (*ScanResult, error)
	List() ([]*ScanResult, error)
	Close() error
}

// Reporter outputs scan results
type Reporter interface {
	Add(result *ScanResult)
	Print(writer io.Writer) error
}

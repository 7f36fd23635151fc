package vscan

import (
	"strconv"
	"strings"
)

// Kind of scanner that produced a finding
type Kind int8

const (
	// PatternMatch is a line in an artifact matching a vulnerability pattern
	PatternMatch Kind = iota + 1
	// DastAlert is an alert raised by the dynamic analysis engine
	DastAlert
	// StaticIssue is a static analysis record scored locally
	StaticIssue
)

// KindMap for printing
var KindMap = map[Kind]string{
	PatternMatch: "pattern",
	DastAlert:    "dast",
	StaticIssue:  "static",
}

func (k Kind) String() string {
	if s, ok := KindMap[k]; ok {
		return s
	}
	return "unknown"
}

// Risk label of a finding
type Risk int8

const (
	RiskLow Risk = iota + 1
	RiskMedium
	RiskHigh
)

// RiskMap for printing
var RiskMap = map[Risk]string{
	RiskLow:    "Low",
	RiskMedium: "Medium",
	RiskHigh:   "High",
}

func (r Risk) String() string {
	if s, ok := RiskMap[r]; ok {
		return s
	}
	return "Unknown"
}

// ParseRisk reads a risk label case insensitively. Labels outside of
// low/medium/high return ok == false.
func ParseRisk(label string) (Risk, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high", "critical":
		return RiskHigh, true
	case "medium", "moderate":
		return RiskMedium, true
	case "low", "informational", "info":
		return RiskLow, true
	}
	return RiskLow, false
}

// Location of a finding, either path+line or url+param
type Location struct {
	Path  string `msgpack:"path" json:"path,omitempty"`
	Line  int    `msgpack:"line" json:"line,omitempty"` // 1-indexed, 0 when not applicable
	URL   string `msgpack:"url" json:"url,omitempty"`
	Param string `msgpack:"param" json:"param,omitempty"`
}

// NotApplicable is printed for missing location parts
const NotApplicable = "N/A"

func (l Location) String() string {
	switch {
	case l.URL != "":
		if l.Param == "" {
			return l.URL
		}
		return l.URL + " [" + l.Param + "]"
	case l.Path != "":
		if l.Line <= 0 {
			return l.Path + ":" + NotApplicable
		}
		return l.Path + ":" + strconv.Itoa(l.Line)
	}
	return NotApplicable
}

// Finding is a normalized, risk labeled unit of scan output
type Finding struct {
	Kind        Kind     `msgpack:"kind" json:"kind"`
	Source      string   `msgpack:"source" json:"source"`
	RefID       string   `msgpack:"ref_id" json:"ref_id,omitempty"`
	Location    Location `msgpack:"location" json:"location"`
	Title       string   `msgpack:"title" json:"title"`
	Description string   `msgpack:"description" json:"description,omitempty"`
	Risk        Risk     `msgpack:"risk" json:"risk"`
	Score       *float64 `msgpack:"score" json:"score,omitempty"`
	Evidence    string   `msgpack:"evidence" json:"evidence,omitempty"`
}

// ScoreString returns the score or N/A
func (f *Finding) ScoreString() string {
	if f.Score == nil {
		return NotApplicable
	}
	return strconv.FormatFloat(*f.Score, 'f', 1, 64)
}

// Float for optional scores
func Float(v float64) *float64 {
	return &v
}

// Package report prints scan results
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/vulnscan/vscan"
)

// Format of printed reports
type Format string

const (
	Text Format = "text"
	JSON Format = "json"
)

// ParseFormat returns the report format, text when empty
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", Text:
		return Text, nil
	case JSON:
		return JSON, nil
	}
	return "", errors.Errorf("unknown report format %q", s)
}

var _ vscan.Reporter = (*Reporter)(nil)

// Reporter collects results and prints them with duplicate findings collapsed
type Reporter struct {
	format  Format
	results []*vscan.ScanResult
}

// New reporter printing in format
func New(format Format) *Reporter {
	return &Reporter{format: format, results: make([]*vscan.ScanResult, 0)}
}

// Add a result to the report
func (r *Reporter) Add(result *vscan.ScanResult) {
	r.results = append(r.results, result)
}

// Print every added result
func (r *Reporter) Print(writer io.Writer) error {
	if r.format == JSON {
		return r.printJSON(writer)
	}
	return r.printText(writer)
}

// Entry is a unique finding and how many times it was reported
type Entry struct {
	*vscan.Finding
	Count int
}

func key(f *vscan.Finding) string {
	return strings.Join([]string{f.Kind.String(), f.Source, f.RefID, f.Title, f.Location.String(), f.Evidence}, "\x00")
}

// Unique findings of a result, highest risk first. Identical findings are
// collapsed and counted, otherwise the original order is kept.
func Unique(result *vscan.ScanResult) []*Entry {
	unique := make([]*Entry, 0, len(result.Findings))
	seen := make(map[string]*Entry)
	for _, f := range result.Findings {
		k := key(f)
		if existing, ok := seen[k]; ok {
			existing.Count++
			continue
		}
		uf := &Entry{Finding: f, Count: 1}
		seen[k] = uf
		unique = append(unique, uf)
	}
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Risk > unique[j].Risk
	})
	return unique
}

func (r *Reporter) printText(writer io.Writer) error {
	for _, result := range r.results {
		fmt.Fprintf(writer, "Scan %s (%s) %s\n", result.ID, result.Type, result.Target)
		if result.Mode != "" {
			fmt.Fprintf(writer, "Mode: %s\n", result.Mode)
		}
		fmt.Fprintf(writer, "Started: %s Took: %s\n", result.StartedAt.Format("2006-01-02 15:04:05"), result.Duration.Round(time.Millisecond))
		printDegraded(writer, &result.Degraded)

		unique := Unique(result)
		if len(unique) == 0 {
			fmt.Fprintf(writer, "No findings\n\n")
			continue
		}

		tw := tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RISK\tSCORE\tSOURCE\tID\tLOCATION\tTITLE\tEVIDENCE\tCOUNT")
		for _, f := range unique {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n", f.Risk, f.ScoreString(), f.Source,
				orNA(f.RefID), f.Location, oneLine(f.Title), oneLine(f.Evidence), f.Count)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(writer, "%s\n\n", summary(unique))
	}
	return nil
}

func printDegraded(writer io.Writer, d *vscan.Degraded) {
	if d.DatabaseUnavailable {
		fmt.Fprintln(writer, "Warning: pattern database unavailable, pattern matches may be missing")
	}
	if d.StaticUnavailable {
		fmt.Fprintln(writer, "Warning: static analysis unavailable")
	}
	if d.CrawlTimedOut {
		fmt.Fprintln(writer, "Warning: crawl stopped at its time budget")
	}
	if d.ProbeTimedOut {
		fmt.Fprintln(writer, "Warning: probe stopped at its time budget")
	}
}

func summary(unique []*Entry) string {
	counts := make(map[vscan.Risk]int)
	for _, f := range unique {
		counts[f.Risk]++
	}
	return fmt.Sprintf("%d unique findings: %d High, %d Medium, %d Low",
		len(unique), counts[vscan.RiskHigh], counts[vscan.RiskMedium], counts[vscan.RiskLow])
}

func orNA(s string) string {
	if s == "" {
		return vscan.NotApplicable
	}
	return s
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return s
}

type jsonFinding struct {
	Kind        string   `json:"kind"`
	Source      string   `json:"source"`
	RefID       string   `json:"ref_id,omitempty"`
	Location    string   `json:"location"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Risk        string   `json:"risk"`
	Score       *float64 `json:"score,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
	Count       int      `json:"count"`
}

type jsonResult struct {
	ID        string         `json:"id"`
	Type      vscan.ScanType `json:"type"`
	Target    string         `json:"target"`
	Mode      vscan.Mode     `json:"mode,omitempty"`
	StartedAt string         `json:"started_at"`
	Seconds   float64        `json:"duration_seconds"`
	Degraded  vscan.Degraded `json:"degraded"`
	Findings  []*jsonFinding `json:"findings"`
}

func (r *Reporter) printJSON(writer io.Writer) error {
	out := make([]*jsonResult, 0, len(r.results))
	for _, result := range r.results {
		jr := &jsonResult{
			ID:        result.ID,
			Type:      result.Type,
			Target:    result.Target,
			Mode:      result.Mode,
			StartedAt: result.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			Seconds:   result.Duration.Seconds(),
			Degraded:  result.Degraded,
			Findings:  make([]*jsonFinding, 0),
		}
		for _, f := range Unique(result) {
			jr.Findings = append(jr.Findings, &jsonFinding{
				Kind:        f.Kind.String(),
				Source:      f.Source,
				RefID:       f.RefID,
				Location:    f.Location.String(),
				Title:       f.Title,
				Description: f.Description,
				Risk:        f.Risk.String(),
				Score:       f.Score,
				Evidence:    f.Evidence,
				Count:       f.Count,
			})
		}
		out = append(out, jr)
	}

	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vulnscan/scanner/report"
	"gitlab.com/vulnscan/vscan"
)

func testResult() *vscan.ScanResult {
	xss := &vscan.Finding{Kind: vscan.DastAlert, Source: "zap", RefID: "40012", Title: "Cross Site Scripting",
		Location: vscan.Location{URL: "http://example.test/?q=1", Param: "q"}, Risk: vscan.RiskHigh}
	header := &vscan.Finding{Kind: vscan.DastAlert, Source: "zap", RefID: "10021", Title: "Header Missing",
		Location: vscan.Location{URL: "http://example.test/"}, Risk: vscan.RiskLow}
	dup := *xss
	return &vscan.ScanResult{
		ID:        "scan-1",
		Type:      vscan.URLScan,
		Target:    "http://example.test",
		Mode:      vscan.ModeQuick,
		StartedAt: time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:  90 * time.Second,
		Findings:  []*vscan.Finding{header, xss, &dup},
		Degraded:  vscan.Degraded{CrawlTimedOut: true},
	}
}

func TestUnique(t *testing.T) {
	unique := report.Unique(testResult())
	require.Len(t, unique, 2)
	assert.Equal(t, "40012", unique[0].RefID)
	assert.Equal(t, 2, unique[0].Count)
	assert.Equal(t, "10021", unique[1].RefID)
	assert.Equal(t, 1, unique[1].Count)
}

func TestUniqueKeepsDistinctLines(t *testing.T) {
	result := &vscan.ScanResult{Findings: []*vscan.Finding{
		{Kind: vscan.PatternMatch, RefID: "CVE-X", Location: vscan.Location{Path: "a.py", Line: 1}, Evidence: "eval(a)"},
		{Kind: vscan.PatternMatch, RefID: "CVE-X", Location: vscan.Location{Path: "a.py", Line: 2}, Evidence: "eval(a)"},
	}}
	assert.Len(t, report.Unique(result), 2)
}

func TestPrintText(t *testing.T) {
	r := report.New(report.Text)
	r.Add(testResult())
	r.Add(&vscan.ScanResult{ID: "scan-2", Type: vscan.FileScan, Target: "empty.py"})

	buf := &bytes.Buffer{}
	require.NoError(t, r.Print(buf))
	out := buf.String()

	assert.Contains(t, out, "Scan scan-1 (url) http://example.test")
	assert.Contains(t, out, "Mode: quick")
	assert.Contains(t, out, "crawl stopped at its time budget")
	assert.Contains(t, out, "http://example.test/?q=1 [q]")
	assert.Contains(t, out, "2 unique findings: 1 High, 0 Medium, 1 Low")
	assert.Contains(t, out, "No findings")
	assert.Less(t, strings.Index(out, "Cross Site Scripting"), strings.Index(out, "Header Missing"))
}

func TestPrintTextTruncatesOnRunes(t *testing.T) {
	evidence := strings.Repeat("a", 76) + "日本語のエビデンス"
	r := report.New(report.Text)
	r.Add(&vscan.ScanResult{ID: "scan-3", Type: vscan.FileScan, Target: "a.py", Findings: []*vscan.Finding{
		{Kind: vscan.PatternMatch, RefID: "CVE-X", Location: vscan.Location{Path: "a.py", Line: 1}, Evidence: evidence, Risk: vscan.RiskHigh},
	}})

	buf := &bytes.Buffer{}
	require.NoError(t, r.Print(buf))
	out := buf.String()

	assert.True(t, utf8.ValidString(out), "report must stay valid utf-8")
	assert.Contains(t, out, strings.Repeat("a", 76)+"日...")
	assert.NotContains(t, out, "日本")
}

func TestPrintJSON(t *testing.T) {
	r := report.New(report.JSON)
	r.Add(testResult())

	buf := &bytes.Buffer{}
	require.NoError(t, r.Print(buf))

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "scan-1", out[0]["id"])
	assert.Equal(t, 90.0, out[0]["duration_seconds"])

	findings := out[0]["findings"].([]interface{})
	require.Len(t, findings, 2)
	first := findings[0].(map[string]interface{})
	assert.Equal(t, "High", first["risk"])
	assert.Equal(t, "dast", first["kind"])
	assert.Equal(t, 2.0, first["count"])
}

func TestParseFormat(t *testing.T) {
	f, err := report.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, report.Text, f)

	f, err = report.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, report.JSON, f)

	_, err = report.ParseFormat("xml")
	assert.Error(t, err)
}

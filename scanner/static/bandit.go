// Package static consumes static analysis tool output and scores each issue
package static

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/scanner/severity"
	"gitlab.com/vulnscan/vscan"
)

// ErrToolMissing is returned when the analysis tool is not installed
var ErrToolMissing = errors.New("static analysis tool not found")

// Issue is one record of bandit's JSON output
type Issue struct {
	Filename   string `json:"filename"`
	Line       int    `json:"line_number"`
	Text       string `json:"issue_text"`
	Severity   string `json:"issue_severity"`
	Confidence string `json:"issue_confidence"`
	TestID     string `json:"test_id"`
	TestName   string `json:"test_name"`
	Code       string `json:"code"`
}

type banditReport struct {
	Results []*Issue `json:"results"`
}

// Parse bandit's JSON report
func Parse(r io.Reader) ([]*Issue, error) {
	report := &banditReport{}
	if err := json.NewDecoder(r).Decode(report); err != nil {
		return nil, errors.Wrap(err, "decoding bandit report")
	}
	return report.Results, nil
}

// ToFinding scores an issue by its severity and confidence
func (i *Issue) ToFinding(source string) *vscan.Finding {
	score, risk := severity.Score(i.Severity, i.Confidence)
	title := i.TestName
	if title == "" {
		title = i.TestID
	}
	return &vscan.Finding{
		Kind:        vscan.StaticIssue,
		Source:      source,
		RefID:       i.TestID,
		Location:    vscan.Location{Path: i.Filename, Line: i.Line},
		Title:       title,
		Description: i.Text,
		Risk:        risk,
		Score:       vscan.Float(score),
		Evidence:    codeLine(i.Code, i.Line),
	}
}

// codeLine picks the flagged line out of bandit's numbered code snippet
func codeLine(code string, line int) string {
	number := strconv.Itoa(line) + " "
	for _, l := range strings.Split(code, "\n") {
		if strings.HasPrefix(l, number) {
			return strings.TrimSpace(strings.TrimPrefix(l, number))
		}
	}
	return strings.TrimSpace(code)
}

// Bandit runs the bandit CLI
type Bandit struct {
	command string
	exec    func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewBandit using command (usually just "bandit")
func NewBandit(command string) *Bandit {
	if command == "" {
		command = "bandit"
	}
	return &Bandit{command: command, exec: exec.CommandContext}
}

// Name of the analyzer
func (b *Bandit) Name() string {
	return "bandit"
}

// Analyze runs bandit over path and scores every issue it reports
func (b *Bandit) Analyze(ctx context.Context, path string) ([]*vscan.Finding, error) {
	if _, err := exec.LookPath(b.command); err != nil {
		return nil, errors.Wrap(ErrToolMissing, b.command)
	}

	var stdout, stderr bytes.Buffer
	cmd := b.exec(ctx, b.command, "-f", "json", "-q", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// bandit exits 1 when it found issues
	runErr := cmd.Run()
	if stdout.Len() == 0 {
		if runErr == nil {
			runErr = errors.New("no output")
		}
		return nil, errors.Wrapf(runErr, "bandit failed: %s", strings.TrimSpace(stderr.String()))
	}

	issues, err := Parse(&stdout)
	if err != nil {
		return nil, err
	}

	findings := make([]*vscan.Finding, 0, len(issues))
	for _, issue := range issues {
		log.Debug().Str("file", issue.Filename).Int("line", issue.Line).Str("issue", issue.Text).Msg("static issue")
		findings = append(findings, issue.ToFinding(b.Name()))
	}
	return findings, nil
}

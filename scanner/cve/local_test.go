package cve_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/vulnscan/scanner/cve"
	"gitlab.com/vulnscan/vscan"
)

func writeDB(t *testing.T, name, contents string) string {
	dir, err := ioutil.TempDir("", "cvedb")
	if err != nil {
		t.Fatalf("error creating tempdir: %s\n", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, name)
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("error writing db: %s\n", err)
	}
	return path
}

func artifact(contents string) *vscan.Artifact {
	return &vscan.Artifact{Path: "app.py", Lines: strings.Split(contents, "\n")}
}

func TestLocalMatchSingleLine(t *testing.T) {
	path := writeDB(t, "db.json", `[{"id":"CVE-X","description":"eval","patterns":["eval\\("],"cvss_score":8.0,"risk":"High"}]`)
	m := cve.NewLocalMatcher(path)

	findings, err := m.FindCVEs(context.Background(), artifact("password = input()\neval(x)"))
	if err != nil {
		t.Fatalf("unexpected error: %s\n", err)
	}

	if len(findings) != 1 {
		t.Fatalf("expected 1 finding got %d\n", len(findings))
	}
	f := findings[0]
	if f.RefID != "CVE-X" || f.Location.Line != 2 {
		t.Fatalf("expected CVE-X at line 2 got %s at %d\n", f.RefID, f.Location.Line)
	}
	if f.Kind != vscan.PatternMatch || f.Risk != vscan.RiskHigh || f.Evidence != "eval(x)" {
		t.Fatalf("unexpected finding %#v\n", f)
	}
	if f.Score == nil || *f.Score != 8.0 {
		t.Fatalf("expected baseline score to be passed through")
	}
}

func TestLocalMatchCaseInsensitiveAndNoDedupe(t *testing.T) {
	path := writeDB(t, "db.json", `[
		{"id":"A","patterns":["EVAL\\(","eval"]},
		{"id":"B","patterns":["exec"]}
	]`)
	m := cve.NewLocalMatcher(path)

	findings, err := m.FindCVEs(context.Background(), artifact("  Eval(exec(y))  \nprint(1)"))
	if err != nil {
		t.Fatalf("unexpected error: %s\n", err)
	}
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings got %d\n", len(findings))
	}

	order := []string{"A", "A", "B"}
	for i, f := range findings {
		if f.RefID != order[i] {
			t.Fatalf("finding %d expected %s got %s\n", i, order[i], f.RefID)
		}
		if f.Location.Line != 1 || f.Evidence != "Eval(exec(y))" {
			t.Fatalf("bad location/evidence %v %q\n", f.Location, f.Evidence)
		}
	}
	// defaults for missing metadata
	if findings[0].Risk != vscan.RiskMedium || findings[0].Score != nil || findings[0].Description == "" {
		t.Fatalf("expected defaults got %#v\n", findings[0])
	}
}

func TestLocalMatchOrderIsStable(t *testing.T) {
	db, err := cve.Load("")
	if err != nil {
		t.Fatalf("error loading bundled db: %s\n", err)
	}
	a := artifact("import pickle\nos.system(cmd)\neval(pickle.loads(x))\nsubprocess.call(c, shell=True)")

	first := cve.Match(context.Background(), db, a)
	for i := 0; i < 10; i++ {
		again := cve.Match(context.Background(), db, a)
		if len(again) != len(first) {
			t.Fatalf("match count changed %d != %d\n", len(again), len(first))
		}
		for j := range first {
			if first[j].RefID != again[j].RefID || first[j].Location != again[j].Location {
				t.Fatalf("order changed at %d\n", j)
			}
		}
	}
}

func TestEveryMatchCitesMatchingPattern(t *testing.T) {
	db, err := cve.Load("")
	if err != nil {
		t.Fatalf("error loading bundled db: %s\n", err)
	}
	lines := []string{
		"data = yaml.load(stream)",
		"PASSWORD = 'hunter2'",
		"result = EVAL(expr)",
		"nothing to see",
		"pickle.load(f)",
	}
	a := &vscan.Artifact{Path: "x.py", Lines: lines}

	byID := make(map[string]*vscan.VulnerabilityPattern)
	for _, p := range db.Patterns {
		byID[p.ID] = p
	}

	findings := cve.Match(context.Background(), db, a)
	if len(findings) == 0 {
		t.Fatalf("expected matches against bundled db")
	}
	for _, f := range findings {
		p, ok := byID[f.RefID]
		if !ok {
			t.Fatalf("finding cites unknown pattern %s\n", f.RefID)
		}
		line := lines[f.Location.Line-1]
		matched := false
		for _, expr := range p.Patterns {
			if regexp.MustCompile("(?i)" + expr).MatchString(line) {
				matched = true
			}
		}
		if !matched {
			t.Fatalf("%s does not match line %q\n", f.RefID, line)
		}
	}
}

func TestLocalMissingDatabase(t *testing.T) {
	m := cve.NewLocalMatcher("does/not/exist.json")
	findings, err := m.FindCVEs(context.Background(), artifact("eval(x)"))
	if !errors.Is(err, vscan.ErrDatabaseUnavailable) {
		t.Fatalf("expected database unavailable got %v\n", err)
	}
	if findings == nil || len(findings) != 0 {
		t.Fatalf("expected empty findings")
	}
}

func TestLocalCorruptDatabase(t *testing.T) {
	path := writeDB(t, "db.json", `{"id": not json`)
	_, err := cve.NewLocalMatcher(path).FindCVEs(context.Background(), artifact("eval(x)"))
	if !errors.Is(err, vscan.ErrDatabaseUnavailable) {
		t.Fatalf("expected database unavailable got %v\n", err)
	}
}

func TestLoadSkipsBadEntries(t *testing.T) {
	path := writeDB(t, "db.json", `["junk", {"id":"OK","patterns":["([bad", "good"],"cvss_score":"N/A"}]`)
	db, err := cve.Load(path)
	if err != nil {
		t.Fatalf("error loading: %s\n", err)
	}
	if len(db.Patterns) != 1 {
		t.Fatalf("expected 1 pattern got %d\n", len(db.Patterns))
	}
	if len(db.Patterns[0].Compiled()) != 1 {
		t.Fatalf("expected invalid expression to be skipped")
	}
	if db.Patterns[0].Score != nil {
		t.Fatalf("expected N/A score to be absent")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeDB(t, "db.yaml", `
- id: CVE-Y
  description: yaml entry
  patterns:
    - md5\(
  cvss_score: 5
  risk: low
`)
	db, err := cve.Load(path)
	if err != nil {
		t.Fatalf("error loading: %s\n", err)
	}
	if len(db.Patterns) != 1 || db.Patterns[0].ID != "CVE-Y" {
		t.Fatalf("unexpected patterns %#v\n", db.Patterns)
	}
	if db.Patterns[0].Score == nil || *db.Patterns[0].Score != 5 {
		t.Fatalf("expected score 5")
	}

	findings := cve.Match(context.Background(), db, artifact("h = MD5(data)"))
	if len(findings) != 1 || findings[0].Risk != vscan.RiskLow {
		t.Fatalf("expected one low finding got %d\n", len(findings))
	}
}

package store_test

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/vulnscan/store"
	"gitlab.com/vulnscan/vscan"
)

func testStore(t *testing.T) *store.ResultStore {
	dir, err := ioutil.TempDir("", "results")
	if err != nil {
		t.Fatalf("error opening testdir: %s\n", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s := store.NewResultStore(dir)
	if err := s.Init(); err != nil {
		t.Fatalf("error init store: %s\n", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult(id string, started time.Time) *vscan.ScanResult {
	return &vscan.ScanResult{
		ID:        id,
		Type:      vscan.FileScan,
		Target:    "app.py",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Findings: []*vscan.Finding{
			{
				Kind:     vscan.PatternMatch,
				Source:   "patterns",
				RefID:    "CVE-X",
				Location: vscan.Location{Path: "app.py", Line: 2},
				Risk:     vscan.RiskHigh,
				Score:    vscan.Float(7.5),
				Evidence: "eval(x)",
			},
		},
		Degraded: vscan.Degraded{StaticUnavailable: true, Warnings: []string{"bandit not found"}},
	}
}

func TestSaveGet(t *testing.T) {
	s := testStore(t)
	result := testResult("abc", time.Now())

	if err := s.Save(result); err != nil {
		t.Fatalf("error saving: %s\n", err)
	}

	got, err := s.Get("abc")
	if err != nil {
		t.Fatalf("error reading back result: %s\n", err)
	}
	if got.Target != result.Target || got.Duration != result.Duration || !got.StartedAt.Equal(result.StartedAt) {
		t.Fatalf("%#v != %#v\n", got, result)
	}
	if len(got.Findings) != 1 {
		t.Fatalf("expected 1 finding got %d\n", len(got.Findings))
	}
	f := got.Findings[0]
	if f.Location.Line != 2 || f.Risk != vscan.RiskHigh || *f.Score != 7.5 || f.Evidence != "eval(x)" {
		t.Fatalf("finding did not survive: %#v\n", f)
	}
	if !got.Degraded.StaticUnavailable || len(got.Degraded.Warnings) != 1 {
		t.Fatalf("degraded notes did not survive: %#v\n", got.Degraded)
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.Get("nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found got %v\n", err)
	}
}

func TestListOrdered(t *testing.T) {
	s := testStore(t)
	now := time.Now()

	ids := []string{"third", "first", "second"}
	offsets := []time.Duration{2 * time.Minute, 0, time.Minute}
	for i, id := range ids {
		if err := s.Save(testResult(id, now.Add(offsets[i]))); err != nil {
			t.Fatalf("error saving %s: %s\n", id, err)
		}
	}
	// saving again does not duplicate it
	if err := s.Save(testResult("first", now)); err != nil {
		t.Fatalf("error re-saving: %s\n", err)
	}

	results, err := s.List()
	if err != nil {
		t.Fatalf("error listing: %s\n", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results got %d\n", len(results))
	}
	for i, expected := range []string{"first", "second", "third"} {
		if results[i].ID != expected {
			t.Fatalf("result %d expected %s got %s\n", i, expected, results[i].ID)
		}
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := testStore(t)
	if err := s.Save(&vscan.ScanResult{}); err == nil {
		t.Fatalf("expected error saving result without id")
	}
}

func TestKeys(t *testing.T) {
	key := store.MakeKey([]byte("abc"), "scan")
	if string(key) != "scan:abc" {
		t.Fatalf("unexpected key %s\n", key)
	}
	if string(store.GetID(key)) != "abc" || string(store.GetPredicate(key)) != "scan" {
		t.Fatalf("failed to split %s\n", key)
	}
}

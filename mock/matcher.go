package mock

import (
	"context"

	"gitlab.com/vulnscan/vscan"
)

// Matcher is a fake CVE matcher
type Matcher struct {
	FindCVEsFn     func(ctx context.Context, artifact *vscan.Artifact) ([]*vscan.Finding, error)
	FindCVEsCalled bool
}

// MakeMockMatcher that finds nothing
func MakeMockMatcher() *Matcher {
	m := &Matcher{}
	m.FindCVEsFn = func(ctx context.Context, artifact *vscan.Artifact) ([]*vscan.Finding, error) {
		return []*vscan.Finding{}, nil
	}
	return m
}

func (m *Matcher) Name() string {
	return "mock"
}

func (m *Matcher) FindCVEs(ctx context.Context, artifact *vscan.Artifact) ([]*vscan.Finding, error) {
	m.FindCVEsCalled = true
	return m.FindCVEsFn(ctx, artifact)
}

// Analyzer is a fake static analyzer
type Analyzer struct {
	AnalyzeFn     func(ctx context.Context, path string) ([]*vscan.Finding, error)
	AnalyzeCalled bool
}

func (a *Analyzer) Name() string {
	return "mock-static"
}

func (a *Analyzer) Analyze(ctx context.Context, path string) ([]*vscan.Finding, error) {
	a.AnalyzeCalled = true
	return a.AnalyzeFn(ctx, path)
}

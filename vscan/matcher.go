package vscan

import "context"

// CVEMatcher finds known vulnerabilities in an artifact.
// Returning ErrDatabaseUnavailable alongside an empty result is not a scan failure.
type CVEMatcher interface {
	Name() string
	FindCVEs(ctx context.Context, artifact *Artifact) ([]*Finding, error)
}

// StaticAnalyzer runs a static analysis tool over a path
type StaticAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, path string) ([]*Finding, error)
}

package cve

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

// LocalName is the source name of local pattern matches
const LocalName = "patterns"

// LocalMatcher matches artifacts against a pattern database on disk
type LocalMatcher struct {
	path string
}

// NewLocalMatcher for the database at path, empty for the bundled one
func NewLocalMatcher(path string) *LocalMatcher {
	return &LocalMatcher{path: path}
}

// Name of the matcher
func (m *LocalMatcher) Name() string {
	return LocalName
}

// FindCVEs loads the database and matches it against the artifact. If the database
// can not be loaded an empty result is returned along with ErrDatabaseUnavailable.
func (m *LocalMatcher) FindCVEs(ctx context.Context, artifact *vscan.Artifact) ([]*vscan.Finding, error) {
	db, err := Load(m.path)
	if err != nil {
		log.Warn().Err(err).Msg("pattern database unavailable")
		return []*vscan.Finding{}, vscan.WithKind(vscan.ErrDatabaseUnavailable, err)
	}
	return Match(ctx, db, artifact), nil
}

// Match every pattern against every line. Results are ordered by pattern,
// then expression, then line.
func Match(ctx context.Context, db *Database, artifact *vscan.Artifact) []*vscan.Finding {
	findings := make([]*vscan.Finding, 0)
	for _, p := range db.Patterns {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("pattern matching cancelled")
			return findings
		}

		risk, ok := vscan.ParseRisk(p.Risk)
		if !ok {
			risk = vscan.RiskMedium
		}

		for _, re := range p.Compiled() {
			for i, line := range artifact.Lines {
				if !re.MatchString(line) {
					continue
				}
				findings = append(findings, &vscan.Finding{
					Kind:        vscan.PatternMatch,
					Source:      LocalName,
					RefID:       p.ID,
					Location:    vscan.Location{Path: artifact.Path, Line: i + 1},
					Title:       p.ID,
					Description: p.Description,
					Risk:        risk,
					Score:       p.Score,
					Evidence:    strings.TrimSpace(line),
				})
			}
		}
	}
	log.Info().Str("artifact", artifact.Path).Int("matches", len(findings)).Msg("pattern matching complete")
	return findings
}

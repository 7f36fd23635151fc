package vscan

import "regexp"

// VulnerabilityPattern is one entry of the pattern database
type VulnerabilityPattern struct {
	ID          string
	Description string
	Patterns    []string
	Score       *float64
	Risk        string

	compiled []*regexp.Regexp
}

// Compiled returns the case insensitive regular expressions for this pattern, set by SetCompiled
func (p *VulnerabilityPattern) Compiled() []*regexp.Regexp {
	return p.compiled
}

// SetCompiled is called once by the database loader
func (p *VulnerabilityPattern) SetCompiled(res []*regexp.Regexp) {
	p.compiled = res
}

// Artifact is a text file split into lines
type Artifact struct {
	Path  string
	Lines []string
}

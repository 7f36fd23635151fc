package cve

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobuffalo/packr/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
	"gopkg.in/yaml.v3"
)

// BundledName of the database shipped with the binary
const BundledName = "cve_database.json"

var bundled = packr.New("cve-patterns", "./data")

// Database of vulnerability patterns, read only once loaded
type Database struct {
	Source   string
	Patterns []*vscan.VulnerabilityPattern
}

type rawPattern struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description" yaml:"description"`
	Patterns    []string    `json:"patterns" yaml:"patterns"`
	Score       interface{} `json:"cvss_score" yaml:"cvss_score"`
	Risk        string      `json:"risk" yaml:"risk"`
}

// Load the database at path, or the bundled database if path is empty.
// Files ending in .yaml or .yml are read as YAML, everything else as JSON.
func Load(path string) (*Database, error) {
	var data []byte
	var err error

	source := path
	if path == "" {
		source = "bundled:" + BundledName
		data, err = bundled.Find(BundledName)
	} else {
		data, err = ioutil.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading pattern database %s", source)
	}

	var entries []interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing pattern database %s", source)
	}

	db := &Database{Source: source, Patterns: make([]*vscan.VulnerabilityPattern, 0, len(entries))}
	for i, entry := range entries {
		raw, ok := decodeEntry(entry)
		if !ok {
			log.Warn().Int("index", i).Str("source", source).Msg("skipping malformed pattern entry")
			continue
		}
		db.Patterns = append(db.Patterns, compile(raw))
	}
	log.Info().Str("source", source).Int("patterns", len(db.Patterns)).Msg("loaded pattern database")
	return db, nil
}

// decodeEntry re-encodes a generic entry so JSON and YAML share one decoder
func decodeEntry(entry interface{}) (*rawPattern, bool) {
	switch entry.(type) {
	case map[string]interface{}:
	default:
		return nil, false
	}
	bytez, err := json.Marshal(entry)
	if err != nil {
		return nil, false
	}
	raw := &rawPattern{}
	if err := json.Unmarshal(bytez, raw); err != nil {
		return nil, false
	}
	return raw, true
}

func compile(raw *rawPattern) *vscan.VulnerabilityPattern {
	p := &vscan.VulnerabilityPattern{
		ID:          raw.ID,
		Description: raw.Description,
		Patterns:    raw.Patterns,
		Score:       parseScore(raw.Score),
		Risk:        raw.Risk,
	}
	if p.ID == "" {
		p.ID = "Unknown"
	}
	if p.Description == "" {
		p.Description = "No description available"
	}
	if p.Risk == "" {
		p.Risk = "Medium"
	}

	compiled := make([]*regexp.Regexp, 0, len(raw.Patterns))
	for _, expr := range raw.Patterns {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			log.Warn().Err(err).Str("id", p.ID).Str("pattern", expr).Msg("skipping invalid pattern")
			continue
		}
		compiled = append(compiled, re)
	}
	p.SetCompiled(compiled)
	return p
}

func parseScore(v interface{}) *float64 {
	switch score := v.(type) {
	case float64:
		return vscan.Float(score)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(score), 64)
		if err != nil {
			return nil
		}
		return vscan.Float(f)
	}
	return nil
}

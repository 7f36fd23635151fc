package cve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
	"golang.org/x/time/rate"
)

// RemoteName is the source name of remote keyword matches
const RemoteName = "nvd"

// RemoteMatcher searches a remote CVE service for keywords found in the artifact.
// Requests are spaced by at least Delay.
type RemoteMatcher struct {
	endpoint string
	keywords []string
	results  int
	client   *http.Client
	limiter  *rate.Limiter
}

// NewRemoteMatcher for the NVD CVE API at endpoint
func NewRemoteMatcher(endpoint string, keywords []string, delay time.Duration, results int) *RemoteMatcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if results <= 0 {
		results = 20
	}
	return &RemoteMatcher{
		endpoint: endpoint,
		keywords: keywords,
		results:  results,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Name of the matcher
func (m *RemoteMatcher) Name() string {
	return RemoteName
}

type nvdResponse struct {
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		V31 []nvdMetric `json:"cvssMetricV31"`
		V30 []nvdMetric `json:"cvssMetricV30"`
		V2  []nvdMetric `json:"cvssMetricV2"`
	} `json:"metrics"`
}

type nvdMetric struct {
	BaseSeverity string `json:"baseSeverity"`
	CVSSData     struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
}

// FindCVEs queries every configured keyword that appears in the artifact. Remote
// failures stop the search and are reported as ErrDatabaseUnavailable with whatever
// was found so far.
func (m *RemoteMatcher) FindCVEs(ctx context.Context, artifact *vscan.Artifact) ([]*vscan.Finding, error) {
	findings := make([]*vscan.Finding, 0)
	for _, keyword := range m.presentKeywords(artifact) {
		if err := m.limiter.Wait(ctx); err != nil {
			return findings, vscan.WithKind(vscan.ErrDatabaseUnavailable, err)
		}

		cves, err := m.search(ctx, keyword)
		if err != nil {
			log.Warn().Err(err).Str("keyword", keyword).Msg("remote cve search failed")
			return findings, vscan.WithKind(vscan.ErrDatabaseUnavailable, err)
		}

		for _, c := range cves {
			findings = append(findings, m.toFinding(artifact, keyword, c))
		}
	}
	log.Info().Str("artifact", artifact.Path).Int("matches", len(findings)).Msg("remote cve search complete")
	return findings, nil
}

// presentKeywords returns keywords contained (case insensitively) in any line, in config order
func (m *RemoteMatcher) presentKeywords(artifact *vscan.Artifact) []string {
	present := make([]string, 0)
	for _, keyword := range m.keywords {
		lowered := strings.ToLower(strings.TrimSpace(keyword))
		if lowered == "" {
			continue
		}
		for _, line := range artifact.Lines {
			if strings.Contains(strings.ToLower(line), lowered) {
				present = append(present, keyword)
				break
			}
		}
	}
	return present
}

func (m *RemoteMatcher) search(ctx context.Context, keyword string) ([]nvdCVE, error) {
	query := url.Values{}
	query.Set("keywordSearch", keyword)
	query.Set("resultsPerPage", strconv.Itoa(m.results))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("cve search returned status %d", resp.StatusCode)
	}

	result := &nvdResponse{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, errors.Wrap(err, "decoding cve search response")
	}
	cves := make([]nvdCVE, 0, len(result.Vulnerabilities))
	for _, v := range result.Vulnerabilities {
		cves = append(cves, v.CVE)
	}
	return cves, nil
}

func (m *RemoteMatcher) toFinding(artifact *vscan.Artifact, keyword string, c nvdCVE) *vscan.Finding {
	f := &vscan.Finding{
		Kind:        vscan.PatternMatch,
		Source:      RemoteName,
		RefID:       c.ID,
		Location:    vscan.Location{Path: artifact.Path},
		Title:       c.ID,
		Description: "No description available",
		Risk:        vscan.RiskMedium,
		Evidence:    keyword,
	}
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			f.Description = d.Value
			break
		}
	}

	var metric *nvdMetric
	switch {
	case len(c.Metrics.V31) > 0:
		metric = &c.Metrics.V31[0]
	case len(c.Metrics.V30) > 0:
		metric = &c.Metrics.V30[0]
	case len(c.Metrics.V2) > 0:
		metric = &c.Metrics.V2[0]
	}
	if metric != nil {
		f.Score = vscan.Float(metric.CVSSData.BaseScore)
		label := metric.CVSSData.BaseSeverity
		if label == "" {
			label = metric.BaseSeverity
		}
		if risk, ok := vscan.ParseRisk(label); ok {
			f.Risk = risk
		}
	}
	return f
}

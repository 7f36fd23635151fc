package cve_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vulnscan/scanner/cve"
	"gitlab.com/vulnscan/vscan"
)

const nvdBody = `{
  "resultsPerPage": 1,
  "vulnerabilities": [{
    "cve": {
      "id": "CVE-2020-1747",
      "descriptions": [{"lang": "es", "value": "no"}, {"lang": "en", "value": "PyYAML full_load code execution"}],
      "metrics": {"cvssMetricV31": [{"cvssData": {"baseScore": 9.8, "baseSeverity": "CRITICAL"}}]}
    }
  }]
}`

func testNVD(t *testing.T, status int) (*httptest.Server, *[]string, *[]time.Time) {
	gin.SetMode(gin.TestMode)
	var mu sync.Mutex
	keywords := make([]string, 0)
	times := make([]time.Time, 0)

	router := gin.New()
	router.GET("/cves", func(c *gin.Context) {
		mu.Lock()
		keywords = append(keywords, c.Query("keywordSearch"))
		times = append(times, time.Now())
		mu.Unlock()
		c.Data(status, "application/json", []byte(nvdBody))
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, &keywords, &times
}

func TestRemoteMatcher(t *testing.T) {
	srv, keywords, times := testNVD(t, http.StatusOK)
	delay := 50 * time.Millisecond
	m := cve.NewRemoteMatcher(srv.URL+"/cves", []string{"yaml", "flask", "Pickle"}, delay, 5)

	findings, err := m.FindCVEs(context.Background(), artifact("import YAML\nimport pickle"))
	require.NoError(t, err)

	assert.Equal(t, []string{"yaml", "Pickle"}, *keywords)
	require.Len(t, findings, 2)

	f := findings[0]
	assert.Equal(t, "CVE-2020-1747", f.RefID)
	assert.Equal(t, vscan.RiskHigh, f.Risk)
	assert.Equal(t, "PyYAML full_load code execution", f.Description)
	assert.Equal(t, "app.py:N/A", f.Location.String())
	require.NotNil(t, f.Score)
	assert.Equal(t, 9.8, *f.Score)

	gap := (*times)[1].Sub((*times)[0])
	assert.True(t, gap >= delay-5*time.Millisecond, "requests were %s apart", gap)
}

func TestRemoteMatcherFailure(t *testing.T) {
	srv, _, _ := testNVD(t, http.StatusForbidden)
	m := cve.NewRemoteMatcher(srv.URL+"/cves", []string{"yaml"}, 0, 5)

	findings, err := m.FindCVEs(context.Background(), artifact("yaml.load(x)"))
	assert.True(t, errors.Is(err, vscan.ErrDatabaseUnavailable))
	assert.Empty(t, findings)
}

func TestRemoteMatcherNoKeywords(t *testing.T) {
	srv, keywords, _ := testNVD(t, http.StatusOK)
	m := cve.NewRemoteMatcher(srv.URL+"/cves", []string{"django"}, 0, 5)

	findings, err := m.FindCVEs(context.Background(), artifact("print(1)"))
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Empty(t, *keywords)
}

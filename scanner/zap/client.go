// Package zap talks to the ZAP daemon's JSON api
package zap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

// Name of this engine in findings
const Name = "zap"

const alertPageSize = 500

// APIError is returned when zap rejects a call
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zap api error %d %s: %s", e.Status, e.Code, e.Message)
}

var _ vscan.Engine = (*Client)(nil)

// Client for the ZAP api, the api key is disabled and access limited to loopback
type Client struct {
	base   string
	client *http.Client
}

// New client for the daemon listening on addr (host:port)
func New(addr string, timeout time.Duration) *Client {
	return &Client{
		base:   "http://" + addr,
		client: &http.Client{Timeout: timeout},
	}
}

// call GETs /JSON/<component>/<kind>/<name>/ and decodes the response into out
func (c *Client) call(ctx context.Context, component, kind, name string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/JSON/%s/%s/%s/", c.base, component, kind, name)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s/%s", component, name)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return errors.Wrapf(err, "reading %s/%s", component, name)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(body, out), "decoding %s/%s", component, name)
}

func (c *Client) action(ctx context.Context, component, name string, params url.Values) error {
	return c.call(ctx, component, "action", name, params, nil)
}

func integer(v int) url.Values {
	return url.Values{"Integer": []string{strconv.Itoa(v)}}
}

// minutes rounds up, zero stays zero (unlimited)
func minutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

// Version of the engine, used as the readiness probe
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "core", "view", "version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// AccessURL has zap request the target so passive scanning sees it
func (c *Client) AccessURL(ctx context.Context, target string) error {
	return c.action(ctx, "core", "accessUrl", url.Values{"url": []string{target}, "followRedirects": []string{"true"}})
}

// ConfigureCrawl sets the spider depth and duration
func (c *Client) ConfigureCrawl(ctx context.Context, maxDepth int, maxDuration time.Duration) error {
	if err := c.action(ctx, "spider", "setOptionMaxDepth", integer(maxDepth)); err != nil {
		return err
	}
	return c.action(ctx, "spider", "setOptionMaxDuration", integer(minutes(maxDuration)))
}

// StartCrawl spiders the target and returns the scan id
func (c *Client) StartCrawl(ctx context.Context, target string) (string, error) {
	var out struct {
		Scan string `json:"scan"`
	}
	if err := c.call(ctx, "spider", "action", "scan", url.Values{"url": []string{target}}, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

// CrawlProgress in percent
func (c *Client) CrawlProgress(ctx context.Context, id string) (int, error) {
	return c.status(ctx, "spider", id)
}

// StopCrawl stops the spider
func (c *Client) StopCrawl(ctx context.Context, id string) error {
	return c.action(ctx, "spider", "stop", url.Values{"scanId": []string{id}})
}

// ConfigureProbe sets the active scan duration and threads per host
func (c *Client) ConfigureProbe(ctx context.Context, maxDuration time.Duration, threadsPerHost int) error {
	if err := c.action(ctx, "ascan", "setOptionMaxScanDurationInMins", integer(minutes(maxDuration))); err != nil {
		return err
	}
	return c.action(ctx, "ascan", "setOptionThreadPerHost", integer(threadsPerHost))
}

// StartProbe actively scans the target and returns the scan id
func (c *Client) StartProbe(ctx context.Context, target string, recurse bool) (string, error) {
	var out struct {
		Scan string `json:"scan"`
	}
	params := url.Values{"url": []string{target}, "recurse": []string{strconv.FormatBool(recurse)}}
	if err := c.call(ctx, "ascan", "action", "scan", params, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

// ProbeProgress in percent
func (c *Client) ProbeProgress(ctx context.Context, id string) (int, error) {
	return c.status(ctx, "ascan", id)
}

// StopProbe stops the active scan
func (c *Client) StopProbe(ctx context.Context, id string) error {
	return c.action(ctx, "ascan", "stop", url.Values{"scanId": []string{id}})
}

func (c *Client) status(ctx context.Context, component, id string) (int, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, component, "view", "status", url.Values{"scanId": []string{id}}, &out); err != nil {
		return 0, err
	}
	progress, err := strconv.Atoi(out.Status)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s status %q", component, out.Status)
	}
	return progress, nil
}

// Alerts returns every alert zap has raised. No baseurl filter is sent so
// alerts on redirected hosts are kept.
func (c *Client) Alerts(ctx context.Context) ([]*vscan.Alert, error) {
	alerts := make([]*vscan.Alert, 0)
	for start := 0; ; start += alertPageSize {
		params := url.Values{
			"start": []string{strconv.Itoa(start)},
			"count": []string{strconv.Itoa(alertPageSize)},
		}

		var out struct {
			Alerts []*vscan.Alert `json:"alerts"`
		}
		if err := c.call(ctx, "core", "view", "alerts", params, &out); err != nil {
			return nil, err
		}
		alerts = append(alerts, out.Alerts...)
		if len(out.Alerts) < alertPageSize {
			break
		}
	}
	log.Info().Int("alerts", len(alerts)).Msg("retrieved engine alerts")
	return alerts, nil
}

// Shutdown asks zap to exit
func (c *Client) Shutdown(ctx context.Context) error {
	return c.action(ctx, "core", "shutdown", nil)
}

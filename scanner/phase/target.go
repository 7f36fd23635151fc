package phase

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/vulnscan/vscan"
)

// ParseTarget requires an absolute http(s) url with a host
func ParseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, vscan.WithKind(vscan.ErrInvalidTarget, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return nil, vscan.WithKind(vscan.ErrInvalidTarget, errors.Errorf("%q needs a scheme and host", target))
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, vscan.WithKind(vscan.ErrInvalidTarget, errors.Errorf("unsupported scheme %q", u.Scheme))
	}
	return u, nil
}

package elastic

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("elastic: API key is required")
	// ErrInvalidEndpoint is returned when the endpoint is not scheme://host:port.
	ErrInvalidEndpoint = errors.New("elastic: invalid endpoint")
)

// NormalizeEndpoint turns a user supplied endpoint into scheme://host:port.
// A missing scheme defaults to https. When the URL has no port, port is
// used, or 443 for https and 9200 for http when port is zero.
func NormalizeEndpoint(raw string, port int) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, raw)
	}
	if u.Port() == "" {
		if port == 0 {
			port = 9200
			if u.Scheme == "https" {
				port = 443
			}
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%w: bad port in %q", ErrInvalidEndpoint, raw)
	}
	return u.String(), nil
}

package limelight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/tagtune/internal/httputil"
)

// ErrNoDevice is returned when none of the candidate addresses answer.
var ErrNoDevice = errors.New("no camera found")

// DefaultCandidates are the addresses a USB-attached camera shows up on.
var DefaultCandidates = []string{"172.28.0.1", "172.29.0.1"}

// DefaultProbeTimeout bounds each discovery probe.
const DefaultProbeTimeout = 1 * time.Second

// BaseURL formats the API root for a host and port.
func BaseURL(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}

// Discover probes each candidate host in order and returns the base URL of
// the first one that answers at the HTTP level. Any status code counts as
// an answer; only transport failures move on to the next candidate.
func Discover(ctx context.Context, httpClient httputil.HTTPClient, candidates []string, port int, timeout time.Duration) (string, error) {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	for _, host := range candidates {
		base := BaseURL(host, port)
		if err := probe(ctx, httpClient, base, timeout); err != nil {
			logf("no camera at %s: %v", base, err)
			continue
		}
		logf("found camera at %s", base)
		return base, nil
	}
	return "", fmt.Errorf("%w (tried %v)", ErrNoDevice, candidates)
}

func probe(ctx context.Context, httpClient httputil.HTTPClient, base string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+resultsPath, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResultsBytes))
	resp.Body.Close()
	return nil
}

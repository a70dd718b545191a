// Package limelight provides HTTP operations for a Limelight-style fiducial
// camera: pushing pipeline settings and polling detection results.
package limelight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/tagtune/internal/httputil"
	"github.com/banshee-data/tagtune/internal/metrics"
	"github.com/banshee-data/tagtune/internal/monitoring"
	"github.com/banshee-data/tagtune/internal/tune"
)

const (
	// DefaultPort is the port the camera serves its REST API on.
	DefaultPort = 5807

	DefaultApplyTimeout = 2 * time.Second
	DefaultPollTimeout  = 1 * time.Second

	updatePipelinePath = "/update-pipeline"
	resultsPath        = "/results"

	// maxResultsBytes bounds a results body; real payloads are a few KB.
	maxResultsBytes = 1 << 20
)

var logf = monitoring.Component("limelight")

// Client talks to one camera. The base URL is resolved once, before a run
// starts, and never changes afterwards.
type Client struct {
	HTTPClient   httputil.HTTPClient
	BaseURL      string
	ApplyTimeout time.Duration
	PollTimeout  time.Duration
	Metrics      *metrics.Metrics
}

// NewClient creates a client for the camera at baseURL.
func NewClient(httpClient httputil.HTTPClient, baseURL string) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		HTTPClient:   httpClient,
		BaseURL:      baseURL,
		ApplyTimeout: DefaultApplyTimeout,
		PollTimeout:  DefaultPollTimeout,
	}
}

// Apply posts the full settings set to the update-pipeline endpoint. It
// reports whether the camera acknowledged the update with a 2xx status;
// failures are logged and otherwise ignored.
func (c *Client) Apply(ctx context.Context, settings tune.ParameterSet) bool {
	ok := c.apply(ctx, settings)
	c.Metrics.RecordApply(ok)
	return ok
}

func (c *Client) apply(ctx context.Context, settings tune.ParameterSet) bool {
	data, err := json.Marshal(settings)
	if err != nil {
		logf("marshal settings: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.ApplyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+updatePipelinePath, bytes.NewReader(data))
	if err != nil {
		logf("creating request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logf("apply failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logf("apply returned %d: %s", resp.StatusCode, string(body))
		return false
	}
	io.Copy(io.Discard, resp.Body)
	return true
}

// Poll fetches the current detection results. ok is false when the request
// failed or the body was not usable JSON; an empty slice with ok=true means
// the camera answered but saw no markers.
func (c *Client) Poll(ctx context.Context) ([]tune.Fiducial, bool) {
	fiducials, err := c.poll(ctx)
	c.Metrics.RecordPoll(err == nil)
	if err != nil {
		logf("poll failed: %v", err)
		return nil, false
	}
	return fiducials, true
}

func (c *Client) poll(ctx context.Context) ([]tune.Fiducial, error) {
	ctx, cancel := context.WithTimeout(ctx, c.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+resultsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultsBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return ParseFiducials(body)
}

// ParseFiducials extracts marker identities and camera-space translations
// from a results document. Entries without a numeric fID, with fewer than
// three translation components or with a non-numeric depth are skipped.
func ParseFiducials(body []byte) ([]tune.Fiducial, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed results body")
	}

	entries := gjson.GetBytes(body, "Fiducial")
	if !entries.Exists() || !entries.IsArray() {
		return []tune.Fiducial{}, nil
	}

	out := make([]tune.Fiducial, 0, len(entries.Array()))
	entries.ForEach(func(_, fid gjson.Result) bool {
		id := fid.Get("fID")
		if id.Type != gjson.Number {
			return true
		}
		pos := fid.Get("t6t_cs").Array()
		if len(pos) < 3 {
			return true
		}
		if pos[2].Type != gjson.Number {
			return true
		}
		out = append(out, tune.Fiducial{
			ID:       tune.MarkerID(id.Int()),
			Position: [3]float64{pos[0].Float(), pos[1].Float(), pos[2].Float()},
		})
		return true
	})
	return out, nil
}

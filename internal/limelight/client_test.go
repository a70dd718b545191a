package limelight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagtune/internal/httputil"
	"github.com/banshee-data/tagtune/internal/metrics"
	"github.com/banshee-data/tagtune/internal/testutil"
	"github.com/banshee-data/tagtune/internal/tune"
)

func TestParseFiducials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    []tune.Fiducial
		wantErr bool
	}{
		{
			name: "single marker",
			body: `{"Fiducial":[{"fID":20,"t6t_cs":[0.1,-0.2,1.5,0,0,0]}]}`,
			want: []tune.Fiducial{{ID: 20, Position: [3]float64{0.1, -0.2, 1.5}}},
		},
		{
			name: "several markers keep order",
			body: `{"Fiducial":[{"fID":7,"t6t_cs":[0,0,2]},{"fID":24,"t6t_cs":[0,0,1.25,9,9,9]}]}`,
			want: []tune.Fiducial{
				{ID: 7, Position: [3]float64{0, 0, 2}},
				{ID: 24, Position: [3]float64{0, 0, 1.25}},
			},
		},
		{
			name: "missing key means no detections",
			body: `{"v":1}`,
			want: []tune.Fiducial{},
		},
		{
			name: "skips unusable entries",
			body: `{"Fiducial":[
				{"t6t_cs":[0,0,1]},
				{"fID":"x","t6t_cs":[0,0,1]},
				{"fID":20,"t6t_cs":[0,0]},
				{"fID":20},
				{"fID":20,"t6t_cs":[0,0,"far"]},
				{"fID":24,"t6t_cs":[0,0,3]}
			]}`,
			want: []tune.Fiducial{{ID: 24, Position: [3]float64{0, 0, 3}}},
		},
		{
			name:    "malformed body",
			body:    `{"Fiducial":[`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFiducials([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ApplySendsFullSet(t *testing.T) {
	cam := testutil.NewFakeCamera(t)
	m := metrics.New()
	c := NewClient(httputil.NewStandardClient(cam.Server.Client()), cam.URL())
	c.Metrics = m

	settings := tune.RecommendedBaseline().With(tune.Exposure, 800)
	require.True(t, c.Apply(context.Background(), settings))

	applied := cam.Applied()
	require.Len(t, applied, 1)
	assert.Equal(t, settings.Map(), applied[0])
	assert.Equal(t, 1, m.Snapshot().AppliesOK)
}

func TestClient_ApplyFailures(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		cam := testutil.NewFakeCamera(t)
		cam.ApplyStatus = http.StatusInternalServerError
		m := metrics.New()
		c := NewClient(httputil.NewStandardClient(cam.Server.Client()), cam.URL())
		c.Metrics = m

		assert.False(t, c.Apply(context.Background(), tune.RecommendedBaseline()))
		assert.Equal(t, 1, m.Snapshot().AppliesFailed)
	})

	t.Run("transport error", func(t *testing.T) {
		mock := httputil.NewMockHTTPClient()
		mock.DefaultError = errors.New("connection refused")
		c := NewClient(mock, "http://cam")

		assert.False(t, c.Apply(context.Background(), tune.RecommendedBaseline()))
		require.Equal(t, 1, mock.RequestCount())
		req := mock.GetRequest(0)
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "http://cam/update-pipeline", req.URL.String())
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		var sent map[string]float64
		require.NoError(t, json.Unmarshal(mock.GetBody(0), &sent))
		assert.Equal(t, 1200.0, sent["exposure"])
	})

	t.Run("nil metrics", func(t *testing.T) {
		mock := httputil.NewMockHTTPClient()
		mock.AddResponse(http.StatusNoContent, "")
		c := NewClient(mock, "http://cam")

		assert.True(t, c.Apply(context.Background(), tune.RecommendedBaseline()))
	})
}

func TestClient_ApplyTimeout(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	var deadline time.Time
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		deadline, _ = req.Context().Deadline()
		return nil, context.DeadlineExceeded
	}
	c := NewClient(mock, "http://cam")
	c.ApplyTimeout = 50 * time.Millisecond

	before := time.Now()
	assert.False(t, c.Apply(context.Background(), tune.RecommendedBaseline()))
	assert.WithinDuration(t, before.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}

func TestClient_Poll(t *testing.T) {
	cam := testutil.NewFakeCamera(t)
	cam.Results = func(map[string]float64) string {
		return testutil.ResultsBody(testutil.Marker{ID: 20, Depth: 1.5}, testutil.Marker{ID: 3, Depth: 0.9})
	}
	m := metrics.New()
	c := NewClient(httputil.NewStandardClient(cam.Server.Client()), cam.URL())
	c.Metrics = m

	fids, ok := c.Poll(context.Background())
	require.True(t, ok)
	assert.Equal(t, []tune.Fiducial{
		{ID: 20, Position: [3]float64{0, 0, 1.5}},
		{ID: 3, Position: [3]float64{0, 0, 0.9}},
	}, fids)
	assert.Equal(t, 1, m.Snapshot().PollsOK)
}

func TestClient_PollFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*httputil.MockHTTPClient)
	}{
		{"transport error", func(m *httputil.MockHTTPClient) { m.AddErrorResponse(errors.New("timeout")) }},
		{"server error", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusServiceUnavailable, "") }},
		{"malformed json", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusOK, "<html>") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			tt.setup(mock)
			met := metrics.New()
			c := NewClient(mock, "http://cam")
			c.Metrics = met

			fids, ok := c.Poll(context.Background())
			assert.False(t, ok)
			assert.Nil(t, fids)
			assert.Equal(t, 1, met.Snapshot().PollsFailed)
			assert.Equal(t, "http://cam/results", mock.GetRequest(0).URL.String())
		})
	}
}

func TestClient_PollNoMarkers(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"Fiducial":[]}`)
	c := NewClient(mock, "http://cam")

	fids, ok := c.Poll(context.Background())
	assert.True(t, ok)
	assert.Empty(t, fids)
}

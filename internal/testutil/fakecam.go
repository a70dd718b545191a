package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/tagtune/internal/httputil"
)

// Marker is one detection served by FakeCamera.
type Marker struct {
	ID    int
	Depth float64
}

// ResultsBody renders a results document holding the given markers, with a
// zero lateral translation.
func ResultsBody(markers ...Marker) string {
	parts := make([]string, len(markers))
	for i, m := range markers {
		parts[i] = fmt.Sprintf(`{"fID":%d,"t6t_cs":[0,0,%g,0,0,0]}`, m.ID, m.Depth)
	}
	return `{"Fiducial":[` + strings.Join(parts, ",") + `]}`
}

// FakeCamera serves the two endpoints a tuning run uses. Posted settings are
// merged into the current state and recorded; results are produced by
// Results from that state.
type FakeCamera struct {
	Server *httptest.Server

	// Results renders the /results body for the current settings. The
	// default serves no markers.
	Results func(settings map[string]float64) string

	// ApplyStatus is the status code returned for pipeline updates; zero
	// means 200.
	ApplyStatus int

	mu      sync.Mutex
	current map[string]float64
	applied []map[string]float64
	polls   int
}

// NewFakeCamera starts a fake camera that is closed when the test ends.
func NewFakeCamera(t *testing.T) *FakeCamera {
	t.Helper()
	f := &FakeCamera{
		current: make(map[string]float64),
		Results: func(map[string]float64) string { return ResultsBody() },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/update-pipeline", f.handleUpdate)
	mux.HandleFunc("/results", f.handleResults)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the fake camera's base URL.
func (f *FakeCamera) URL() string {
	return f.Server.URL
}

func (f *FakeCamera) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var settings map[string]float64
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	for k, v := range settings {
		f.current[k] = v
	}
	f.applied = append(f.applied, settings)
	status := f.ApplyStatus
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		httputil.WriteJSONError(w, status, "update rejected")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (f *FakeCamera) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f.mu.Lock()
	f.polls++
	snapshot := make(map[string]float64, len(f.current))
	for k, v := range f.current {
		snapshot[k] = v
	}
	render := f.Results
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(render(snapshot)))
}

// Applied returns every settings document posted so far.
func (f *FakeCamera) Applied() []map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]float64, len(f.applied))
	copy(out, f.applied)
	return out
}

// Current returns the merged settings state.
func (f *FakeCamera) Current() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.current))
	for k, v := range f.current {
		out[k] = v
	}
	return out
}

// Polls returns the number of results requests served.
func (f *FakeCamera) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

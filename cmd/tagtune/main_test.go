package main

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/tagtune/internal/config"
	"github.com/banshee-data/tagtune/internal/monitoring"
	"github.com/banshee-data/tagtune/internal/testutil"
)

// fastConfig points discovery at cam and shrinks every window and wait so a
// whole run takes well under a second against the in-process server.
func fastConfig(t *testing.T, cam *testutil.FakeCamera) {
	t.Helper()
	u, err := url.Parse(cam.URL())
	testutil.AssertNoError(t, err)

	body := fmt.Sprintf(`{
  "candidates": [%q],
  "port": %s,
  "baseline_window": 10,
  "escalation_window": 10,
  "coarse_window": 10,
  "fine_window": 10,
  "secondary_window": 10,
  "joint_window": 10,
  "verify_window": 10,
  "verify_rounds": 2,
  "poll_interval": "0s",
  "settle": "0s",
  "final_settle": "0s"
}`, u.Hostname(), u.Port())

	path := filepath.Join(t.TempDir(), "fast.json")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv(config.EnvConfigPath, path)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

// alternating serves marker 20 with a depth that flips between two values
// a few millimetres apart on every poll.
func alternating() func(map[string]float64) string {
	var mu sync.Mutex
	n := 0
	return func(s map[string]float64) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		spread := 0.001 + 0.000001*(s["exposure"]-1000)*(s["exposure"]-1000)/1000
		depth := 1.5 + spread
		if n%2 == 0 {
			depth = 1.5 - spread
		}
		return testutil.ResultsBody(testutil.Marker{ID: 20, Depth: depth})
	}
}

func TestRun_FullSession(t *testing.T) {
	cam := testutil.NewFakeCamera(t)
	cam.Results = alternating()
	fastConfig(t, cam)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, output:\n%s", code, stdout.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"Limelight AprilTag Auto-Tuner",
		"Found Limelight at " + cam.URL(),
		"Detected Tag 20",
		"PHASE 6",
		"OPTIMIZATION COMPLETE",
		"Device I/O:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "/9] exp=") {
		t.Error("quiet run should not print per-cell joint lines")
	}
	if stderr.Len() != 0 {
		t.Errorf("quiet run wrote diagnostics: %s", stderr.String())
	}

	applied := cam.Applied()
	if len(applied) == 0 {
		t.Fatal("no settings were applied")
	}
	last := applied[len(applied)-1]
	if got := cam.Current(); got["exposure"] != last["exposure"] {
		t.Errorf("camera left at exposure %v, last apply %v", got["exposure"], last["exposure"])
	}
}

func TestRun_Verbose(t *testing.T) {
	cam := testutil.NewFakeCamera(t)
	cam.Results = alternating()
	fastConfig(t, cam)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--verbose"}, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d", code)
	}
	if !strings.Contains(stdout.String(), " 1/9] exp=") {
		t.Error("verbose run should list joint grid cells")
	}
	if !strings.Contains(stderr.String(), "[tune] run") {
		t.Errorf("verbose run should log diagnostics, got %q", stderr.String())
	}
}

func TestRun_NoTarget(t *testing.T) {
	cam := testutil.NewFakeCamera(t)
	fastConfig(t, cam)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-v"}, &stdout, &stderr)
	if code != 0 {
		t.Errorf("run() = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "Cannot detect any target tag") {
		t.Errorf("output missing detection failure:\n%s", stdout.String())
	}
	if strings.Contains(stdout.String(), "OPTIMIZATION COMPLETE") {
		t.Error("no report expected after a detection failure")
	}
	if n := len(cam.Applied()); n != 4 {
		t.Errorf("applied %d settings, want baseline plus 3 escalations", n)
	}
}

func TestRun_NoDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodev.json")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(`{"candidates": ["127.0.0.1"], "port": 1, "probe_timeout": "200ms"}`), 0o644))
	t.Setenv(config.EnvConfigPath, path)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "Limelight not found") {
		t.Errorf("output missing discovery failure:\n%s", stdout.String())
	}
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(`{"settle": "later"}`), 0o644))
	t.Setenv(config.EnvConfigPath, path)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "Config error") {
		t.Errorf("output missing config error:\n%s", stdout.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-ip", "10.0.0.2"}, &stdout, &stderr); code != 2 {
		t.Errorf("run() = %d, want 2", code)
	}
	if stdout.Len() != 0 {
		t.Error("nothing should be printed before flags parse")
	}
}

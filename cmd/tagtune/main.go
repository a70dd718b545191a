// Command tagtune tunes a Limelight camera's imaging pipeline for the most
// stable AprilTag depth reading and prints the settings it settled on.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/tagtune/internal/config"
	"github.com/banshee-data/tagtune/internal/httputil"
	"github.com/banshee-data/tagtune/internal/limelight"
	"github.com/banshee-data/tagtune/internal/metrics"
	"github.com/banshee-data/tagtune/internal/monitoring"
	"github.com/banshee-data/tagtune/internal/tune"
	"github.com/banshee-data/tagtune/internal/version"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one tuning session and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tagtune", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose bool
	fs.BoolVar(&verbose, "v", false, "Print every candidate measurement and diagnostics")
	fs.BoolVar(&verbose, "verbose", false, "Same as -v")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if verbose {
		monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)
	} else {
		monitoring.SetLogger(nil)
	}

	say := func(format string, a ...interface{}) {
		fmt.Fprintf(stdout, format+"\n", a...)
	}

	say("============================================================")
	say("Limelight AprilTag Auto-Tuner")
	say("%s", version.String())
	say("============================================================")

	fileCfg, path, err := config.Load()
	if err != nil {
		say("Config error: %v", err)
		return 1
	}
	if path != "" {
		monitoring.Logf("[main] loaded config from %s", path)
	}
	tuneCfg, err := fileCfg.Resolve()
	if err != nil {
		say("Config error: %v", err)
		return 1
	}

	say("\nSearching for Limelight...")
	httpClient := httputil.NewStandardClient(nil)
	baseURL, err := limelight.Discover(ctx, httpClient, fileCfg.GetCandidates(), fileCfg.GetPort(), fileCfg.GetProbeTimeout())
	if err != nil {
		say("Limelight not found! Check the USB connection. (%v)", err)
		return 1
	}
	say("Found Limelight at %s", baseURL)

	m := metrics.New()
	camera := limelight.NewClient(httpClient, baseURL)
	camera.ApplyTimeout = fileCfg.GetApplyTimeout()
	camera.PollTimeout = fileCfg.GetPollTimeout()
	camera.Metrics = m

	tuner := tune.NewTuner(camera, tuneCfg, nil, stdout)
	tuner.Metrics = m
	tuner.Verbose = verbose

	res, err := tuner.Run(ctx)
	if errors.Is(err, tune.ErrNoTargetDetected) {
		return 0
	}
	if err != nil {
		say("Tuning failed: %v", err)
		return 1
	}

	tune.WriteReport(stdout, res)
	return 0
}

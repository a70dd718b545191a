package tune

import (
	"errors"
	"fmt"
	"time"
)

// Config holds every knob of a tuning run. The numeric defaults are
// hand-tuned operating values for a Limelight 3A looking at an AprilTag a
// metre or two away; none of them are derived constants.
type Config struct {
	Baseline   ParameterSet
	Acceptable []MarkerID

	// Phase 1
	EscalationExposures []float64
	DiscoveryMinDetPct  float64

	// Detection thresholds
	MinDetPct           float64 // primary filter of both selection policies
	ReliableDetPct      float64 // coarse exposure preference and joint primary filter
	JointFallbackDetPct float64
	PlateauTolerance    float64

	// Candidate sets
	ExposureCoarse        []float64
	ExposureFineHalfWidth float64
	ExposureFineStep      float64
	ExposureSpan          Span

	GainCoarse        []float64
	GainFineHalfWidth float64
	GainFineStep      float64
	GainSpan          Span

	RefineMethods []float64
	BlackLevels   []float64
	Sharpening    []float64

	JointExposureOffset float64
	JointGainOffset     float64

	// Measurement windows (polls per window)
	BaselineWindow   int
	EscalationWindow int
	CoarseWindow     int
	FineWindow       int
	SecondaryWindow  int
	JointWindow      int
	VerifyWindow     int
	VerifyRounds     int

	// Waits
	PollInterval time.Duration
	Settle       time.Duration
	FinalSettle  time.Duration
}

// DefaultConfig returns the standard run configuration.
func DefaultConfig() Config {
	return Config{
		Baseline:   RecommendedBaseline(),
		Acceptable: []MarkerID{20, 24},

		EscalationExposures: []float64{2000, 3000, 4000},
		DiscoveryMinDetPct:  30,

		MinDetPct:           DefaultMinDetectionPct,
		ReliableDetPct:      80,
		JointFallbackDetPct: 50,
		PlateauTolerance:    DefaultPlateauTolerance,

		ExposureCoarse:        GenerateRange(400, 2800, 400),
		ExposureFineHalfWidth: 300,
		ExposureFineStep:      100,
		ExposureSpan:          Span{Min: 100, Max: 5000},

		GainCoarse:        []float64{5, 10, 15, 20, 25, 30},
		GainFineHalfWidth: 3,
		GainFineStep:      1,
		GainSpan:          Span{Min: 3, Max: 40},

		RefineMethods: []float64{0, 1, 2, 3},
		BlackLevels:   []float64{0, 5, 10, 15},
		Sharpening:    []float64{0, 0.05, 0.1, 0.15, 0.2},

		JointExposureOffset: 200,
		JointGainOffset:     2,

		BaselineWindow:   80,
		EscalationWindow: 60,
		CoarseWindow:     60,
		FineWindow:       70,
		SecondaryWindow:  70,
		JointWindow:      70,
		VerifyWindow:     100,
		VerifyRounds:     3,

		PollInterval: 20 * time.Millisecond,
		Settle:       100 * time.Millisecond,
		FinalSettle:  300 * time.Millisecond,
	}
}

// Validate checks the configuration for values the search cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Baseline.Len() == 0 {
		errs = append(errs, errors.New("baseline parameter set is empty"))
	}
	if len(c.Acceptable) == 0 {
		errs = append(errs, errors.New("at least one acceptable marker is required"))
	}

	for _, p := range []struct {
		name string
		v    float64
	}{
		{"discovery_min_detection_pct", c.DiscoveryMinDetPct},
		{"min_detection_pct", c.MinDetPct},
		{"reliable_detection_pct", c.ReliableDetPct},
		{"joint_fallback_detection_pct", c.JointFallbackDetPct},
	} {
		if p.v < 0 || p.v > 100 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 100, got %g", p.name, p.v))
		}
	}
	if c.PlateauTolerance < 1 {
		errs = append(errs, fmt.Errorf("plateau_tolerance must be >= 1, got %g", c.PlateauTolerance))
	}

	for _, l := range []struct {
		name   string
		values []float64
	}{
		{"exposure_coarse", c.ExposureCoarse},
		{"gain_coarse", c.GainCoarse},
		{"refine_methods", c.RefineMethods},
		{"black_levels", c.BlackLevels},
		{"sharpening", c.Sharpening},
	} {
		if len(l.values) == 0 {
			errs = append(errs, fmt.Errorf("%s must list at least one candidate", l.name))
		}
		if len(l.values) > maxCandidates {
			errs = append(errs, fmt.Errorf("%s lists %d candidates (max %d)", l.name, len(l.values), maxCandidates))
		}
	}

	if c.ExposureSpan.Min > c.ExposureSpan.Max {
		errs = append(errs, fmt.Errorf("exposure span is inverted: %g > %g", c.ExposureSpan.Min, c.ExposureSpan.Max))
	}
	if c.GainSpan.Min > c.GainSpan.Max {
		errs = append(errs, fmt.Errorf("gain span is inverted: %g > %g", c.GainSpan.Min, c.GainSpan.Max))
	}
	if c.ExposureFineStep <= 0 || c.GainFineStep <= 0 {
		errs = append(errs, errors.New("fine sweep steps must be positive"))
	}
	if c.JointExposureOffset <= 0 || c.JointGainOffset <= 0 {
		errs = append(errs, errors.New("joint grid offsets must be positive"))
	}

	for _, w := range []struct {
		name string
		v    int
	}{
		{"baseline_window", c.BaselineWindow},
		{"escalation_window", c.EscalationWindow},
		{"coarse_window", c.CoarseWindow},
		{"fine_window", c.FineWindow},
		{"secondary_window", c.SecondaryWindow},
		{"joint_window", c.JointWindow},
		{"verify_window", c.VerifyWindow},
	} {
		if w.v < MinReadings {
			errs = append(errs, fmt.Errorf("%s must be at least %d polls, got %d", w.name, MinReadings, w.v))
		}
	}
	if c.VerifyRounds <= 0 {
		errs = append(errs, fmt.Errorf("verify_rounds must be positive, got %d", c.VerifyRounds))
	}
	if c.PollInterval < 0 || c.Settle < 0 || c.FinalSettle < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}

	return errors.Join(errs...)
}

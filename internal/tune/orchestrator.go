package tune

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tagtune/internal/metrics"
	"github.com/banshee-data/tagtune/internal/monitoring"
	"github.com/banshee-data/tagtune/internal/timeutil"
)

// ErrNoTargetDetected is returned when phase 1 cannot find an acceptable
// marker above the discovery threshold, even after raising exposure.
var ErrNoTargetDetected = errors.New("no target marker detected")

var logf = monitoring.Component("tune")

// Phase names a stage of the search.
type Phase string

const (
	PhaseBaseline  Phase = "baseline"
	PhaseExposure  Phase = "exposure"
	PhaseGain      Phase = "gain"
	PhaseSecondary Phase = "secondary"
	PhaseJoint     Phase = "joint"
	PhaseVerify    Phase = "verify"
)

// searchState is the best-known operating point carried between phases.
// Phases take it by value and return a replacement.
type searchState struct {
	Best   ParameterSet
	BestZ  float64
	Marker MarkerID
}

// adoptIfNoWorse folds value into the best set when its dispersion does not
// regress the best score.
func (st searchState) adoptIfNoWorse(param ParamName, sel Selection) (searchState, bool) {
	if sel.DispersionMM > st.BestZ {
		return st, false
	}
	return searchState{
		Best:   st.Best.With(param, sel.Value),
		BestZ:  sel.DispersionMM,
		Marker: st.Marker,
	}, true
}

// PhaseRecord captures the outcome of one phase.
type PhaseRecord struct {
	Phase    Phase
	Best     ParameterSet
	BestZ    float64
	Adopted  []ParamName
	Duration time.Duration
}

// Result is the outcome of a completed run.
type Result struct {
	RunID    string
	Marker   MarkerID
	Baseline SampleSummary
	Final    ParameterSet

	Phases       []PhaseRecord
	Verification []SampleSummary

	FinalDispersionMM float64
	FinalDetectionPct float64
	ImprovementMM     float64
	ImprovementPct    float64

	IO      metrics.Snapshot
	Elapsed time.Duration
}

// Tuner runs the staged search against one device.
type Tuner struct {
	Config  Config
	Clock   timeutil.Clock
	Metrics *metrics.Metrics

	// Out receives the progress narration; Verbose adds per-candidate lines.
	Out     io.Writer
	Verbose bool

	sweeper *Sweeper
	sampler *Sampler
}

// NewTuner wires a sampler and sweeper for device. A nil clock means the real
// clock; a nil out discards narration.
func NewTuner(device Device, cfg Config, clock timeutil.Clock, out io.Writer) *Tuner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if out == nil {
		out = io.Discard
	}
	t := &Tuner{
		Config: cfg,
		Clock:  clock,
		Out:    out,
	}
	t.sampler = NewSampler(device, clock, cfg.PollInterval, cfg.Acceptable)
	t.sampler.Observe = func(s SampleSummary, elapsed time.Duration) {
		t.Metrics.RecordWindow(elapsed.Seconds(), s.DetectionRatePct)
	}
	t.sweeper = &Sweeper{
		Device:  device,
		Sampler: t.sampler,
		Clock:   clock,
		Settle:  cfg.Settle,
		OnRow: func(param ParamName, row SweepRow) {
			t.detailf("      %s=%s: %.1fmm (%.0f%%)", param, FormatValue(row.Value),
				row.Summary.DispersionMM, row.Summary.DetectionRatePct)
		},
	}
	return t
}

func (t *Tuner) sayf(format string, args ...interface{}) {
	fmt.Fprintf(t.Out, format+"\n", args...)
}

func (t *Tuner) detailf(format string, args ...interface{}) {
	if t.Verbose {
		t.sayf(format, args...)
	}
}

// Run executes every phase in order. The only error it returns is
// ErrNoTargetDetected (wrapped); all device trouble after that point only
// degrades scores.
func (t *Tuner) Run(ctx context.Context) (*Result, error) {
	if err := t.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}

	start := t.Clock.Now()
	res := &Result{RunID: uuid.New().String()}
	logf("run %s started", res.RunID)

	record := func(phase Phase, before, after searchState, began time.Time) {
		res.Phases = append(res.Phases, PhaseRecord{
			Phase:    phase,
			Best:     after.Best,
			BestZ:    after.BestZ,
			Adopted:  changedParams(before.Best, after.Best),
			Duration: t.Clock.Since(began),
		})
	}

	began := t.Clock.Now()
	st, baseline, err := t.phaseBaseline(ctx)
	if err != nil {
		logf("run %s stopped: %v", res.RunID, err)
		return nil, err
	}
	res.Marker = st.Marker
	res.Baseline = baseline
	record(PhaseBaseline, st, st, began)

	phases := []struct {
		phase Phase
		run   func(context.Context, searchState) searchState
	}{
		{PhaseExposure, t.phaseExposure},
		{PhaseGain, t.phaseGain},
		{PhaseSecondary, t.phaseSecondary},
		{PhaseJoint, t.phaseJoint},
	}
	for _, p := range phases {
		began = t.Clock.Now()
		next := p.run(ctx, st)
		record(p.phase, st, next, began)
		logf("phase %s done: best=%.2fmm %s", p.phase, next.BestZ, next.Best)
		st = next
	}

	began = t.Clock.Now()
	res.Verification = t.phaseVerify(ctx, st)
	record(PhaseVerify, st, st, began)

	res.Final = st.Best
	res.FinalDispersionMM, res.FinalDetectionPct = meanSummaries(res.Verification)
	res.ImprovementMM = baseline.DispersionMM - res.FinalDispersionMM
	if baseline.DispersionMM > 0 {
		res.ImprovementPct = res.ImprovementMM / baseline.DispersionMM * 100
	}
	res.IO = t.Metrics.Snapshot()
	res.Elapsed = t.Clock.Since(start)
	logf("run %s complete in %s", res.RunID, res.Elapsed)
	return res, nil
}

// meanSummaries averages dispersion and detection over verification rounds.
func meanSummaries(rounds []SampleSummary) (dispersion, detection float64) {
	if len(rounds) == 0 {
		return DegenerateDispersionMM, 0
	}
	zs := make([]float64, len(rounds))
	dets := make([]float64, len(rounds))
	for i, r := range rounds {
		zs[i] = r.DispersionMM
		dets[i] = r.DetectionRatePct
	}
	return stat.Mean(zs, nil), stat.Mean(dets, nil)
}

// changedParams lists the settings whose value differs between two sets.
func changedParams(before, after ParameterSet) []ParamName {
	var out []ParamName
	for _, p := range AllParams {
		bv, bok := before.Get(p)
		av, aok := after.Get(p)
		if bok != aok || bv != av {
			out = append(out, p)
		}
	}
	return out
}

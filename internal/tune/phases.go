package tune

import (
	"context"
	"fmt"
)

// phaseBaseline applies the recommended settings and locks onto a marker.
// If the marker is hard to see it retries at progressively higher exposures;
// those overrides are only used for discovery and the best set stays the
// baseline.
func (t *Tuner) phaseBaseline(ctx context.Context) (searchState, SampleSummary, error) {
	cfg := t.Config
	t.sayf("\nPHASE 1: Applying recommended baseline & detecting tag...")

	t.sweeper.ApplyAndSettle(ctx, cfg.Baseline)
	summary := t.sampler.Measure(ctx, cfg.BaselineWindow, NoMarker)

	if summary.DetectionRatePct < cfg.DiscoveryMinDetPct {
		t.sayf("   Low detection (%.0f%%), raising exposure to find a tag...", summary.DetectionRatePct)
		for _, exp := range cfg.EscalationExposures {
			t.sweeper.ApplyAndSettle(ctx, cfg.Baseline.With(Exposure, exp))
			summary = t.sampler.Measure(ctx, cfg.EscalationWindow, NoMarker)
			t.detailf("      exposure=%s: %.0f%% detection", FormatValue(exp), summary.DetectionRatePct)
			if summary.DetectionRatePct >= cfg.DiscoveryMinDetPct {
				break
			}
		}
	}

	if summary.DetectionRatePct < cfg.DiscoveryMinDetPct || summary.Marker == NoMarker {
		t.sayf("   Cannot detect any target tag! Check the camera view and the acceptable marker list.")
		return searchState{}, summary, fmt.Errorf("%w: best detection %.0f%% (need %.0f%%)",
			ErrNoTargetDetected, summary.DetectionRatePct, cfg.DiscoveryMinDetPct)
	}

	t.sayf("   Detected Tag %d", summary.Marker)
	t.sayf("   Recommended baseline: %.2fmm stability (%.0f%% detection)", summary.DispersionMM, summary.DetectionRatePct)

	return searchState{
		Best:   cfg.Baseline,
		BestZ:  summary.DispersionMM,
		Marker: summary.Marker,
	}, summary, nil
}

// coarseToFine sweeps a fine range centred on the coarse winner and adopts
// its plateau centre if it does not regress the score carried into the
// phase. The coarse winner is only a fallback for a fine sweep with no
// winner, under the same guard.
func (t *Tuner) coarseToFine(ctx context.Context, st searchState, param ParamName, coarse Selection, coarseOK bool, halfWidth, step float64, span Span) searchState {
	cfg := t.Config
	center := st.Best.Value(param)
	if coarseOK {
		center = coarse.Value
	}

	fineValues := CenteredRange(span.Clamp(center), halfWidth, step, span)
	t.sayf("   Fine-tuning %s around %s...", param, FormatValue(center))
	fine := t.sweeper.Sweep(ctx, param, fineValues, st.Best, st.Marker, cfg.FineWindow)
	if sel, ok := PlateauCenter(fine, cfg.MinDetPct, cfg.PlateauTolerance); ok {
		st, _ = st.adoptIfNoWorse(param, sel)
		return st
	}
	if coarseOK {
		t.detailf("   Fine sweep had no usable detection; falling back to %s=%s", param, FormatValue(coarse.Value))
		st, _ = st.adoptIfNoWorse(param, coarse)
	}
	return st
}

// phaseExposure searches exposure coarse-then-fine, preferring candidates
// with reliable detection in the coarse pass.
func (t *Tuner) phaseExposure(ctx context.Context, st searchState) searchState {
	cfg := t.Config
	t.sayf("\nPHASE 2: Finding minimum usable exposure...")

	coarse := t.sweeper.Sweep(ctx, Exposure, cfg.ExposureCoarse, st.Best, st.Marker, cfg.CoarseWindow)

	var sel Selection
	var ok bool
	if reliable := coarse.Reliable(cfg.ReliableDetPct); len(reliable.Rows) > 0 {
		sel, ok = BestOfFiltered(reliable, cfg.MinDetPct)
		if lowest, found := LowestReliable(coarse, cfg.ReliableDetPct); found {
			t.sayf("   Lowest reliable exposure: %s", FormatValue(lowest))
		}
		t.sayf("   Best stability exposure:  %s (%.1fmm)", FormatValue(sel.Value), sel.DispersionMM)
	} else {
		sel, ok = BestOfFiltered(coarse, RelaxedMinDetectionPct)
		if ok {
			t.sayf("   No exposure had >%.0f%% detection. Best effort: %s", cfg.ReliableDetPct, FormatValue(sel.Value))
		} else {
			t.sayf("   No exposure had usable detection; keeping %s", FormatValue(st.Best.Value(Exposure)))
		}
	}

	st = t.coarseToFine(ctx, st, Exposure, sel, ok, cfg.ExposureFineHalfWidth, cfg.ExposureFineStep, cfg.ExposureSpan)
	t.sayf("   Exposure: %s  (%.1fmm)", FormatValue(st.Best.Value(Exposure)), st.BestZ)
	return st
}

// phaseGain searches sensor gain coarse-then-fine with plateau-centre
// selection at both granularities.
func (t *Tuner) phaseGain(ctx context.Context, st searchState) searchState {
	cfg := t.Config
	t.sayf("\nPHASE 3: Optimizing sensor gain...")

	coarse := t.sweeper.Sweep(ctx, SensorGain, cfg.GainCoarse, st.Best, st.Marker, cfg.CoarseWindow)
	sel, ok := PlateauCenter(coarse, cfg.MinDetPct, cfg.PlateauTolerance)

	st = t.coarseToFine(ctx, st, SensorGain, sel, ok, cfg.GainFineHalfWidth, cfg.GainFineStep, cfg.GainSpan)
	t.sayf("   Gain: %s  (%.1fmm)", FormatValue(st.Best.Value(SensorGain)), st.BestZ)
	return st
}

// phaseSecondary sweeps refine method, black level and sharpening in turn,
// each against the running best.
func (t *Tuner) phaseSecondary(ctx context.Context, st searchState) searchState {
	cfg := t.Config
	t.sayf("\nPHASE 4: Tuning secondary parameters...")

	secondary := []struct {
		param  ParamName
		values []float64
		pick   func(SweepTable) (Selection, bool)
	}{
		{RefineMethod, cfg.RefineMethods, func(tb SweepTable) (Selection, bool) {
			return BestOfFiltered(tb, cfg.MinDetPct)
		}},
		{BlackLevel, cfg.BlackLevels, func(tb SweepTable) (Selection, bool) {
			return PlateauCenter(tb, cfg.MinDetPct, cfg.PlateauTolerance)
		}},
		{Sharpening, cfg.Sharpening, func(tb SweepTable) (Selection, bool) {
			return PlateauCenter(tb, cfg.MinDetPct, cfg.PlateauTolerance)
		}},
	}

	for _, s := range secondary {
		t.detailf("   Testing %s...", s.param)
		table := t.sweeper.Sweep(ctx, s.param, s.values, st.Best, st.Marker, cfg.SecondaryWindow)
		if sel, ok := s.pick(table); ok {
			st, _ = st.adoptIfNoWorse(s.param, sel)
		}
		v := st.Best.Value(s.param)
		if s.param == RefineMethod {
			t.sayf("   Refine method: %s", RefineMethodName(v))
		} else {
			t.sayf("   %s: %s", s.param, FormatValue(v))
		}
	}
	return st
}

// JointCandidate is one cell of the exposure x gain grid.
type JointCandidate struct {
	Exposure float64
	Gain     float64
	Summary  SampleSummary
}

// BestJoint returns the lowest-dispersion candidate among those meeting
// primaryDet, falling back to fallbackDet. Ties go to the earliest cell.
func BestJoint(cands []JointCandidate, primaryDet, fallbackDet float64) (JointCandidate, bool) {
	filter := func(min float64) []JointCandidate {
		var out []JointCandidate
		for _, c := range cands {
			if c.Summary.DetectionRatePct >= min {
				out = append(out, c)
			}
		}
		return out
	}
	good := filter(primaryDet)
	if len(good) == 0 {
		good = filter(fallbackDet)
	}
	if len(good) == 0 {
		return JointCandidate{}, false
	}
	best := good[0]
	for _, c := range good[1:] {
		if c.Summary.DispersionMM < best.Summary.DispersionMM {
			best = c
		}
	}
	return best, true
}

// phaseJoint evaluates a small exposure x gain grid around the current
// winners. The separable sweeps above can settle in a jointly suboptimal
// corner; this grid can move both settings at once, but only for a strict
// improvement.
func (t *Tuner) phaseJoint(ctx context.Context, st searchState) searchState {
	cfg := t.Config
	t.sayf("\nPHASE 5: Joint exposure + gain refinement...")

	e := st.Best.Value(Exposure)
	g := st.Best.Value(SensorGain)
	exposures := CenteredRange(e, cfg.JointExposureOffset, cfg.JointExposureOffset, cfg.ExposureSpan)
	gains := CenteredRange(g, cfg.JointGainOffset, cfg.JointGainOffset, cfg.GainSpan)

	total := len(exposures) * len(gains)
	cands := make([]JointCandidate, 0, total)
	for _, exp := range exposures {
		for _, gain := range gains {
			t.sweeper.ApplyAndSettle(ctx, st.Best.With(Exposure, exp).With(SensorGain, gain))
			summary := t.sampler.Measure(ctx, cfg.JointWindow, st.Marker)
			cands = append(cands, JointCandidate{Exposure: exp, Gain: gain, Summary: summary})

			marker := ""
			if summary.DetectionRatePct >= cfg.ReliableDetPct && summary.DispersionMM < st.BestZ {
				marker = " *"
			}
			t.detailf("   [%2d/%d] exp=%s gain=%s: %.1fmm (%.0f%%)%s", len(cands), total,
				FormatValue(exp), FormatValue(gain), summary.DispersionMM, summary.DetectionRatePct, marker)
		}
	}

	winner, ok := BestJoint(cands, cfg.ReliableDetPct, cfg.JointFallbackDetPct)
	switch {
	case !ok:
		t.sayf("   Joint search had low detection; skipping")
	case winner.Summary.DispersionMM < st.BestZ:
		st = searchState{
			Best:   st.Best.With(Exposure, winner.Exposure).With(SensorGain, winner.Gain),
			BestZ:  winner.Summary.DispersionMM,
			Marker: st.Marker,
		}
		t.sayf("   Improved! exp=%s gain=%s -> %.1fmm", FormatValue(winner.Exposure), FormatValue(winner.Gain), st.BestZ)
	default:
		t.sayf("   No improvement found; keeping exp=%s gain=%s", FormatValue(e), FormatValue(g))
	}
	return st
}

// phaseVerify applies the final settings and measures several independent
// windows.
func (t *Tuner) phaseVerify(ctx context.Context, st searchState) []SampleSummary {
	cfg := t.Config
	t.sayf("\nPHASE 6: Verification (%d rounds of %d samples)...", cfg.VerifyRounds, cfg.VerifyWindow)

	t.sweeper.ApplyAndSettle(ctx, st.Best)
	t.Clock.Sleep(cfg.FinalSettle)

	rounds := make([]SampleSummary, 0, cfg.VerifyRounds)
	for i := 0; i < cfg.VerifyRounds; i++ {
		s := t.sampler.Measure(ctx, cfg.VerifyWindow, st.Marker)
		rounds = append(rounds, s)
		t.sayf("   Round %d: %.2fmm (%.0f%%)", i+1, s.DispersionMM, s.DetectionRatePct)
	}
	return rounds
}

package tune

import (
	"context"
	"time"

	"github.com/banshee-data/tagtune/internal/timeutil"
)

// Applier is the write side of the device. Apply reports whether the device
// accepted the settings; a false result is informational only and is never
// retried.
type Applier interface {
	Apply(ctx context.Context, settings ParameterSet) bool
}

// Device combines both sides of the camera the tuner drives.
type Device interface {
	Applier
	Telemetry
}

// SweepRow is the evidence gathered for one candidate value.
type SweepRow struct {
	Value   float64
	Summary SampleSummary
}

// SweepTable holds the rows of one single-parameter sweep in the order the
// candidates were supplied.
type SweepTable struct {
	Param ParamName
	Rows  []SweepRow
}

// Sweeper applies candidate settings and measures each one.
type Sweeper struct {
	Device  Applier
	Sampler *Sampler
	Clock   timeutil.Clock

	// Settle is the wait after every apply before sampling starts, so that
	// readings taken under the previous configuration are not mixed in.
	Settle time.Duration

	// OnRow, if set, is called after each candidate is measured.
	OnRow func(param ParamName, row SweepRow)
}

// ApplyAndSettle pushes settings to the device and waits for them to take
// effect. The apply result is logged, never returned: a failed apply simply
// means the following window measures whatever the device is running.
func (s *Sweeper) ApplyAndSettle(ctx context.Context, settings ParameterSet) {
	if !s.Device.Apply(ctx, settings) {
		logf("WARNING: apply had no effect: %s", settings)
	}
	s.Clock.Sleep(s.Settle)
}

// Sweep evaluates values for param, holding every other setting at base.
// Each candidate gets exactly one window. The device is left configured
// with the last candidate.
func (s *Sweeper) Sweep(ctx context.Context, param ParamName, values []float64, base ParameterSet, target MarkerID, window int) SweepTable {
	table := SweepTable{Param: param, Rows: make([]SweepRow, 0, len(values))}
	for _, v := range values {
		s.ApplyAndSettle(ctx, base.With(param, v))
		row := SweepRow{Value: v, Summary: s.Sampler.Measure(ctx, window, target)}
		table.Rows = append(table.Rows, row)
		if s.OnRow != nil {
			s.OnRow(param, row)
		}
	}
	return table
}

package tune

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tagtune/internal/monitoring"
	"github.com/banshee-data/tagtune/internal/timeutil"
)

const (
	// DegenerateDispersionMM is reported for a window that collected too few
	// readings to estimate a spread. It orders after every real dispersion.
	DegenerateDispersionMM = 999.0

	// MinReadings is the smallest number of readings a window needs before
	// its dispersion is considered meaningful.
	MinReadings = 5
)

// MarkerID is the identity of a fiducial marker.
type MarkerID int

// NoMarker means "no specific marker": as a measurement target it accepts
// any acceptable marker, and in a summary it means no identity was resolved.
const NoMarker MarkerID = -1

// Fiducial is one detected marker entry from a telemetry poll.
type Fiducial struct {
	ID       MarkerID
	Position [3]float64 // camera-space translation in metres; [2] is depth
}

// Reading is a single depth value attributed to a detected marker.
type Reading struct {
	Marker MarkerID
	DepthM float64
}

// Telemetry is the read side of the device. Poll returns ok=false when the
// poll produced nothing usable (transport failure, bad status, malformed
// body); callers treat that exactly like a poll with no markers.
type Telemetry interface {
	Poll(ctx context.Context) (fiducials []Fiducial, ok bool)
}

// SampleSummary reduces one measurement window.
type SampleSummary struct {
	DispersionMM     float64
	DetectionRatePct float64
	Marker           MarkerID
	Readings         int
}

// Degenerate reports whether the window had too few readings.
func (s SampleSummary) Degenerate() bool {
	return s.Readings < MinReadings
}

// degenerateSummary is the "maximally bad" summary for an unusable window.
func degenerateSummary(readings int) SampleSummary {
	return SampleSummary{
		DispersionMM:     DegenerateDispersionMM,
		DetectionRatePct: 0,
		Marker:           NoMarker,
		Readings:         readings,
	}
}

// Sampler collects depth readings over a measurement window.
type Sampler struct {
	Telemetry Telemetry
	Clock     timeutil.Clock

	// Interval is the fixed delay between polls.
	Interval time.Duration

	// Acceptable lists the markers an untargeted window may lock onto.
	Acceptable []MarkerID

	// Observe, if set, is called after every window with its summary and
	// wall-clock duration.
	Observe func(summary SampleSummary, elapsed time.Duration)
}

// NewSampler creates a Sampler polling telemetry every interval.
func NewSampler(telemetry Telemetry, clock timeutil.Clock, interval time.Duration, acceptable []MarkerID) *Sampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sampler{
		Telemetry:  telemetry,
		Clock:      clock,
		Interval:   interval,
		Acceptable: acceptable,
	}
}

var samplerLogf = monitoring.Component("sampler")

// Measure polls the device window times and summarises the depth readings.
// With target == NoMarker the first acceptable marker seen in the window
// becomes the reported identity; later polls still accept any acceptable
// marker. A window never fails: lost polls only lower the detection rate.
func (s *Sampler) Measure(ctx context.Context, window int, target MarkerID) SampleSummary {
	if window <= 0 {
		return degenerateSummary(0)
	}
	start := s.Clock.Now()

	depths := make([]float64, 0, window)
	locked := NoMarker
	lost := 0

	for i := 0; i < window; i++ {
		reading, ok := s.read(ctx, target)
		if ok {
			depths = append(depths, reading.DepthM)
			if locked == NoMarker {
				locked = reading.Marker
			}
		} else {
			lost++
		}
		s.Clock.Sleep(s.Interval)
	}

	summary := summarise(depths, window, locked)
	if lost > 0 {
		samplerLogf("window of %d: %d polls without a reading", window, lost)
	}
	if s.Observe != nil {
		s.Observe(summary, s.Clock.Since(start))
	}
	return summary
}

// read performs one poll and extracts the reading for the window, if any.
func (s *Sampler) read(ctx context.Context, target MarkerID) (Reading, bool) {
	fiducials, ok := s.Telemetry.Poll(ctx)
	if !ok {
		return Reading{}, false
	}
	for _, f := range fiducials {
		if target != NoMarker {
			if f.ID != target {
				continue
			}
		} else if !s.acceptable(f.ID) {
			continue
		}
		return Reading{Marker: f.ID, DepthM: f.Position[2]}, true
	}
	return Reading{}, false
}

func (s *Sampler) acceptable(id MarkerID) bool {
	for _, m := range s.Acceptable {
		if m == id {
			return true
		}
	}
	return false
}

// summarise reduces collected depths (metres) from a window of the given size.
func summarise(depths []float64, window int, marker MarkerID) SampleSummary {
	if len(depths) < MinReadings {
		return degenerateSummary(len(depths))
	}
	dispersion := stat.StdDev(depths, nil) * 1000
	if math.IsNaN(dispersion) || dispersion < 0 {
		return degenerateSummary(len(depths))
	}
	rate := float64(len(depths)) / float64(window) * 100
	return SampleSummary{
		DispersionMM:     dispersion,
		DetectionRatePct: math.Min(100, rate),
		Marker:           marker,
		Readings:         len(depths),
	}
}

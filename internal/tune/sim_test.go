package tune

import (
	"context"
	"math"
	"sync"
)

// simCamera is an in-memory device. Detected depths alternate around 1.5 m
// by ±dispersion(settings)/1000, so a window's sample standard deviation is
// a known function of the applied settings. Detection is spread evenly over
// the polls following an apply.
type simCamera struct {
	mu sync.Mutex

	dispersion func(ParameterSet) float64 // mm
	detection  func(ParameterSet) float64 // percent
	marker     MarkerID
	applyOK    bool

	current    ParameterSet
	applied    []ParameterSet
	polls      int
	sinceApply int
	detected   int
}

func newSimCamera(dispersion func(ParameterSet) float64) *simCamera {
	return &simCamera{
		dispersion: dispersion,
		detection:  func(ParameterSet) float64 { return 100 },
		marker:     20,
		applyOK:    true,
		current:    RecommendedBaseline(),
	}
}

func (s *simCamera) Apply(_ context.Context, settings ParameterSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, settings)
	if !s.applyOK {
		return false
	}
	s.current = settings
	s.sinceApply = 0
	s.detected = 0
	return true
}

func (s *simCamera) Poll(_ context.Context) ([]Fiducial, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	k := s.sinceApply
	s.sinceApply++

	det := s.detection(s.current)
	if math.Floor(float64(k+1)*det/100) == math.Floor(float64(k)*det/100) {
		return []Fiducial{}, true
	}

	sign := 1.0
	if s.detected%2 == 1 {
		sign = -1
	}
	s.detected++
	depth := 1.5 + sign*s.dispersion(s.current)/1000
	return []Fiducial{
		// Not in the acceptable list; must be ignored.
		{ID: 5, Position: [3]float64{0, 0, 9}},
		{ID: s.marker, Position: [3]float64{0.1, 0, depth}},
	}, true
}

func (s *simCamera) appliedValues(p ParamName) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.applied))
	for i, a := range s.applied {
		out[i] = a.Value(p)
	}
	return out
}

// scriptedTelemetry replays a fixed list of poll results, then reports
// failed polls.
type scriptedTelemetry struct {
	polls []scriptedPoll
	n     int
}

type scriptedPoll struct {
	fiducials []Fiducial
	ok        bool
}

func (s *scriptedTelemetry) Poll(context.Context) ([]Fiducial, bool) {
	if s.n >= len(s.polls) {
		s.n++
		return nil, false
	}
	p := s.polls[s.n]
	s.n++
	return p.fiducials, p.ok
}

func seen(id MarkerID, depth float64) scriptedPoll {
	return scriptedPoll{fiducials: []Fiducial{{ID: id, Position: [3]float64{0, 0, depth}}}, ok: true}
}

func empty() scriptedPoll  { return scriptedPoll{fiducials: []Fiducial{}, ok: true} }
func failed() scriptedPoll { return scriptedPoll{ok: false} }

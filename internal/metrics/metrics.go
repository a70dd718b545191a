// Package metrics instruments the device I/O of a tuning run.
//
// Collectors live on a private registry: tagtune is a one-shot CLI, so
// nothing is exposed for scraping. The registry is gathered once at the end
// of the run and summarised in the final report.
//
// Metrics recorded:
//   - tagtune_apply_total{result}: settings pushes by outcome (ok, failed)
//   - tagtune_poll_total{result}: telemetry polls by outcome (ok, failed)
//   - tagtune_measure_seconds: duration of each measurement window
//   - tagtune_window_detection_pct: detection rate of each measurement window
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the collectors for one run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ApplyTotal         *prometheus.CounterVec
	PollTotal          *prometheus.CounterVec
	MeasureSeconds     prometheus.Histogram
	WindowDetectionPct prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ApplyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagtune_apply_total",
			Help: "Settings pushes to the device by outcome",
		}, []string{"result"}),

		PollTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagtune_poll_total",
			Help: "Telemetry polls by outcome",
		}, []string{"result"}),

		MeasureSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagtune_measure_seconds",
			Help:    "Duration of each measurement window",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30},
		}),

		WindowDetectionPct: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagtune_window_detection_pct",
			Help:    "Detection rate of each measurement window",
			Buckets: []float64{10, 30, 40, 50, 70, 80, 90, 100},
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}

// RecordApply counts one settings push.
func (m *Metrics) RecordApply(ok bool) {
	if m == nil {
		return
	}
	m.ApplyTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordPoll counts one telemetry poll.
func (m *Metrics) RecordPoll(ok bool) {
	if m == nil {
		return
	}
	m.PollTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordWindow records a finished measurement window.
func (m *Metrics) RecordWindow(seconds, detectionPct float64) {
	if m == nil {
		return
	}
	m.MeasureSeconds.Observe(seconds)
	m.WindowDetectionPct.Observe(detectionPct)
}

// Snapshot is a plain copy of the run's I/O counters.
type Snapshot struct {
	AppliesOK      int
	AppliesFailed  int
	PollsOK        int
	PollsFailed    int
	Windows        int
	MeasureSeconds float64
}

// Snapshot gathers the registry. It returns the zero Snapshot for a nil
// receiver or when gathering fails.
func (m *Metrics) Snapshot() Snapshot {
	var s Snapshot
	if m == nil {
		return s
	}
	families, err := m.registry.Gather()
	if err != nil {
		return s
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			result := ""
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "result" {
					result = lp.GetValue()
				}
			}
			switch mf.GetName() {
			case "tagtune_apply_total":
				if result == ResultOK {
					s.AppliesOK = int(metric.GetCounter().GetValue())
				} else {
					s.AppliesFailed = int(metric.GetCounter().GetValue())
				}
			case "tagtune_poll_total":
				if result == ResultOK {
					s.PollsOK = int(metric.GetCounter().GetValue())
				} else {
					s.PollsFailed = int(metric.GetCounter().GetValue())
				}
			case "tagtune_measure_seconds":
				s.Windows = int(metric.GetHistogram().GetSampleCount())
				s.MeasureSeconds = metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return s
}

// Package tune implements the staged search that tunes a fiducial camera's
// imaging settings for a stable pose depth reading. It contains the signal
// sampler, the single-parameter sweep executor, the selection policies and
// the phase orchestrator that sequences them.
package tune

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParamName identifies one tunable pipeline setting. The string value is the
// JSON key the device expects in an update-pipeline payload.
type ParamName string

const (
	Exposure     ParamName = "exposure"
	SensorGain   ParamName = "sensor_gain"
	BlackLevel   ParamName = "black_level"
	RefineMethod ParamName = "fiducial_refine_method"
	Sharpening   ParamName = "sharpening"
	RedBalance   ParamName = "red_balance"
	BlueBalance  ParamName = "blue_balance"
)

// AllParams lists every tunable setting in report order.
var AllParams = []ParamName{
	Exposure,
	SensorGain,
	BlackLevel,
	RefineMethod,
	Sharpening,
	RedBalance,
	BlueBalance,
}

// Valid reports whether p is one of the known settings.
func (p ParamName) Valid() bool {
	for _, known := range AllParams {
		if p == known {
			return true
		}
	}
	return false
}

// RefineMethodName returns the display name of a fiducial refine method code.
func RefineMethodName(v float64) string {
	switch v {
	case 0:
		return "None"
	case 1:
		return "Subpixel"
	case 2:
		return "Decode"
	case 3:
		return "Pose"
	default:
		return "?"
	}
}

// ParameterSet is an immutable snapshot of pipeline settings. The zero value
// is an empty set. Use With to derive a modified copy; a set is never edited
// in place once it has been handed to the device.
type ParameterSet struct {
	values map[ParamName]float64
}

// NewParameterSet builds a set from a plain map. Unknown keys are rejected.
func NewParameterSet(values map[string]float64) (ParameterSet, error) {
	out := make(map[ParamName]float64, len(values))
	for k, v := range values {
		name := ParamName(k)
		if !name.Valid() {
			return ParameterSet{}, fmt.Errorf("unknown parameter %q", k)
		}
		out[name] = v
	}
	return ParameterSet{values: out}, nil
}

// RecommendedBaseline returns the vendor-documented AprilTag starting point:
// black level zero, gain 15, a moderate exposure that the search then lowers,
// subpixel refinement and untouched colour balance.
func RecommendedBaseline() ParameterSet {
	return ParameterSet{values: map[ParamName]float64{
		BlackLevel:   0,
		SensorGain:   15,
		Exposure:     1200,
		RefineMethod: 1,
		Sharpening:   0,
		RedBalance:   1200,
		BlueBalance:  1600,
	}}
}

// With returns a copy of the set with name set to v.
func (ps ParameterSet) With(name ParamName, v float64) ParameterSet {
	out := make(map[ParamName]float64, len(ps.values)+1)
	for k, val := range ps.values {
		out[k] = val
	}
	out[name] = v
	return ParameterSet{values: out}
}

// Get returns the value for name and whether it is set.
func (ps ParameterSet) Get(name ParamName) (float64, bool) {
	v, ok := ps.values[name]
	return v, ok
}

// Value returns the value for name, or 0 when it is unset.
func (ps ParameterSet) Value(name ParamName) float64 {
	return ps.values[name]
}

// Len returns the number of settings in the set.
func (ps ParameterSet) Len() int {
	return len(ps.values)
}

// Map returns a fresh map keyed by wire names.
func (ps ParameterSet) Map() map[string]float64 {
	out := make(map[string]float64, len(ps.values))
	for k, v := range ps.values {
		out[string(k)] = v
	}
	return out
}

// Equal reports whether both sets hold the same settings.
func (ps ParameterSet) Equal(other ParameterSet) bool {
	if len(ps.values) != len(other.values) {
		return false
	}
	for k, v := range ps.values {
		ov, ok := other.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as the flat object the device accepts.
func (ps ParameterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.Map())
}

// String formats the set in a stable key order for logs.
func (ps ParameterSet) String() string {
	keys := make([]string, 0, len(ps.values))
	for k := range ps.values {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	s := "{"
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%s", k, FormatValue(ps.values[ParamName(k)]))
	}
	return s + "}"
}

// FormatValue prints a setting without trailing zeros (1200, 15.5, 0.05).
func FormatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}

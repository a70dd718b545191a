package tune

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// maxCandidates bounds any generated candidate list. Every candidate costs a
// full measurement window on the device, so long lists are always a mistake.
const maxCandidates = 1000

// RangeSpec defines a floating-point candidate range for sweeping.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var v [3]float64
	for i, name := range [3]string{"min", "max", "step"} {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		v[i] = f
	}
	if v[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", v[2])
	}

	return RangeSpec{Min: v[0], Max: v[1], Step: v[2]}, nil
}

// GenerateRange generates values from min to max (inclusive) stepping by
// step. Returns nil if min > max or the range would exceed maxCandidates.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 || min > max {
		return nil
	}

	expectedCount := int((max-min)/step) + 1
	if expectedCount > maxCandidates || expectedCount < 0 {
		return nil
	}

	var result []float64
	for i := 0; i < expectedCount+1; i++ {
		// Round to avoid floating point accumulation errors
		v := math.Round((min+float64(i)*step)*1000) / 1000
		if v > max+step/1000 {
			break
		}
		result = append(result, v)
	}
	return result
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseParamList parses a comma-separated list of floats or a range specification.
// If the string contains a colon, it is treated as "min:max:step" range spec.
// Otherwise, it is parsed as comma-separated values.
func ParseParamList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		values := GenerateRange(spec.Min, spec.Max, spec.Step)
		if len(values) == 0 {
			return nil, fmt.Errorf("range %q produces no candidates", s)
		}
		return values, nil
	}

	return ParseCSVFloat64s(s)
}

// Span is the valid absolute range of one setting.
type Span struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the span (inclusive).
func (s Span) Contains(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// Clamp limits v to the span.
func (s Span) Clamp(v float64) float64 {
	return math.Max(s.Min, math.Min(s.Max, v))
}

// CenteredRange returns the candidates center + k*step for every k with
// |k*step| <= halfWidth, keeping only those inside span. Values are rounded
// to one decimal place, deduplicated and sorted ascending.
func CenteredRange(center, halfWidth, step float64, span Span) []float64 {
	if step <= 0 || halfWidth < 0 {
		return nil
	}
	n := int(math.Floor(halfWidth/step + 1e-9))
	if 2*n+1 > maxCandidates {
		n = (maxCandidates - 1) / 2
	}

	seen := make(map[float64]bool, 2*n+1)
	out := make([]float64, 0, 2*n+1)
	for k := -n; k <= n; k++ {
		v := math.Round((center+float64(k)*step)*10) / 10
		if !span.Contains(v) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

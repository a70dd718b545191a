package tune

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRangeSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    RangeSpec
		wantErr bool
	}{
		{"400:2800:400", RangeSpec{Min: 400, Max: 2800, Step: 400}, false},
		{" 0 : 0.2 : 0.05 ", RangeSpec{Min: 0, Max: 0.2, Step: 0.05}, false},
		{"1:2", RangeSpec{}, true},
		{"a:2:1", RangeSpec{}, true},
		{"1:b:1", RangeSpec{}, true},
		{"1:2:c", RangeSpec{}, true},
		{"1:2:0", RangeSpec{}, true},
		{"1:2:-1", RangeSpec{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRangeSpec(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRangeSpec(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRangeSpec(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestGenerateRange(t *testing.T) {
	tests := []struct {
		name           string
		min, max, step float64
		want           []float64
	}{
		{"exposure coarse", 400, 2800, 400, []float64{400, 800, 1200, 1600, 2000, 2400, 2800}},
		{"fractional step", 0, 0.2, 0.05, []float64{0, 0.05, 0.1, 0.15, 0.2}},
		{"max not on grid", 1, 2, 0.4, []float64{1, 1.4, 1.8}},
		{"single", 5, 5, 1, []float64{5}},
		{"inverted", 5, 1, 1, nil},
		{"zero step", 1, 5, 0, nil},
		{"too many", 0, 1e6, 1, nil},
	}
	for _, tt := range tests {
		got := GenerateRange(tt.min, tt.max, tt.step)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: GenerateRange mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestParseParamList(t *testing.T) {
	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"", nil, false},
		{"0,1,2,3", []float64{0, 1, 2, 3}, false},
		{" 0, 0.05 ,,0.1", []float64{0, 0.05, 0.1}, false},
		{"5:30:5", []float64{5, 10, 15, 20, 25, 30}, false},
		{"30:5:5", nil, true},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseParamList(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseParamList(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseParamList(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestSpan(t *testing.T) {
	s := Span{Min: 100, Max: 5000}
	if !s.Contains(100) || !s.Contains(5000) || s.Contains(99.9) {
		t.Error("Contains should be inclusive at both ends")
	}
	if got := s.Clamp(50); got != 100 {
		t.Errorf("Clamp(50) = %g, want 100", got)
	}
	if got := s.Clamp(9000); got != 5000 {
		t.Errorf("Clamp(9000) = %g, want 5000", got)
	}
	if got := s.Clamp(1200); got != 1200 {
		t.Errorf("Clamp(1200) = %g, want 1200", got)
	}
}

func TestCenteredRange(t *testing.T) {
	exposure := Span{Min: 100, Max: 5000}
	gain := Span{Min: 3, Max: 40}

	tests := []struct {
		name                    string
		center, halfWidth, step float64
		span                    Span
		want                    []float64
	}{
		{"fine exposure", 1200, 300, 100, exposure, []float64{900, 1000, 1100, 1200, 1300, 1400, 1500}},
		{"clipped at low edge", 150, 300, 100, exposure, []float64{150, 250, 350, 450}},
		{"clipped at high edge", 4900, 300, 100, exposure, []float64{4600, 4700, 4800, 4900, 5000}},
		{"gain at floor", 3, 3, 1, gain, []float64{3, 4, 5, 6}},
		{"joint offsets", 1100, 200, 200, exposure, []float64{900, 1100, 1300}},
		{"rounded to tenths", 10.04, 0.1, 0.1, gain, []float64{9.9, 10, 10.1}},
		{"zero half width", 15, 0, 1, gain, []float64{15}},
		{"bad step", 15, 3, 0, gain, nil},
	}
	for _, tt := range tests {
		got := CenteredRange(tt.center, tt.halfWidth, tt.step, tt.span)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: CenteredRange mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

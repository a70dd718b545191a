package tune

import (
	"sort"
)

const (
	// DefaultMinDetectionPct is the primary detection filter of both policies.
	DefaultMinDetectionPct = 70.0

	// RelaxedMinDetectionPct is used when nothing passes the primary filter.
	RelaxedMinDetectionPct = 40.0

	// DefaultPlateauTolerance is the multiple of the best dispersion that
	// still counts as near-optimal.
	DefaultPlateauTolerance = 1.5
)

// Selection is the value a policy recommends and the dispersion observed for it.
type Selection struct {
	Value        float64
	DispersionMM float64
}

// noWinner is returned when no row passes either detection filter.
var noWinner = Selection{DispersionMM: DegenerateDispersionMM}

// filterRows keeps rows with detection >= minDet, relaxing to the fixed
// relaxed threshold when the primary filter leaves nothing.
func filterRows(rows []SweepRow, minDet float64) []SweepRow {
	good := rowsAtLeast(rows, minDet)
	if len(good) == 0 {
		good = rowsAtLeast(rows, RelaxedMinDetectionPct)
	}
	return good
}

func rowsAtLeast(rows []SweepRow, minDet float64) []SweepRow {
	var out []SweepRow
	for _, r := range rows {
		if r.Summary.DetectionRatePct >= minDet {
			out = append(out, r)
		}
	}
	return out
}

// lowestDispersion returns the first row with the minimum dispersion.
func lowestDispersion(rows []SweepRow) SweepRow {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Summary.DispersionMM < best.Summary.DispersionMM {
			best = r
		}
	}
	return best
}

// BestOfFiltered picks the lowest-dispersion row among those meeting minDet
// (or the relaxed threshold). Ties go to the earliest row. ok is false when
// no row passes either threshold.
func BestOfFiltered(table SweepTable, minDet float64) (Selection, bool) {
	good := filterRows(table.Rows, minDet)
	if len(good) == 0 {
		return noWinner, false
	}
	best := lowestDispersion(good)
	return Selection{Value: best.Value, DispersionMM: best.Summary.DispersionMM}, true
}

// PlateauCenter favours robustness over the single best window. Among rows
// passing the detection filter it collects every value whose dispersion is
// within tolerance times the best, sorts them and returns the middle one.
// The dispersion reported is the one recorded for that value in the table.
func PlateauCenter(table SweepTable, minDet, tolerance float64) (Selection, bool) {
	good := filterRows(table.Rows, minDet)
	if len(good) == 0 {
		return noWinner, false
	}

	bestZ := lowestDispersion(good).Summary.DispersionMM
	var plateau []SweepRow
	for _, r := range good {
		if r.Summary.DispersionMM <= bestZ*tolerance {
			plateau = append(plateau, r)
		}
	}
	if len(plateau) == 0 {
		return BestOfFiltered(table, minDet)
	}

	sort.SliceStable(plateau, func(i, j int) bool { return plateau[i].Value < plateau[j].Value })
	center := plateau[len(plateau)/2]
	return Selection{Value: center.Value, DispersionMM: center.Summary.DispersionMM}, true
}

// LowestReliable returns the smallest candidate value whose detection rate
// meets minDet.
func LowestReliable(table SweepTable, minDet float64) (float64, bool) {
	rows := rowsAtLeast(table.Rows, minDet)
	if len(rows) == 0 {
		return 0, false
	}
	lowest := rows[0].Value
	for _, r := range rows[1:] {
		if r.Value < lowest {
			lowest = r.Value
		}
	}
	return lowest, true
}

// Reliable returns a table holding only the rows with detection >= minDet.
func (t SweepTable) Reliable(minDet float64) SweepTable {
	return SweepTable{Param: t.Param, Rows: rowsAtLeast(t.Rows, minDet)}
}

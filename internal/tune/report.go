package tune

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const rule = "============================================================"

// WriteReport prints the human-readable summary of a completed run.
func WriteReport(w io.Writer, res *Result) {
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	p("\n%s", rule)
	p("OPTIMIZATION COMPLETE")
	p("%s", rule)
	p("\nRun:  %s", res.RunID)
	p("Time: %.1fs", res.Elapsed.Round(100*time.Millisecond).Seconds())
	p("Tag:  %d", res.Marker)

	p("\nBaseline (recommended):  %.2fmm", res.Baseline.DispersionMM)
	p("Final stability:         %.2fmm  (%.0f%% detection)", res.FinalDispersionMM, res.FinalDetectionPct)
	if res.ImprovementMM > 0 {
		p("Improvement:             %.2fmm better (%.0f%%)", res.ImprovementMM, res.ImprovementPct)
	}

	p("\nOptimal Settings:")
	for _, param := range AllParams {
		v, ok := res.Final.Get(param)
		if !ok {
			continue
		}
		line := fmt.Sprintf("   %-24s%s", string(param)+":", FormatValue(v))
		if param == RefineMethod {
			line += " (" + RefineMethodName(v) + ")"
		}
		p("%s", line)
	}

	if len(res.Phases) > 0 {
		p("\nPhases:")
		for _, ph := range res.Phases {
			changed := "-"
			if len(ph.Adopted) > 0 {
				names := make([]string, len(ph.Adopted))
				for i, a := range ph.Adopted {
					names[i] = string(a)
				}
				changed = strings.Join(names, ", ")
			}
			p("   %-10s best %.2fmm  changed: %s", ph.Phase, ph.BestZ, changed)
		}
	}

	stats := res.IO
	if stats.Windows > 0 || stats.PollsOK+stats.PollsFailed > 0 {
		p("\nDevice I/O:")
		p("   applies: %d ok, %d failed", stats.AppliesOK, stats.AppliesFailed)
		p("   polls:   %d ok, %d failed", stats.PollsOK, stats.PollsFailed)
		p("   windows: %d (%.1fs sampling)", stats.Windows, stats.MeasureSeconds)
	}

	p("\nSettings applied to camera!")
	p("%s", rule)
}

package analysis

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// SignificanceThreshold is the |mean delta| above which an assessor is flagged.
// The flag is a placeholder, not a statistical test: there is no confidence
// interval and no multiple-comparison correction.
const SignificanceThreshold = 0.05

// Aggregate groups deltas by assessor and summarizes each group. The result
// is sorted by mean delta, highest first, and is never nil.
func Aggregate(results []types.DeltaResult) []types.AssessorImpact {
	groups := make(map[string][]float64)
	for _, r := range results {
		groups[r.AssessorID] = append(groups[r.AssessorID], r.DeltaScore)
	}

	impacts := make([]types.AssessorImpact, 0, len(groups))
	for id, deltas := range groups {
		m := mean(deltas)
		impacts = append(impacts, types.AssessorImpact{
			AssessorID:  id,
			MeanDelta:   m,
			MedianDelta: median(deltas),
			StdDelta:    sampleStd(deltas),
			SampleSize:  len(deltas),
			Significant: math.Abs(m) > SignificanceThreshold,
		})
	}

	sort.Slice(impacts, func(i, j int) bool {
		if impacts[i].MeanDelta != impacts[j].MeanDelta {
			return impacts[i].MeanDelta > impacts[j].MeanDelta
		}
		return impacts[i].AssessorID < impacts[j].AssessorID
	})
	return impacts
}

// WriteImpactTable renders impacts as an aligned table. The header is written
// even when impacts is empty.
func WriteImpactTable(w io.Writer, impacts []types.AssessorImpact) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSESSOR\tMEAN\tMEDIAN\tSTD\tN\tSIGNIFICANT")
	for _, im := range impacts {
		fmt.Fprintf(tw, "%s\t%+.4f\t%+.4f\t%.4f\t%d\t%t\n",
			im.AssessorID, im.MeanDelta, im.MedianDelta, im.StdDelta, im.SampleSize, im.Significant)
	}
	return tw.Flush()
}

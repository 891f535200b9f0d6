package aggregate

import (
	"sort"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
)

// PendingFilter narrows the pending listing. The zero value lists every
// outlier.
type PendingFilter struct {
	Flag          compare.Flag
	NeedsAnalysis bool
	NeedsReview   bool
}

// PendingItem is one outlier still awaiting work.
type PendingItem struct {
	GuidelineID string         `json:"guideline_id"`
	Batch       int            `json:"batch"`
	FlagCount   int            `json:"flag_count"`
	ActiveFlags []compare.Flag `json:"active_flags"`
	HasAnalysis bool           `json:"has_analysis"`
	HasReview   bool           `json:"has_review"`
}

// PendingListing is the filtered pending outliers with status counts.
type PendingListing struct {
	Items            []PendingItem        `json:"items"`
	NeedsAnalysis    int                  `json:"needs_analysis"`
	NeedsReview      int                  `json:"needs_review"`
	Reviewed         int                  `json:"reviewed"`
	FlagDistribution map[compare.Flag]int `json:"flag_distribution"`
}

// Pending lists outliers matching f, most flagged first.
func Pending(records []compare.Record, analyses map[string]*analysis.OutlierAnalysis, f PendingFilter) PendingListing {
	out := PendingListing{Items: []PendingItem{}, FlagDistribution: map[compare.Flag]int{}}
	for _, r := range records {
		if !r.IsOutlier {
			continue
		}
		if f.Flag != "" && !r.Flags.Has(f.Flag) {
			continue
		}
		a, hasAnalysis := analyses[r.GuidelineID]
		hasReview := hasAnalysis && a.HumanReview != nil
		if f.NeedsAnalysis && hasAnalysis {
			continue
		}
		if f.NeedsReview && (!hasAnalysis || hasReview) {
			continue
		}

		out.Items = append(out.Items, PendingItem{
			GuidelineID: r.GuidelineID,
			Batch:       r.Batch,
			FlagCount:   len(r.ActiveFlags),
			ActiveFlags: r.ActiveFlags,
			HasAnalysis: hasAnalysis,
			HasReview:   hasReview,
		})
		switch {
		case !hasAnalysis:
			out.NeedsAnalysis++
		case !hasReview:
			out.NeedsReview++
		default:
			out.Reviewed++
		}
		for _, flag := range r.ActiveFlags {
			out.FlagDistribution[flag]++
		}
	}
	sort.Slice(out.Items, func(i, j int) bool {
		if out.Items[i].FlagCount != out.Items[j].FlagCount {
			return out.Items[i].FlagCount > out.Items[j].FlagCount
		}
		return out.Items[i].GuidelineID < out.Items[j].GuidelineID
	})
	return out
}

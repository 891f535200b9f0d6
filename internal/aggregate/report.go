package aggregate

import (
	"sort"
	"time"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/review"
)

// Item is one outlier with its attention score.
type Item struct {
	GuidelineID    string                  `json:"guideline_id"`
	Batch          int                     `json:"batch"`
	Score          int                     `json:"attention_score"`
	ActiveFlags    []compare.Flag          `json:"active_flags"`
	Analyzed       bool                    `json:"analyzed"`
	Recommendation analysis.Recommendation `json:"overall_recommendation,omitempty"`
	Summary        string                  `json:"summary,omitempty"`
	Status         analysis.Status         `json:"review_status"`
}

// FlagGroup lists the outliers carrying one flag, highest score first.
type FlagGroup struct {
	Flag  compare.Flag `json:"flag"`
	Items []Item       `json:"items"`
}

// BatchStatus is the analysis and review progress of one batch.
type BatchStatus struct {
	BatchID  int    `json:"batch_id"`
	Name     string `json:"name"`
	Outliers int    `json:"outliers"`
	Analyzed int    `json:"analyzed"`
	Reviewed int    `json:"reviewed"`
}

// Totals counts outliers by analysis and review state.
type Totals struct {
	Outliers         int `json:"outliers"`
	Analyzed         int `json:"analyzed"`
	AwaitingAnalysis int `json:"awaiting_analysis"`
	FullyReviewed    int `json:"fully_reviewed"`
	Partial          int `json:"partial"`
	PendingReview    int `json:"pending_review"`
}

// Report is the attention-ranked view of every outlier.
type Report struct {
	GeneratedAt      time.Time                       `json:"generated_at"`
	Standard         string                          `json:"standard"`
	Totals           Totals                          `json:"totals"`
	Recommendations  map[analysis.Recommendation]int `json:"recommendations"`
	Items            []Item                          `json:"items"`
	ByFlag           []FlagGroup                     `json:"by_flag"`
	FlagDistribution map[string]int                  `json:"flag_distribution"`
	MultiDimension   []MultiDimension                `json:"multi_dimension_outliers"`
	Batches          []BatchStatus                   `json:"batches"`
	Systematic       *SystematicPatterns             `json:"systematic_patterns,omitempty"`
}

// Sources bundles the inputs of a report.
type Sources struct {
	Standard string
	// Records are the extracted comparison records of every batch.
	Records []compare.Record
	// Analyses are keyed by guideline id.
	Analyses map[string]*analysis.OutlierAnalysis
	// BatchNames are keyed by batch id.
	BatchNames map[int]string
	Cross      *CrossBatch
}

// BuildReport ranks every outlier in src. Review status is recomputed from
// slot coverage, never read from the stored value.
func BuildReport(src Sources, now time.Time) Report {
	r := Report{
		GeneratedAt:      now.UTC(),
		Standard:         src.Standard,
		Recommendations:  map[analysis.Recommendation]int{},
		Items:            []Item{},
		ByFlag:           []FlagGroup{},
		FlagDistribution: map[string]int{},
		MultiDimension:   []MultiDimension{},
		Batches:          []BatchStatus{},
	}
	if src.Cross != nil {
		sp := src.Cross.SystematicPatterns
		r.Systematic = &sp
	}

	batches := map[int]*BatchStatus{}
	for _, rec := range src.Records {
		if !rec.IsOutlier {
			continue
		}
		bs, ok := batches[rec.Batch]
		if !ok {
			bs = &BatchStatus{BatchID: rec.Batch, Name: src.BatchNames[rec.Batch]}
			batches[rec.Batch] = bs
		}
		bs.Outliers++

		item := Item{
			GuidelineID: rec.GuidelineID,
			Batch:       rec.Batch,
			ActiveFlags: rec.ActiveFlags,
			Status:      analysis.StatusPending,
		}
		var llm *analysis.LLMAnalysis
		if a, ok := src.Analyses[rec.GuidelineID]; ok {
			llm = &a.LLMAnalysis
			item.Analyzed = true
			item.Recommendation = a.LLMAnalysis.OverallRecommendation
			item.Summary = a.LLMAnalysis.Summary
			item.Status = review.ComputeStatus(a)
			r.Recommendations[item.Recommendation]++
			bs.Analyzed++
		}
		item.Score = AttentionScore(rec.Flags, llm, item.Status)

		r.Totals.Outliers++
		if item.Analyzed {
			r.Totals.Analyzed++
		} else {
			r.Totals.AwaitingAnalysis++
		}
		switch item.Status {
		case analysis.StatusFullyReviewed:
			r.Totals.FullyReviewed++
			bs.Reviewed++
		case analysis.StatusPartial:
			r.Totals.Partial++
		default:
			r.Totals.PendingReview++
		}

		r.FlagDistribution[flagCountKey(rec.Flags.Dimensions())]++
		if rec.Flags.MultiDimensionOutlier {
			r.MultiDimension = append(r.MultiDimension, MultiDimension{
				GuidelineID: rec.GuidelineID,
				Batch:       rec.Batch,
				FlagCount:   len(rec.ActiveFlags),
				Flags:       rec.ActiveFlags,
			})
		}
		r.Items = append(r.Items, item)
	}

	Rank(r.Items)
	for _, flag := range compare.AllFlags {
		var group []Item
		for _, it := range r.Items {
			if hasFlag(it.ActiveFlags, flag) {
				group = append(group, it)
			}
		}
		if len(group) > 0 {
			r.ByFlag = append(r.ByFlag, FlagGroup{Flag: flag, Items: group})
		}
	}
	sort.Slice(r.MultiDimension, func(i, j int) bool {
		a, b := r.MultiDimension[i], r.MultiDimension[j]
		if a.FlagCount != b.FlagCount {
			return a.FlagCount > b.FlagCount
		}
		return a.GuidelineID < b.GuidelineID
	})
	for _, bs := range batches {
		r.Batches = append(r.Batches, *bs)
	}
	sort.Slice(r.Batches, func(i, j int) bool { return r.Batches[i].BatchID < r.Batches[j].BatchID })
	return r
}

// Rank orders items by descending score, then guideline id.
func Rank(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].GuidelineID < items[j].GuidelineID
	})
}

func hasFlag(flags []compare.Flag, f compare.Flag) bool {
	for _, x := range flags {
		if x == f {
			return true
		}
	}
	return false
}

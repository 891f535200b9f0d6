package aggregate

import (
	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
)

// FlagWeights is the attention weight of each flag.
var FlagWeights = map[compare.Flag]int{
	compare.FlagSpecificityDecreased:            10,
	compare.FlagMultiDimensionOutlier:           8,
	compare.FlagRationaleTypeChanged:            5,
	compare.FlagFLSRemoved:                      4,
	compare.FlagApplicabilityDiffersFromADD6:    4,
	compare.FlagAdjustedCategoryDiffersFromADD6: 3,
	compare.FlagFLSAdded:                        2,
	compare.FlagBatchPatternOutlier:             2,
	compare.FlagMissingAnalysisSummary:          1,
	compare.FlagMissingSearchTools:              1,
}

// VerdictSeverity is the attention added by an LLM verdict. Verdicts not
// listed add nothing.
var VerdictSeverity = map[analysis.Verdict]int{
	analysis.VerdictInappropriate: 10,
	analysis.VerdictNeedsReview:   7,
}

const (
	fullyReviewedDiscount = 15
	partialDiscount       = 5
)

// AttentionScore ranks how urgently a guideline needs a human. llm may be
// nil when no analysis exists. The score never drops below zero.
func AttentionScore(flags compare.Flags, llm *analysis.LLMAnalysis, status analysis.Status) int {
	score := 0
	for flag, w := range FlagWeights {
		if flags.Has(flag) {
			score += w
		}
	}
	if llm != nil {
		for _, a := range analysis.Aspects {
			if v, ok := llm.Verdict(a); ok {
				score += VerdictSeverity[v]
			}
		}
	}
	switch status {
	case analysis.StatusFullyReviewed:
		score -= fullyReviewedDiscount
	case analysis.StatusPartial:
		score -= partialDiscount
	}
	if score < 0 {
		return 0
	}
	return score
}

package compare

import (
	"github.com/dshills/flsverify/internal/schema"
)

// Flag names one divergence dimension.
type Flag string

const (
	FlagFLSRemoved                      Flag = "fls_removed"
	FlagFLSAdded                        Flag = "fls_added"
	FlagRationaleTypeChanged            Flag = "rationale_type_changed"
	FlagApplicabilityDiffersFromADD6    Flag = "applicability_differs_from_add6"
	FlagAdjustedCategoryDiffersFromADD6 Flag = "adjusted_category_differs_from_add6"
	FlagSpecificityDecreased            Flag = "specificity_decreased"
	FlagBatchPatternOutlier             Flag = "batch_pattern_outlier"
	FlagMissingAnalysisSummary          Flag = "missing_analysis_summary"
	FlagMissingSearchTools              Flag = "missing_search_tools"
	FlagMultiDimensionOutlier           Flag = "multi_dimension_outlier"
)

// AllFlags lists every flag in report order, the meta flag last.
var AllFlags = []Flag{
	FlagFLSRemoved,
	FlagFLSAdded,
	FlagRationaleTypeChanged,
	FlagApplicabilityDiffersFromADD6,
	FlagAdjustedCategoryDiffersFromADD6,
	FlagSpecificityDecreased,
	FlagBatchPatternOutlier,
	FlagMissingAnalysisSummary,
	FlagMissingSearchTools,
	FlagMultiDimensionOutlier,
}

// ParseFlag returns the flag with the given name.
func ParseFlag(s string) (Flag, bool) {
	for _, f := range AllFlags {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Flags is the per-guideline flag set aggregated over both contexts.
type Flags struct {
	FLSRemoved                      bool `json:"fls_removed"`
	FLSAdded                        bool `json:"fls_added"`
	RationaleTypeChanged            bool `json:"rationale_type_changed"`
	ApplicabilityDiffersFromADD6    bool `json:"applicability_differs_from_add6"`
	AdjustedCategoryDiffersFromADD6 bool `json:"adjusted_category_differs_from_add6"`
	SpecificityDecreased            bool `json:"specificity_decreased"`
	BatchPatternOutlier             bool `json:"batch_pattern_outlier"`
	MissingAnalysisSummary          bool `json:"missing_analysis_summary"`
	MissingSearchTools              bool `json:"missing_search_tools"`
	MultiDimensionOutlier           bool `json:"multi_dimension_outlier"`
}

// Has reports whether flag f is set.
func (f Flags) Has(flag Flag) bool {
	switch flag {
	case FlagFLSRemoved:
		return f.FLSRemoved
	case FlagFLSAdded:
		return f.FLSAdded
	case FlagRationaleTypeChanged:
		return f.RationaleTypeChanged
	case FlagApplicabilityDiffersFromADD6:
		return f.ApplicabilityDiffersFromADD6
	case FlagAdjustedCategoryDiffersFromADD6:
		return f.AdjustedCategoryDiffersFromADD6
	case FlagSpecificityDecreased:
		return f.SpecificityDecreased
	case FlagBatchPatternOutlier:
		return f.BatchPatternOutlier
	case FlagMissingAnalysisSummary:
		return f.MissingAnalysisSummary
	case FlagMissingSearchTools:
		return f.MissingSearchTools
	case FlagMultiDimensionOutlier:
		return f.MultiDimensionOutlier
	}
	return false
}

// Active returns the set flags in AllFlags order.
func (f Flags) Active() []Flag {
	out := []Flag{}
	for _, flag := range AllFlags {
		if f.Has(flag) {
			out = append(out, flag)
		}
	}
	return out
}

// Dimensions counts the set flags excluding the meta flag.
func (f Flags) Dimensions() int {
	n := 0
	for _, flag := range AllFlags {
		if flag != FlagMultiDimensionOutlier && f.Has(flag) {
			n++
		}
	}
	return n
}

// IsOutlier reports whether any non-meta flag is set.
func (f Flags) IsOutlier() bool { return f.Dimensions() > 0 }

// Deviation is one expected-pattern field the decision does not match.
type Deviation struct {
	Context  schema.Context `json:"context"`
	Field    string         `json:"field"`
	Expected string         `json:"expected"`
	Actual   string         `json:"actual"`
}

// PatternDeviations compares every field declared in expected against the
// decision, contexts in canonical order and fields in PatternFields order.
func PatternDeviations(decision *schema.DecisionRecord, expected schema.ExpectedPattern) []Deviation {
	var out []Deviation
	for _, ctx := range schema.Contexts {
		fields, ok := expected[ctx]
		if !ok {
			continue
		}
		entry := decision.Entry(ctx)
		for _, field := range schema.PatternFields {
			want, declared := fields[field]
			if !declared {
				continue
			}
			got, _ := entry.FieldValue(field)
			want = schema.NormalizePatternValue(field, want)
			if got != want {
				out = append(out, Deviation{Context: ctx, Field: field, Expected: want, Actual: got})
			}
		}
	}
	return out
}

// ComputeFlags derives the flag set from both comparisons, the decision
// metadata and the batch's expected pattern (which may be nil).
func ComputeFlags(cmp ByContext, decision *schema.DecisionRecord, expected schema.ExpectedPattern) Flags {
	var f Flags
	for _, c := range cmp.All() {
		f.FLSRemoved = f.FLSRemoved || len(c.FLSRemoved) > 0
		f.FLSAdded = f.FLSAdded || len(c.FLSAdded) > 0
		f.RationaleTypeChanged = f.RationaleTypeChanged || c.RationaleTypeChanged
		f.ApplicabilityDiffersFromADD6 = f.ApplicabilityDiffersFromADD6 || c.ApplicabilityDiffersFromADD6
		f.AdjustedCategoryDiffersFromADD6 = f.AdjustedCategoryDiffersFromADD6 || c.AdjustedCategoryDiffersFromADD6
		f.SpecificityDecreased = f.SpecificityDecreased || len(c.LostParagraphs) > 0
	}
	f.MissingAnalysisSummary = !cmp.AllRust.HasAnalysisSummary && !cmp.SafeRust.HasAnalysisSummary
	f.MissingSearchTools = !cmp.AllRust.HasSearchTools && !cmp.SafeRust.HasSearchTools
	f.BatchPatternOutlier = len(PatternDeviations(decision, expected)) > 0
	f.MultiDimensionOutlier = f.Dimensions() >= 2
	return f
}

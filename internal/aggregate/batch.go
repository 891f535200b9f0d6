package aggregate

import (
	"sort"
	"strconv"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
)

// Conformance counts guidelines that follow a batch's expected pattern.
type Conformance struct {
	Conforms int     `json:"conforms"`
	Outliers int     `json:"outliers"`
	Rate     float64 `json:"rate"`
}

// ADD6Agreement counts agreement with the ADD-6 reference per field.
type ADD6Agreement struct {
	ApplicabilityMatches    int `json:"applicability_matches_add6"`
	ApplicabilityDiffers    int `json:"applicability_differs_from_add6"`
	AdjustedCategoryMatches int `json:"adjusted_category_matches_add6"`
	AdjustedCategoryDiffers int `json:"adjusted_category_differs_from_add6"`
}

// FLSChanges totals match changes in one context.
type FLSChanges struct {
	TotalAdded                  int `json:"total_added"`
	TotalRemoved                int `json:"total_removed"`
	NetChange                   int `json:"net_change"`
	GuidelinesWithRemovals      int `json:"guidelines_with_removals"`
	GuidelinesWithAdditionsGTE2 int `json:"guidelines_with_additions_gte_2"`
}

// Quality counts guidelines whose decision documents its work.
type Quality struct {
	HasAnalysisSummary       int `json:"has_analysis_summary"`
	HasSearchToolsDocumented int `json:"has_search_tools_documented"`
	HasRejectedMatches       int `json:"has_rejected_matches"`
}

// SchemaDistribution counts source record versions.
type SchemaDistribution struct {
	Mapping  map[string]int `json:"mapping"`
	Decision map[string]int `json:"decision"`
}

func newSchemaDistribution() SchemaDistribution {
	return SchemaDistribution{Mapping: map[string]int{}, Decision: map[string]int{}}
}

// BatchSummary is the statistics of one batch.
type BatchSummary struct {
	BatchID                   int                               `json:"batch_id"`
	BatchName                 string                            `json:"batch_name"`
	ExpectedPattern           schema.ExpectedPattern            `json:"expected_pattern"`
	GuidelineCount            int                               `json:"guideline_count"`
	OutlierCount              int                               `json:"outlier_count"`
	SchemaDistribution        SchemaDistribution                `json:"schema_distribution"`
	PatternConformance        map[schema.Context]Conformance    `json:"pattern_conformance"`
	CategorizationSummary     map[schema.Context]*ADD6Agreement `json:"categorization_summary"`
	RationaleTypeDistribution map[schema.Context]map[string]int `json:"rationale_type_distribution"`
	RationaleTypeTransitions  map[schema.Context]map[string]int `json:"rationale_type_transitions"`
	FLSChangesSummary         map[schema.Context]*FLSChanges    `json:"fls_changes_summary"`
	QualitySummary            Quality                           `json:"quality_summary"`
	FlaggedGuidelines         map[compare.Flag][]string         `json:"flagged_guidelines"`
	Guidelines                []string                          `json:"guidelines"`
}

// SummarizeBatch computes the statistics of def over its extracted records.
func SummarizeBatch(def batch.Definition, records []compare.Record) BatchSummary {
	name := def.Name
	if name == "" {
		name = "Batch " + strconv.Itoa(def.ID)
	}
	s := BatchSummary{
		BatchID:                   def.ID,
		BatchName:                 name,
		ExpectedPattern:           def.ExpectedPattern,
		GuidelineCount:            len(records),
		SchemaDistribution:        newSchemaDistribution(),
		PatternConformance:        map[schema.Context]Conformance{},
		CategorizationSummary:     map[schema.Context]*ADD6Agreement{},
		RationaleTypeDistribution: map[schema.Context]map[string]int{},
		RationaleTypeTransitions:  map[schema.Context]map[string]int{},
		FLSChangesSummary:         map[schema.Context]*FLSChanges{},
		FlaggedGuidelines:         map[compare.Flag][]string{},
		Guidelines:                make([]string, 0, len(records)),
	}
	if s.ExpectedPattern == nil {
		s.ExpectedPattern = schema.ExpectedPattern{}
	}
	conforms := map[schema.Context]int{}
	for _, ctx := range schema.Contexts {
		s.CategorizationSummary[ctx] = &ADD6Agreement{}
		s.RationaleTypeDistribution[ctx] = map[string]int{}
		s.RationaleTypeTransitions[ctx] = map[string]int{}
		s.FLSChangesSummary[ctx] = &FLSChanges{}
	}

	for _, r := range records {
		s.Guidelines = append(s.Guidelines, r.GuidelineID)
		if r.IsOutlier {
			s.OutlierCount++
		}
		s.SchemaDistribution.Mapping[r.Mapping.SourceVersion.String()]++
		s.SchemaDistribution.Decision[r.Decision.SourceVersion.String()]++

		deviates := map[schema.Context]bool{}
		for _, d := range r.PatternDeviations {
			deviates[d.Context] = true
		}
		var summary, tools, rejected bool
		for _, ctx := range schema.Contexts {
			if !deviates[ctx] {
				conforms[ctx]++
			}
			c := r.Comparison.Get(ctx)
			agree := s.CategorizationSummary[ctx]
			if c.ApplicabilityDiffersFromADD6 {
				agree.ApplicabilityDiffers++
			} else {
				agree.ApplicabilityMatches++
			}
			if c.AdjustedCategoryDiffersFromADD6 {
				agree.AdjustedCategoryDiffers++
			} else {
				agree.AdjustedCategoryMatches++
			}

			if rt := r.Decision.Entry(ctx).RationaleType; rt != "" {
				s.RationaleTypeDistribution[ctx][string(rt)]++
			}
			if c.RationaleTypeChanged {
				s.RationaleTypeTransitions[ctx][c.RationaleTypeMappingToDecision]++
			}

			ch := s.FLSChangesSummary[ctx]
			ch.TotalAdded += len(c.FLSAdded)
			ch.TotalRemoved += len(c.FLSRemoved)
			ch.NetChange = ch.TotalAdded - ch.TotalRemoved
			if len(c.FLSRemoved) > 0 {
				ch.GuidelinesWithRemovals++
			}
			if len(c.FLSAdded) >= 2 {
				ch.GuidelinesWithAdditionsGTE2++
			}

			summary = summary || c.HasAnalysisSummary
			tools = tools || c.HasSearchTools
			rejected = rejected || c.HasRejectedMatches
		}
		if summary {
			s.QualitySummary.HasAnalysisSummary++
		}
		if tools {
			s.QualitySummary.HasSearchToolsDocumented++
		}
		if rejected {
			s.QualitySummary.HasRejectedMatches++
		}
		for _, f := range r.ActiveFlags {
			s.FlaggedGuidelines[f] = append(s.FlaggedGuidelines[f], r.GuidelineID)
		}
	}

	for _, ctx := range schema.Contexts {
		c := Conformance{Conforms: conforms[ctx], Outliers: len(records) - conforms[ctx]}
		if len(records) > 0 {
			c.Rate = float64(c.Conforms) / float64(len(records))
		}
		s.PatternConformance[ctx] = c
	}
	sort.Strings(s.Guidelines)
	for f := range s.FlaggedGuidelines {
		sort.Strings(s.FlaggedGuidelines[f])
	}
	return s
}

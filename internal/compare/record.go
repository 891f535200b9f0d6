package compare

import (
	"github.com/dshills/flsverify/internal/schema"
)

// Record is the extracted comparison data for one guideline of a batch.
type Record struct {
	GuidelineID       string                `json:"guideline_id"`
	Batch             int                   `json:"batch"`
	Mapping           schema.MappingEntry   `json:"mapping"`
	Decision          schema.DecisionRecord `json:"decision"`
	ADD6              *schema.ADD6Row       `json:"add6"`
	Comparison        ByContext             `json:"comparison"`
	Flags             Flags                 `json:"flags"`
	ActiveFlags       []Flag                `json:"active_flags"`
	IsOutlier         bool                  `json:"is_outlier"`
	PatternDeviations []Deviation           `json:"pattern_deviations,omitempty"`
}

// Input bundles everything needed to build a Record.
type Input struct {
	Batch    int
	Mapping  *schema.MappingEntry
	Decision *schema.DecisionRecord
	ADD6     *schema.ADD6Row
	Expected schema.ExpectedPattern
	Sections SectionLookup
}

// Build compares and flags one guideline.
func Build(in Input) (Record, error) {
	cmp, err := Compare(in.Mapping, in.Decision, in.ADD6, in.Sections)
	if err != nil {
		return Record{}, err
	}
	flags := ComputeFlags(cmp, in.Decision, in.Expected)
	return Record{
		GuidelineID:       in.Decision.GuidelineID,
		Batch:             in.Batch,
		Mapping:           *in.Mapping,
		Decision:          *in.Decision,
		ADD6:              in.ADD6,
		Comparison:        cmp,
		Flags:             flags,
		ActiveFlags:       flags.Active(),
		IsOutlier:         flags.IsOutlier(),
		PatternDeviations: PatternDeviations(in.Decision, in.Expected),
	}, nil
}

// ComparisonIDs returns the ids of both comparisons.
func (r Record) ComparisonIDs() []string {
	return []string{r.Comparison.AllRust.ComparisonID, r.Comparison.SafeRust.ComparisonID}
}

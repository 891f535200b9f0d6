package aggregate

import (
	"sort"
	"strconv"

	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
)

// DefaultSystematicThreshold is the number of distinct guidelines an
// fls_id must change in to count as systematic.
const DefaultSystematicThreshold = 2

// maxExamples caps the example guidelines listed per pattern.
const maxExamples = 10

// Pattern is an fls_id removed or added across many guidelines.
type Pattern struct {
	FLSID      string      `json:"fls_id"`
	Count      int         `json:"count"`
	Batches    map[int]int `json:"batches"`
	Guidelines []string    `json:"guidelines"`
}

// SystematicPatterns lists the recurring changes across batches.
type SystematicPatterns struct {
	Removed     []Pattern      `json:"fls_sections_frequently_removed"`
	Added       []Pattern      `json:"fls_sections_frequently_added"`
	Transitions map[string]int `json:"rationale_type_transitions_overall"`
}

// MultiDimension is a guideline flagged on two or more dimensions.
type MultiDimension struct {
	GuidelineID string         `json:"guideline_id"`
	Batch       int            `json:"batch"`
	FlagCount   int            `json:"flag_count"`
	Flags       []compare.Flag `json:"flags"`
}

// Concentration describes how flags cluster on guidelines.
type Concentration struct {
	MultiDimension []MultiDimension `json:"guidelines_flagged_on_multiple_dimensions"`
	Distribution   map[string]int   `json:"distribution"`
}

// BatchInfo names a batch and its guideline count.
type BatchInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CrossBatch is the summary across every extracted batch.
type CrossBatch struct {
	TotalGuidelines           int                                    `json:"total_guidelines"`
	Threshold                 int                                    `json:"systematic_threshold"`
	Batches                   map[int]BatchInfo                      `json:"batches"`
	OverallSchemaDistribution SchemaDistribution                     `json:"overall_schema_distribution"`
	BatchPatternConformance   map[int]map[schema.Context]Conformance `json:"batch_pattern_conformance"`
	SystematicPatterns        SystematicPatterns                     `json:"systematic_patterns"`
	OutlierConcentration      Concentration                          `json:"outlier_concentration"`
}

type tally struct {
	batches    map[int]map[string]bool
	guidelines []string
	seen       map[string]bool
}

func (t *tally) add(batch int, gid string) {
	if t.batches[batch] == nil {
		t.batches[batch] = map[string]bool{}
	}
	t.batches[batch][gid] = true
	if !t.seen[gid] {
		t.seen[gid] = true
		t.guidelines = append(t.guidelines, gid)
	}
}

type tallies map[string]*tally

func (ts tallies) add(flsID string, batch int, gid string) {
	t, ok := ts[flsID]
	if !ok {
		t = &tally{batches: map[int]map[string]bool{}, seen: map[string]bool{}}
		ts[flsID] = t
	}
	t.add(batch, gid)
}

// patterns keeps the ids changed in at least threshold distinct guidelines,
// most frequent first.
func (ts tallies) patterns(threshold int) []Pattern {
	out := []Pattern{}
	for id, t := range ts {
		if len(t.guidelines) < threshold {
			continue
		}
		p := Pattern{FLSID: id, Count: len(t.guidelines), Batches: map[int]int{}}
		for b, gids := range t.batches {
			p.Batches[b] = len(gids)
		}
		examples := append([]string(nil), t.guidelines...)
		sort.Strings(examples)
		if len(examples) > maxExamples {
			examples = examples[:maxExamples]
		}
		p.Guidelines = examples
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FLSID < out[j].FLSID
	})
	return out
}

// Summarize computes the cross-batch summary. records and summaries are
// keyed by batch id; a threshold below 1 selects the default.
func Summarize(records map[int][]compare.Record, summaries map[int]BatchSummary, threshold int) CrossBatch {
	if threshold < 1 {
		threshold = DefaultSystematicThreshold
	}
	cb := CrossBatch{
		Threshold:                 threshold,
		Batches:                   map[int]BatchInfo{},
		OverallSchemaDistribution: newSchemaDistribution(),
		BatchPatternConformance:   map[int]map[schema.Context]Conformance{},
		OutlierConcentration: Concentration{
			MultiDimension: []MultiDimension{},
			Distribution:   map[string]int{},
		},
	}
	removed, added := tallies{}, tallies{}
	transitions := map[string]int{}

	batchIDs := make([]int, 0, len(records))
	for b := range records {
		batchIDs = append(batchIDs, b)
	}
	sort.Ints(batchIDs)

	for _, b := range batchIDs {
		for _, r := range records[b] {
			cb.TotalGuidelines++
			for _, ctx := range schema.Contexts {
				c := r.Comparison.Get(ctx)
				for _, id := range c.FLSRemoved {
					removed.add(id, b, r.GuidelineID)
				}
				for _, id := range c.FLSAdded {
					added.add(id, b, r.GuidelineID)
				}
			}
			if t := r.Comparison.AllRust.RationaleTypeMappingToDecision; t != "" {
				transitions[t]++
			}

			n := r.Flags.Dimensions()
			cb.OutlierConcentration.Distribution[flagCountKey(n)]++
			if r.Flags.MultiDimensionOutlier {
				cb.OutlierConcentration.MultiDimension = append(cb.OutlierConcentration.MultiDimension, MultiDimension{
					GuidelineID: r.GuidelineID,
					Batch:       b,
					FlagCount:   len(r.ActiveFlags),
					Flags:       r.ActiveFlags,
				})
			}
		}
	}

	for b, s := range summaries {
		cb.Batches[b] = BatchInfo{Name: s.BatchName, Count: s.GuidelineCount}
		cb.BatchPatternConformance[b] = s.PatternConformance
		for v, n := range s.SchemaDistribution.Mapping {
			cb.OverallSchemaDistribution.Mapping[v] += n
		}
		for v, n := range s.SchemaDistribution.Decision {
			cb.OverallSchemaDistribution.Decision[v] += n
		}
	}

	sort.SliceStable(cb.OutlierConcentration.MultiDimension, func(i, j int) bool {
		a, b := cb.OutlierConcentration.MultiDimension[i], cb.OutlierConcentration.MultiDimension[j]
		if a.FlagCount != b.FlagCount {
			return a.FlagCount > b.FlagCount
		}
		return a.GuidelineID < b.GuidelineID
	})
	cb.SystematicPatterns = SystematicPatterns{
		Removed:     removed.patterns(threshold),
		Added:       added.patterns(threshold),
		Transitions: transitions,
	}
	return cb
}

// dimensions counts the set flags other than the multi-dimension meta flag.
func flagCountKey(n int) string {
	if n == 1 {
		return "1_flag"
	}
	return strconv.Itoa(n) + "_flags"
}

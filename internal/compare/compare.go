package compare

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dshills/flsverify/internal/schema"
)

var comparisonNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dshills/flsverify/comparison"))

// ComparisonID returns the stable id of the comparison for one guideline
// and context.
func ComparisonID(guidelineID string, ctx schema.Context) string {
	return uuid.NewSHA1(comparisonNamespace, []byte(guidelineID+"\x00"+string(ctx))).String()
}

// SectionLookup resolves the parent section of a paragraph-level fls_id.
type SectionLookup interface {
	SectionOf(flsID string) (string, bool)
}

// LostParagraph is a removed paragraph-level match whose section is no
// longer covered by the decision.
type LostParagraph struct {
	FLSID        string `json:"fls_id"`
	Title        string `json:"title,omitempty"`
	Category     int    `json:"category"`
	SectionFLSID string `json:"section_fls_id,omitempty"`
}

// Comparison is the diff of one guideline in one context.
type Comparison struct {
	ComparisonID string         `json:"comparison_id"`
	GuidelineID  string         `json:"guideline_id"`
	Context      schema.Context `json:"context"`

	FLSAdded           []string `json:"fls_added"`
	FLSRemoved         []string `json:"fls_removed"`
	FLSRetained        []string `json:"fls_retained"`
	MatchCountMapping  int      `json:"match_count_mapping"`
	MatchCountDecision int      `json:"match_count_decision"`
	NetFLSChange       int      `json:"net_fls_change"`

	ApplicabilityChanged              bool   `json:"applicability_changed"`
	ApplicabilityMappingToDecision    string `json:"applicability_mapping_to_decision,omitempty"`
	AdjustedCategoryChanged           bool   `json:"adjusted_category_changed"`
	AdjustedCategoryMappingToDecision string `json:"adjusted_category_mapping_to_decision,omitempty"`
	RationaleTypeChanged              bool   `json:"rationale_type_changed"`
	RationaleTypeMappingToDecision    string `json:"rationale_type_mapping_to_decision,omitempty"`

	ADD6Applicability               schema.Applicability    `json:"add6_applicability,omitempty"`
	ADD6AdjustedCategory            schema.AdjustedCategory `json:"add6_adjusted_category,omitempty"`
	ApplicabilityDiffersFromADD6    bool                    `json:"applicability_differs_from_add6"`
	AdjustedCategoryDiffersFromADD6 bool                    `json:"adjusted_category_differs_from_add6"`

	LostParagraphs []LostParagraph `json:"lost_paragraphs"`

	HasAnalysisSummary bool `json:"has_analysis_summary"`
	HasSearchTools     bool `json:"has_search_tools"`
	HasRejectedMatches bool `json:"has_rejected_matches"`
}

// ByContext holds one comparison per context.
type ByContext struct {
	AllRust  Comparison `json:"all_rust"`
	SafeRust Comparison `json:"safe_rust"`
}

// Get returns the comparison for context c.
func (b *ByContext) Get(c schema.Context) *Comparison {
	if c == schema.ContextSafeRust {
		return &b.SafeRust
	}
	return &b.AllRust
}

// All returns both comparisons in canonical context order.
func (b ByContext) All() []Comparison {
	return []Comparison{b.AllRust, b.SafeRust}
}

// Compare diffs decision against mapping in both contexts. add6 and
// sections may be nil. A structurally invalid decision is rejected with a
// *schema.ValidationError and never diffed.
func Compare(mapping *schema.MappingEntry, decision *schema.DecisionRecord, add6 *schema.ADD6Row, sections SectionLookup) (ByContext, error) {
	if err := schema.ValidateDecision(decision); err != nil {
		return ByContext{}, err
	}
	if mapping.GuidelineID != decision.GuidelineID {
		return ByContext{}, fmt.Errorf("mapping is for %s but decision is for %s", mapping.GuidelineID, decision.GuidelineID)
	}

	var out ByContext
	for _, ctx := range schema.Contexts {
		*out.Get(ctx) = compareContext(decision.GuidelineID, ctx, mapping.Entry(ctx), decision.Entry(ctx), add6, sections)
	}
	return out, nil
}

func compareContext(id string, ctx schema.Context, m, d *schema.ContextEntry, add6 *schema.ADD6Row, sections SectionLookup) Comparison {
	c := Comparison{
		ComparisonID:       ComparisonID(id, ctx),
		GuidelineID:        id,
		Context:            ctx,
		MatchCountMapping:  len(m.AcceptedMatches),
		MatchCountDecision: len(d.AcceptedMatches),
		NetFLSChange:       len(d.AcceptedMatches) - len(m.AcceptedMatches),
		HasAnalysisSummary: d.AnalysisSummary != "",
		HasSearchTools:     d.SearchToolsUsed.Present(),
		HasRejectedMatches: len(d.RejectedMatches) > 0,
		LostParagraphs:     []LostParagraph{},
	}
	c.FLSAdded, c.FLSRemoved, c.FLSRetained = diffIDs(m.AcceptedIDs(), d.AcceptedIDs())

	c.ApplicabilityChanged, c.ApplicabilityMappingToDecision =
		transition(string(m.Applicability.Normalized()), string(d.Applicability.Normalized()))
	c.AdjustedCategoryChanged, c.AdjustedCategoryMappingToDecision =
		transition(string(m.AdjustedCategory.Normalized()), string(d.AdjustedCategory.Normalized()))
	c.RationaleTypeChanged, c.RationaleTypeMappingToDecision =
		transition(string(m.RationaleType.Normalized()), string(d.RationaleType.Normalized()))

	if add6 != nil {
		c.ADD6Applicability = add6.Applicability(ctx)
		c.ADD6AdjustedCategory = add6.AdjustedCategory.Normalized()
		if c.ADD6Applicability != "" {
			c.ApplicabilityDiffersFromADD6 = d.Applicability.Normalized() != c.ADD6Applicability
		}
		if c.ADD6AdjustedCategory != "" {
			c.AdjustedCategoryDiffersFromADD6 = d.AdjustedCategory.Normalized() != c.ADD6AdjustedCategory
		}
	}

	c.LostParagraphs = lostParagraphs(c.FLSRemoved, m, d, sections)
	return c
}

// diffIDs returns sorted added, removed and retained ids. None of the
// returned slices is nil.
func diffIDs(mapping, decision []string) (added, removed, retained []string) {
	inMapping := make(map[string]bool, len(mapping))
	for _, id := range mapping {
		inMapping[id] = true
	}
	inDecision := make(map[string]bool, len(decision))
	for _, id := range decision {
		inDecision[id] = true
	}

	added, removed, retained = []string{}, []string{}, []string{}
	for id := range inDecision {
		if inMapping[id] {
			retained = append(retained, id)
		} else {
			added = append(added, id)
		}
	}
	for id := range inMapping {
		if !inDecision[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(retained)
	return added, removed, retained
}

func transition(from, to string) (bool, string) {
	if from == to {
		return false, ""
	}
	return true, from + "→" + to
}

// sectionOf resolves the section a match belongs to. Section-level matches
// are their own section. An unresolvable paragraph returns "".
func sectionOf(m schema.Match, sections SectionLookup) string {
	if !m.IsParagraph() {
		return m.FLSID
	}
	if m.SectionFLSID != "" {
		return m.SectionFLSID
	}
	if sections != nil {
		if s, ok := sections.SectionOf(m.FLSID); ok {
			return s
		}
	}
	return ""
}

// lostParagraphs reports removed paragraph-level baseline matches whose
// section is not shared by any match the decision accepts. The check is by
// section only; it does not compare granularity of the covering match.
func lostParagraphs(removed []string, m, d *schema.ContextEntry, sections SectionLookup) []LostParagraph {
	covered := map[string]bool{}
	for _, dm := range d.AcceptedMatches {
		if s := sectionOf(dm, sections); s != "" {
			covered[s] = true
		}
	}

	lost := []LostParagraph{}
	for _, id := range removed {
		bm, ok := m.AcceptedMatch(id)
		if !ok || !bm.IsParagraph() {
			continue
		}
		s := sectionOf(bm, sections)
		if s != "" && covered[s] {
			continue
		}
		lost = append(lost, LostParagraph{FLSID: id, Title: bm.FLSTitle, Category: bm.Category, SectionFLSID: s})
	}
	return lost
}

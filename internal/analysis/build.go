package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

// Justification explains one removed or added fls_id in one or both
// contexts. It is written "fls_id:context:text" on the command line.
type Justification struct {
	FLSID    string
	Contexts []schema.Context
	Text     string
}

// ParseJustification parses "fls_id:context:text" where context is
// all_rust, safe_rust or both. The text may itself contain colons.
func ParseJustification(s string) (Justification, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Justification{}, fmt.Errorf("invalid justification %q: want fls_id:context:text", s)
	}
	id := strings.TrimSpace(parts[0])
	if !schema.ValidFLSID(id) {
		return Justification{}, fmt.Errorf("invalid justification %q: bad FLS id %q", s, id)
	}
	ctxs, err := schema.ParseContextSelector(parts[1])
	if err != nil {
		return Justification{}, fmt.Errorf("invalid justification %q: %w", s, err)
	}
	text := strings.TrimSpace(parts[2])
	if text == "" {
		return Justification{}, fmt.Errorf("invalid justification %q: empty text", s)
	}
	return Justification{FLSID: id, Contexts: ctxs, Text: text}, nil
}

// Input is the author-supplied content of an analysis.
type Input struct {
	Summary        string
	Recommendation Recommendation
	Categorization *AspectVerdict
	FLSRemovals    *AspectVerdict
	FLSAdditions   *AspectVerdict
	ADD6Divergence *AspectVerdict
	Specificity    *AspectVerdict
	Removals       []Justification
	Additions      []Justification
	RoutinePattern string
	Notes          string
	AnalyzedAt     time.Time
	// Strict turns justifications that did not apply into errors.
	Strict bool
}

func (in Input) verdict(a Aspect) *AspectVerdict {
	switch a {
	case AspectCategorization:
		return in.Categorization
	case AspectFLSRemovals:
		return in.FLSRemovals
	case AspectFLSAdditions:
		return in.FLSAdditions
	case AspectADD6Divergence:
		return in.ADD6Divergence
	case AspectSpecificity:
		return in.Specificity
	}
	return nil
}

// ContentStore supplies FLS content for display enrichment.
type ContentStore interface {
	Lookup(flsID string) (store.Content, bool)
}

// MissingKind classifies a missing item.
type MissingKind string

const (
	MissingField                 MissingKind = "field"
	MissingVerdict               MissingKind = "verdict"
	MissingRemovalJustification  MissingKind = "removal_justification"
	MissingAdditionJustification MissingKind = "addition_justification"
)

// MissingItem is one thing the gate requires but was not supplied.
type MissingItem struct {
	Kind    MissingKind    `json:"kind"`
	Aspect  Aspect         `json:"aspect,omitempty"`
	Field   string         `json:"field,omitempty"`
	FLSID   string         `json:"fls_id,omitempty"`
	Context schema.Context `json:"context,omitempty"`
}

func (m MissingItem) String() string {
	switch m.Kind {
	case MissingVerdict:
		return fmt.Sprintf("%s verdict (required: %s flag set)", m.Aspect, m.Aspect.reason())
	case MissingRemovalJustification:
		return fmt.Sprintf("removal justification for (%s, %s)", m.FLSID, m.Context)
	case MissingAdditionJustification:
		return fmt.Sprintf("addition justification for (%s, %s)", m.FLSID, m.Context)
	}
	return m.Field
}

// IncompleteError lists every item missing from an analysis.
type IncompleteError struct {
	GuidelineID string
	Missing     []MissingItem
}

func (e *IncompleteError) Error() string {
	items := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		items[i] = m.String()
	}
	return fmt.Sprintf("analysis for %s is incomplete: missing %s", e.GuidelineID, strings.Join(items, "; "))
}

// InconsistentError lists justifications naming an fls_id that did not
// change where the author said it did.
type InconsistentError struct {
	GuidelineID string
	Problems    []string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("analysis for %s has stray justifications: %s", e.GuidelineID, strings.Join(e.Problems, "; "))
}

// Build validates in against the record's flags and assembles the
// analysis. Warnings describe justifications that did not apply; with
// in.Strict they are returned as an *InconsistentError instead, after any
// *IncompleteError.
func Build(rec compare.Record, in Input, content ContentStore) (*OutlierAnalysis, []string, error) {
	if err := checkValues(in); err != nil {
		return nil, nil, err
	}

	removals := groupRemovals(rec)
	additions := groupAdditions(rec)

	var warnings []string
	for _, j := range in.Removals {
		info, ok := removals[j.FLSID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s was not removed in any context; justification ignored", j.FLSID))
			continue
		}
		warnings = append(warnings, apply(j, info.IDInfo, info.RemovalDecisions, "removed")...)
	}
	for _, j := range in.Additions {
		info, ok := additions[j.FLSID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s was not added in any context; justification ignored", j.FLSID))
			continue
		}
		warnings = append(warnings, apply(j, info.IDInfo, info.AdditionDecisions, "added")...)
	}

	if missing := missingItems(rec, in, removals, additions); len(missing) > 0 {
		return nil, warnings, &IncompleteError{GuidelineID: rec.GuidelineID, Missing: missing}
	}
	if in.Strict && len(warnings) > 0 {
		return nil, nil, &InconsistentError{GuidelineID: rec.GuidelineID, Problems: warnings}
	}

	g := schema.ParseGuideline(rec.GuidelineID)
	at := in.AnalyzedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	a := &OutlierAnalysis{
		GuidelineID:   rec.GuidelineID,
		Batch:         rec.Batch,
		GuidelineType: g.Type,
		Chapter:       g.Chapter,
		ComparisonIDs: rec.ComparisonIDs(),
		ADD6:          rec.ADD6,
		Flags:         rec.Flags,
		ActiveFlags:   rec.ActiveFlags,
		Comparison:    rec.Comparison,
		EnrichedMatches: EnrichedMatches{
			Mapping:  enrichContexts(&rec.Mapping.AllRust, &rec.Mapping.SafeRust, content),
			Decision: enrichContexts(&rec.Decision.AllRust, &rec.Decision.SafeRust, content),
		},
		LLMAnalysis: LLMAnalysis{
			Summary:               strings.TrimSpace(in.Summary),
			OverallRecommendation: in.Recommendation,
			AnalyzedAt:            at,
			Categorization:        in.Categorization,
			ADD6Divergence:        in.ADD6Divergence,
			RoutinePattern:        in.RoutinePattern,
			Notes:                 in.Notes,
		},
	}
	if in.FLSRemovals != nil {
		v := &RemovalsVerdict{AspectVerdict: *in.FLSRemovals}
		if len(removals) > 0 {
			v.PerID = removals
		}
		a.LLMAnalysis.FLSRemovals = v
	}
	if in.FLSAdditions != nil {
		v := &AdditionsVerdict{AspectVerdict: *in.FLSAdditions}
		if len(additions) > 0 {
			v.PerID = additions
		}
		a.LLMAnalysis.FLSAdditions = v
	}
	if in.Specificity != nil {
		lost := append([]compare.LostParagraph{}, rec.Comparison.AllRust.LostParagraphs...)
		lost = append(lost, rec.Comparison.SafeRust.LostParagraphs...)
		a.LLMAnalysis.Specificity = &SpecificityVerdict{AspectVerdict: *in.Specificity, LostParagraphs: lost}
	}
	return a, warnings, nil
}

func checkValues(in Input) error {
	var errs []error
	if in.Recommendation != "" && !in.Recommendation.Valid() {
		errs = append(errs, fmt.Errorf("invalid overall recommendation %q", in.Recommendation))
	}
	for _, asp := range Aspects {
		v := in.verdict(asp)
		if v != nil && !asp.ValidVerdict(v.Verdict) {
			errs = append(errs, fmt.Errorf("invalid %s verdict %q", asp, v.Verdict))
		}
	}
	return errors.Join(errs...)
}

// apply records j in decisions for every context where the id changed and
// warns about the contexts where it did not.
func apply(j Justification, info IDInfo, decisions map[schema.Context]string, verb string) []string {
	var warnings []string
	for _, ctx := range j.Contexts {
		if info.HasContext(ctx) {
			decisions[ctx] = j.Text
			continue
		}
		if len(j.Contexts) == 1 {
			warnings = append(warnings, fmt.Sprintf("%s was not %s in %s; justification ignored", j.FLSID, verb, ctx))
		}
	}
	return warnings
}

func missingItems(rec compare.Record, in Input, removals map[string]*RemovalInfo, additions map[string]*AdditionInfo) []MissingItem {
	var missing []MissingItem
	if strings.TrimSpace(in.Summary) == "" {
		missing = append(missing, MissingItem{Kind: MissingField, Field: "analysis summary"})
	}
	if in.Recommendation == "" {
		missing = append(missing, MissingItem{Kind: MissingField, Field: "overall recommendation"})
	}
	for _, asp := range Aspects {
		if asp.Required(rec.Flags) && in.verdict(asp) == nil {
			missing = append(missing, MissingItem{Kind: MissingVerdict, Aspect: asp})
		}
	}
	for _, id := range sortedKeys(removals) {
		info := removals[id]
		for _, ctx := range info.Contexts {
			if _, ok := info.RemovalDecisions[ctx]; !ok {
				missing = append(missing, MissingItem{Kind: MissingRemovalJustification, Aspect: AspectFLSRemovals, FLSID: id, Context: ctx})
			}
		}
	}
	for _, id := range sortedKeys(additions) {
		info := additions[id]
		for _, ctx := range info.Contexts {
			if _, ok := info.AdditionDecisions[ctx]; !ok {
				missing = append(missing, MissingItem{Kind: MissingAdditionJustification, Aspect: AspectFLSAdditions, FLSID: id, Context: ctx})
			}
		}
	}
	return missing
}

func groupRemovals(rec compare.Record) map[string]*RemovalInfo {
	out := map[string]*RemovalInfo{}
	for _, ctx := range schema.Contexts {
		for _, id := range rec.Comparison.Get(ctx).FLSRemoved {
			info, ok := out[id]
			if !ok {
				info = &RemovalInfo{RemovalDecisions: map[schema.Context]string{}}
				if m, found := rec.Mapping.Entry(ctx).AcceptedMatch(id); found {
					info.Title, info.Category, info.OriginalReason = m.FLSTitle, m.Category, m.Reason
				}
				out[id] = info
			}
			info.Contexts = append(info.Contexts, ctx)
		}
	}
	return out
}

func groupAdditions(rec compare.Record) map[string]*AdditionInfo {
	out := map[string]*AdditionInfo{}
	for _, ctx := range schema.Contexts {
		for _, id := range rec.Comparison.Get(ctx).FLSAdded {
			info, ok := out[id]
			if !ok {
				info = &AdditionInfo{AdditionDecisions: map[schema.Context]string{}}
				if m, found := rec.Decision.Entry(ctx).AcceptedMatch(id); found {
					info.Title, info.Category, info.NewReason = m.FLSTitle, m.Category, m.Reason
				}
				out[id] = info
			}
			info.Contexts = append(info.Contexts, ctx)
		}
	}
	return out
}

func enrichContexts(all, safe *schema.ContextEntry, content ContentStore) ContextMatches {
	return ContextMatches{AllRust: enrich(all.AcceptedMatches, content), SafeRust: enrich(safe.AcceptedMatches, content)}
}

func enrich(matches []schema.Match, content ContentStore) []EnrichedMatch {
	out := make([]EnrichedMatch, 0, len(matches))
	for _, m := range matches {
		em := EnrichedMatch{Match: m}
		if content != nil {
			if c, ok := content.Lookup(m.FLSID); ok {
				em.Content = &c
			}
		}
		out = append(out, em)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package analysis

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/standard"
	"github.com/dshills/flsverify/internal/store"
)

func ctxEntry(ids ...string) schema.ContextEntry {
	e := schema.ContextEntry{
		Applicability:   schema.ApplicabilityDirect,
		AnalysisSummary: "s",
		SearchToolsUsed: &schema.SearchTools{Uses: []schema.SearchToolUse{{Tool: "t", Query: "q"}}},
	}
	for _, id := range ids {
		e.AcceptedMatches = append(e.AcceptedMatches, schema.Match{FLSID: id, FLSTitle: "Title " + id, Category: -2, Score: 0.5, Reason: "reason " + id})
	}
	return e
}

func record(t *testing.T, mapAll, mapSafe, decAll, decSafe schema.ContextEntry) compare.Record {
	t.Helper()
	m := schema.MappingEntry{GuidelineID: "Rule 10.1", AllRust: mapAll, SafeRust: mapSafe}
	d := schema.DecisionRecord{GuidelineID: "Rule 10.1", Decision: schema.DecisionAcceptWithModifications, AllRust: decAll, SafeRust: decSafe}
	rec, err := compare.Build(compare.Input{Batch: 1, Mapping: &m, Decision: &d})
	require.NoError(t, err)
	return rec
}

func fixedInput() Input {
	return Input{
		Summary:        "Rust's type system covers the concern",
		Recommendation: RecommendAccept,
		AnalyzedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestParseJustification(t *testing.T) {
	j, err := ParseJustification("fls_aaaaaaaaaa:both:covered by: the section")
	require.NoError(t, err)
	assert.Equal(t, "fls_aaaaaaaaaa", j.FLSID)
	assert.Equal(t, []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}, j.Contexts)
	assert.Equal(t, "covered by: the section", j.Text)

	for _, bad := range []string{"fls_aaaaaaaaaa:all_rust", "bad:all_rust:x", "fls_aaaaaaaaaa:unsafe:x", "fls_aaaaaaaaaa:safe_rust:  "} {
		_, err := ParseJustification(bad)
		assert.Error(t, err, bad)
	}
}

func TestCompletenessGateNamesPair(t *testing.T) {
	rec := record(t, ctxEntry("fls_aaaaaaaaaa"), ctxEntry(), ctxEntry(), ctxEntry())
	require.Equal(t, []string{"fls_aaaaaaaaaa"}, rec.Comparison.AllRust.FLSRemoved)

	in := fixedInput()
	in.FLSRemovals = &AspectVerdict{Verdict: VerdictAppropriate, Reasoning: "generic section"}
	in.Specificity = &AspectVerdict{Verdict: VerdictAppropriate, Reasoning: "fine"}

	_, _, err := Build(rec, in, nil)
	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))
	require.Len(t, inc.Missing, 1)
	assert.Equal(t, MissingItem{Kind: MissingRemovalJustification, Aspect: AspectFLSRemovals, FLSID: "fls_aaaaaaaaaa", Context: schema.ContextAllRust}, inc.Missing[0])
	assert.Contains(t, err.Error(), "(fls_aaaaaaaaaa, all_rust)")
}

func TestGateListsEverythingAtOnce(t *testing.T) {
	rec := record(t,
		ctxEntry("fls_aaaaaaaaaa"), ctxEntry("fls_aaaaaaaaaa"),
		ctxEntry("fls_bbbbbbbbbb"), ctxEntry(),
	)

	_, _, err := Build(rec, Input{}, nil)
	var inc *IncompleteError
	require.True(t, errors.As(err, &inc))

	var got []string
	for _, m := range inc.Missing {
		got = append(got, m.String())
	}
	assert.Equal(t, []string{
		"analysis summary",
		"overall recommendation",
		"fls_removals verdict (required: fls_removed flag set)",
		"fls_additions verdict (required: fls_added flag set)",
		"specificity verdict (required: specificity_decreased flag set)",
		"removal justification for (fls_aaaaaaaaaa, all_rust)",
		"removal justification for (fls_aaaaaaaaaa, safe_rust)",
		"addition justification for (fls_bbbbbbbbbb, all_rust)",
	}, got)
}

func TestBuildGroupsAcrossContexts(t *testing.T) {
	rec := record(t,
		ctxEntry("fls_aaaaaaaaaa"), ctxEntry("fls_aaaaaaaaaa"),
		ctxEntry(), ctxEntry(),
	)
	in := fixedInput()
	in.FLSRemovals = &AspectVerdict{Verdict: VerdictAppropriate, Reasoning: "r"}
	in.Specificity = &AspectVerdict{Verdict: VerdictNA, Reasoning: "r"}
	in.Removals = []Justification{
		{FLSID: "fls_aaaaaaaaaa", Contexts: []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}, Text: "too generic"},
		{FLSID: "fls_zzzzzzzzzz", Contexts: []schema.Context{schema.ContextAllRust}, Text: "stray"},
	}

	a, warnings, err := Build(rec, in, nil)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "fls_zzzzzzzzzz")

	per := a.LLMAnalysis.FLSRemovals.PerID
	require.Len(t, per, 1)
	info := per["fls_aaaaaaaaaa"]
	assert.Equal(t, []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}, info.Contexts)
	assert.Equal(t, "reason fls_aaaaaaaaaa", info.OriginalReason)
	assert.Equal(t, "too generic", info.RemovalDecisions[schema.ContextSafeRust])
	assert.Len(t, a.LLMAnalysis.Specificity.LostParagraphs, 2)
	assert.Nil(t, a.HumanReview)
	assert.Equal(t, rec.ComparisonIDs(), a.ComparisonIDs)
}

func TestStrictRejectsStrayJustifications(t *testing.T) {
	rec := record(t, ctxEntry(), ctxEntry(), ctxEntry("fls_bbbbbbbbbb"), ctxEntry())
	in := fixedInput()
	in.Strict = true
	in.FLSAdditions = &AspectVerdict{Verdict: VerdictAppropriate, Reasoning: "r"}
	in.Additions = []Justification{
		{FLSID: "fls_bbbbbbbbbb", Contexts: []schema.Context{schema.ContextAllRust}, Text: "needed"},
		{FLSID: "fls_bbbbbbbbbb", Contexts: []schema.Context{schema.ContextSafeRust}, Text: "not here"},
	}
	in.Removals = []Justification{
		{FLSID: "fls_zzzzzzzzzz", Contexts: []schema.Context{schema.ContextAllRust}, Text: "stray"},
	}

	a, warnings, err := Build(rec, in, nil)
	assert.Nil(t, a)
	assert.Empty(t, warnings)
	var inc *InconsistentError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, "Rule 10.1", inc.GuidelineID)
	assert.Equal(t, []string{
		"fls_zzzzzzzzzz was not removed in any context; justification ignored",
		"fls_bbbbbbbbbb was not added in safe_rust; justification ignored",
	}, inc.Problems)

	in.Removals = nil
	in.Additions = in.Additions[:1]
	a, warnings, err = Build(rec, in, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.NotNil(t, a)
}

func TestJustificationForWrongContextWarns(t *testing.T) {
	rec := record(t, ctxEntry(), ctxEntry(), ctxEntry("fls_bbbbbbbbbb"), ctxEntry())
	in := fixedInput()
	in.FLSAdditions = &AspectVerdict{Verdict: VerdictAppropriate, Reasoning: "r"}
	in.Additions = []Justification{
		{FLSID: "fls_bbbbbbbbbb", Contexts: []schema.Context{schema.ContextAllRust}, Text: "needed"},
		{FLSID: "fls_bbbbbbbbbb", Contexts: []schema.Context{schema.ContextSafeRust}, Text: "not here"},
	}

	a, warnings, err := Build(rec, in, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fls_bbbbbbbbbb was not added in safe_rust; justification ignored"}, warnings)
	assert.Equal(t, map[schema.Context]string{schema.ContextAllRust: "needed"}, a.LLMAnalysis.FLSAdditions.PerID["fls_bbbbbbbbbb"].AdditionDecisions)
}

func TestInvalidVerdictDomain(t *testing.T) {
	rec := record(t, ctxEntry(), ctxEntry(), ctxEntry(), ctxEntry())
	in := fixedInput()
	in.ADD6Divergence = &AspectVerdict{Verdict: VerdictAppropriate}
	in.Categorization = &AspectVerdict{Verdict: VerdictJustified}

	_, _, err := Build(rec, in, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid categorization verdict")
	assert.Contains(t, err.Error(), "invalid add6_divergence verdict")
}

type contentMap map[string]store.Content

func (c contentMap) Lookup(id string) (store.Content, bool) {
	v, ok := c[id]
	return v, ok
}

func TestEnrichment(t *testing.T) {
	rec := record(t, ctxEntry("fls_aaaaaaaaaa"), ctxEntry("fls_aaaaaaaaaa"), ctxEntry("fls_aaaaaaaaaa"), ctxEntry("fls_aaaaaaaaaa"))
	content := contentMap{"fls_aaaaaaaaaa": {FLSID: "fls_aaaaaaaaaa", Kind: "paragraph", Text: "A value shall..."}}

	a, _, err := Build(rec, fixedInput(), content)
	require.NoError(t, err)
	require.Len(t, a.EnrichedMatches.Decision.SafeRust, 1)
	require.NotNil(t, a.EnrichedMatches.Decision.SafeRust[0].Content)
	assert.Equal(t, "A value shall...", a.EnrichedMatches.Decision.SafeRust[0].Content.Text)
	assert.Equal(t, rec.Comparison, a.Comparison, "enrichment never alters the comparison")
}

func TestSaveRefusesOverwrite(t *testing.T) {
	layout := standard.NewLayout(t.TempDir(), standard.MisraC)
	rec := record(t, ctxEntry(), ctxEntry(), ctxEntry(), ctxEntry())
	a, _, err := Build(rec, fixedInput(), nil)
	require.NoError(t, err)

	require.NoError(t, Save(layout, a, false))
	assert.ErrorIs(t, Save(layout, a, false), ErrExists)
	require.NoError(t, Save(layout, a, true))

	got, err := Load(layout, "Rule 10.1")
	require.NoError(t, err)
	assert.Equal(t, a.GuidelineID, got.GuidelineID)
	assert.Equal(t, a.LLMAnalysis.AnalyzedAt, got.LLMAnalysis.AnalyzedAt)

	all, err := LoadAll(layout)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = Load(layout, "rule 99.9")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "run `flsverify analyze \"Rule 99.9\"` first")
}

package review

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// outlier builds an analysis with fls_aaaaaaaaaa removed in both contexts,
// fls_bbbbbbbbbb added in all_rust and the given extra flags.
func outlier(extra compare.Flags) *analysis.OutlierAnalysis {
	flags := extra
	flags.FLSRemoved = true
	flags.FLSAdded = true
	return &analysis.OutlierAnalysis{
		GuidelineID: "Rule 10.1",
		Flags:       flags,
		Comparison: compare.ByContext{
			AllRust:  compare.Comparison{FLSRemoved: []string{"fls_aaaaaaaaaa"}, FLSAdded: []string{"fls_bbbbbbbbbb"}},
			SafeRust: compare.Comparison{FLSRemoved: []string{"fls_aaaaaaaaaa"}},
		},
	}
}

func accept(reason string) analysis.Ruling {
	return analysis.Ruling{Decision: analysis.DecisionAccept, Reason: reason}
}

func TestSlots(t *testing.T) {
	a := outlier(compare.Flags{RationaleTypeChanged: true, SpecificityDecreased: true})

	var names []string
	for _, s := range Slots(a) {
		names = append(names, s.String())
	}
	assert.Equal(t, []string{
		"categorization",
		"fls_removals fls_aaaaaaaaaa (all_rust)",
		"fls_removals fls_aaaaaaaaaa (safe_rust)",
		"fls_additions fls_bbbbbbbbbb (all_rust)",
		"specificity",
	}, names)
	assert.Equal(t, analysis.StatusPending, ComputeStatus(a))
}

func TestStatusWithoutSlots(t *testing.T) {
	a := &analysis.OutlierAnalysis{GuidelineID: "Rule 10.3"}
	assert.Empty(t, Slots(a))
	assert.Equal(t, analysis.StatusFullyReviewed, ComputeStatus(a))
}

func TestStatusProgression(t *testing.T) {
	a := outlier(compare.Flags{ApplicabilityDiffersFromADD6: true})

	require.NoError(t, SetAspect(a, analysis.AspectADD6Divergence, accept("ADD-6 predates the edition"), now))
	assert.Equal(t, analysis.StatusPartial, a.HumanReview.OverallStatus)
	require.NotNil(t, a.HumanReview.ReviewedAt)

	both := []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}
	require.NoError(t, SetID(a, analysis.AspectFLSRemovals, "fls_aaaaaaaaaa", both, accept("generic"), now))
	assert.Equal(t, analysis.StatusPartial, a.HumanReview.OverallStatus)

	reject := analysis.Ruling{Decision: analysis.DecisionReject, Reason: "needed"}
	require.NoError(t, SetID(a, analysis.AspectFLSAdditions, "fls_bbbbbbbbbb", both, reject, now))
	assert.Equal(t, analysis.StatusFullyReviewed, a.HumanReview.OverallStatus)
	assert.Empty(t, Pending(a))
	assert.Equal(t, analysis.DecisionReject, a.HumanReview.FLSAdditions["fls_bbbbbbbbbb"].Decisions[schema.ContextAllRust].Decision)
}

func TestSetIDNotFound(t *testing.T) {
	a := outlier(compare.Flags{})

	err := SetID(a, analysis.AspectFLSRemovals, "fls_cccccccccc", []schema.Context{schema.ContextAllRust}, accept("x"), now)
	assert.ErrorIs(t, err, ErrNotFound)

	err = SetID(a, analysis.AspectFLSAdditions, "fls_bbbbbbbbbb", []schema.Context{schema.ContextSafeRust}, accept("x"), now)
	assert.ErrorIs(t, err, ErrNotFound)

	err = SetID(a, analysis.AspectFLSRemovals, "fls_aaaaaaaaaa", []schema.Context{schema.ContextAllRust}, analysis.Ruling{Decision: "maybe"}, now)
	assert.Error(t, err)
}

func TestAcceptAllReachesFullyReviewed(t *testing.T) {
	cases := map[string]*analysis.OutlierAnalysis{
		"no slots": {GuidelineID: "Rule 1.1"},
		"every aspect": outlier(compare.Flags{
			BatchPatternOutlier:             true,
			AdjustedCategoryDiffersFromADD6: true,
			SpecificityDecreased:            true,
		}),
	}
	for name, a := range cases {
		AcceptAll(a, now)
		require.NotNil(t, a.HumanReview, name)
		assert.Equal(t, analysis.StatusFullyReviewed, a.HumanReview.OverallStatus, name)
		for _, s := range Slots(a) {
			assert.Equal(t, AcceptAllReason, s.Ruling.Reason, name)
		}
	}
}

func TestGuard(t *testing.T) {
	a := outlier(compare.Flags{})
	assert.NoError(t, Guard(a, false))

	AcceptAll(a, now)
	err := Guard(a, false)
	assert.True(t, errors.Is(err, ErrAlreadyReviewed))
	assert.NoError(t, Guard(a, true))

	Reset(a)
	assert.Nil(t, a.HumanReview)
	assert.NoError(t, Guard(a, false))
}

func TestBulkRulesFillOnlyUndecided(t *testing.T) {
	st, err := NewState().AddRule(analysis.AspectFLSRemovals, "fls_aaaaaaaaaa", []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}, "section too generic")
	require.NoError(t, err)

	a := outlier(compare.Flags{})
	reject := analysis.Ruling{Decision: analysis.DecisionReject, Reason: "keep it"}
	require.NoError(t, SetID(a, analysis.AspectFLSRemovals, "fls_aaaaaaaaaa", []schema.Context{schema.ContextSafeRust}, reject, now))

	assert.Equal(t, 1, ApplyBulkRules(st, a, now))
	decisions := a.HumanReview.FLSRemovals["fls_aaaaaaaaaa"].Decisions
	assert.Equal(t, "section too generic", decisions[schema.ContextAllRust].Reason)
	assert.Equal(t, analysis.DecisionReject, decisions[schema.ContextSafeRust].Decision)

	assert.Equal(t, 0, ApplyBulkRules(st, a, now), "second pass is a no-op")
	assert.Equal(t, analysis.StatusPartial, ComputeStatus(a))
}

func TestAddRuleIsValueSemantics(t *testing.T) {
	base := NewState()
	next, err := base.AddRule(analysis.AspectFLSAdditions, "fls_bbbbbbbbbb", []schema.Context{schema.ContextSafeRust}, "r1")
	require.NoError(t, err)
	next, err = next.AddRule(analysis.AspectFLSAdditions, "fls_bbbbbbbbbb", []schema.Context{schema.ContextAllRust}, "r2")
	require.NoError(t, err)

	assert.Empty(t, base.BulkRules.AcceptAdditions)
	rule := next.BulkRules.AcceptAdditions["fls_bbbbbbbbbb"]
	assert.Equal(t, []schema.Context{schema.ContextAllRust, schema.ContextSafeRust}, rule.Contexts)
	assert.Equal(t, "r2", rule.Reason)

	_, err = base.AddRule(analysis.AspectSpecificity, "fls_bbbbbbbbbb", []schema.Context{schema.ContextAllRust}, "r")
	assert.Error(t, err)
	_, err = base.AddRule(analysis.AspectFLSRemovals, "nope", []schema.Context{schema.ContextAllRust}, "r")
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_state.json")

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.NotNil(t, st.BulkRules.AcceptRemovals)

	st, err = st.AddRule(analysis.AspectFLSRemovals, "fls_aaaaaaaaaa", []schema.Context{schema.ContextAllRust}, "generic")
	require.NoError(t, err)

	reviewed := outlier(compare.Flags{})
	AcceptAll(reviewed, now)
	st = st.WithSummary(Summarize([]*analysis.OutlierAnalysis{reviewed, outlier(compare.Flags{})}))
	require.NoError(t, SaveState(path, st))

	got, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, st, got)
	assert.Equal(t, Summary{TotalOutliers: 2, FullyReviewed: 1, Pending: 1}, got.Summary)
}

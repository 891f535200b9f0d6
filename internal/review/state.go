package review

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

// BulkRule accepts one fls_id in the listed contexts for every guideline.
type BulkRule struct {
	Contexts []schema.Context `json:"contexts"`
	Reason   string           `json:"reason"`
}

// BulkRules holds standing acceptance rules keyed by fls_id.
type BulkRules struct {
	AcceptRemovals  map[string]BulkRule `json:"accept_removals"`
	AcceptAdditions map[string]BulkRule `json:"accept_additions"`
}

// Summary counts outlier analyses by review status.
type Summary struct {
	TotalOutliers int `json:"total_outliers"`
	FullyReviewed int `json:"fully_reviewed"`
	Partial       int `json:"partial"`
	Pending       int `json:"pending"`
}

// State is the persisted review state. It is a value: operations return an
// updated copy and never share maps with their input.
type State struct {
	BulkRules BulkRules `json:"bulk_rules"`
	Summary   Summary   `json:"summary"`
}

// NewState returns an empty state.
func NewState() State {
	return State{BulkRules: BulkRules{
		AcceptRemovals:  map[string]BulkRule{},
		AcceptAdditions: map[string]BulkRule{},
	}}
}

func (s State) clone() State {
	out := NewState()
	out.Summary = s.Summary
	for id, r := range s.BulkRules.AcceptRemovals {
		r.Contexts = append([]schema.Context(nil), r.Contexts...)
		out.BulkRules.AcceptRemovals[id] = r
	}
	for id, r := range s.BulkRules.AcceptAdditions {
		r.Contexts = append([]schema.Context(nil), r.Contexts...)
		out.BulkRules.AcceptAdditions[id] = r
	}
	return out
}

func (s State) rules(asp analysis.Aspect) map[string]BulkRule {
	if asp == analysis.AspectFLSRemovals {
		return s.BulkRules.AcceptRemovals
	}
	return s.BulkRules.AcceptAdditions
}

// AddRule returns a copy of s with an acceptance rule for flsID. Contexts
// of an existing rule for the same id are merged and the reason replaced.
func (s State) AddRule(asp analysis.Aspect, flsID string, ctxs []schema.Context, reason string) (State, error) {
	if asp != analysis.AspectFLSRemovals && asp != analysis.AspectFLSAdditions {
		return s, fmt.Errorf("bulk rules apply to fls_removals or fls_additions, not %s", asp)
	}
	if !schema.ValidFLSID(flsID) {
		return s, fmt.Errorf("invalid FLS id %q", flsID)
	}
	if reason == "" {
		return s, errors.New("bulk rule needs a reason")
	}
	if len(ctxs) == 0 {
		return s, errors.New("bulk rule needs at least one context")
	}

	out := s.clone()
	rules := out.rules(asp)
	rule := rules[flsID]
	for _, c := range ctxs {
		if !hasContext(rule.Contexts, c) {
			rule.Contexts = append(rule.Contexts, c)
		}
	}
	sort.Slice(rule.Contexts, func(i, j int) bool { return rule.Contexts[i] < rule.Contexts[j] })
	rule.Reason = reason
	rules[flsID] = rule
	return out, nil
}

// RuleCount returns the number of removal and addition rules.
func (s State) RuleCount() (removals, additions int) {
	return len(s.BulkRules.AcceptRemovals), len(s.BulkRules.AcceptAdditions)
}

// ApplyBulkRules fills every undecided (fls_id, context) slot of a that a
// rule covers and returns how many slots it filled. Decided slots are left
// alone, so a second pass fills nothing.
func ApplyBulkRules(s State, a *analysis.OutlierAnalysis, now time.Time) int {
	filled := 0
	var hr *analysis.HumanReview
	for _, slot := range Slots(a) {
		if slot.FLSID == "" || slot.Decided() {
			continue
		}
		rule, ok := s.rules(slot.Aspect)[slot.FLSID]
		if !ok || !hasContext(rule.Contexts, slot.Context) {
			continue
		}
		if hr == nil {
			hr = Begin(a)
		}
		idReviews(hr, slot.Aspect)[slot.FLSID].Decisions[slot.Context] = &analysis.Ruling{
			Decision: analysis.DecisionAccept,
			Reason:   rule.Reason,
		}
		filled++
	}
	if filled > 0 {
		Refresh(a, now)
	}
	return filled
}

// Summarize counts analyses by recomputed status.
func Summarize(analyses []*analysis.OutlierAnalysis) Summary {
	sum := Summary{TotalOutliers: len(analyses)}
	for _, a := range analyses {
		switch ComputeStatus(a) {
		case analysis.StatusFullyReviewed:
			sum.FullyReviewed++
		case analysis.StatusPartial:
			sum.Partial++
		default:
			sum.Pending++
		}
	}
	return sum
}

// WithSummary returns a copy of s carrying sum.
func (s State) WithSummary(sum Summary) State {
	out := s.clone()
	out.Summary = sum
	return out
}

// LoadState reads the review state. A missing file yields an empty state.
func LoadState(path string) (State, error) {
	st := NewState()
	if err := store.ReadJSON(path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return State{}, fmt.Errorf("loading review state: %w", err)
	}
	if st.BulkRules.AcceptRemovals == nil {
		st.BulkRules.AcceptRemovals = map[string]BulkRule{}
	}
	if st.BulkRules.AcceptAdditions == nil {
		st.BulkRules.AcceptAdditions = map[string]BulkRule{}
	}
	return st, nil
}

// SaveState writes the review state atomically.
func SaveState(path string, s State) error {
	return store.WriteJSON(path, s)
}

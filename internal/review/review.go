package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/schema"
)

// AcceptAllReason is recorded on every slot filled by AcceptAll.
const AcceptAllReason = "Accepted per LLM recommendation"

var (
	// ErrAlreadyReviewed guards a fully reviewed guideline against silent
	// re-review.
	ErrAlreadyReviewed = errors.New("guideline is already fully reviewed")
	// ErrNotFound is returned when a ruling targets an fls_id or context
	// that has nothing to review.
	ErrNotFound = errors.New("nothing to review")
)

// Slot is one required human decision.
type Slot struct {
	Aspect  analysis.Aspect  `json:"aspect"`
	FLSID   string           `json:"fls_id,omitempty"`
	Context schema.Context   `json:"context,omitempty"`
	Ruling  *analysis.Ruling `json:"ruling"`
}

// Decided reports whether the slot has a ruling.
func (s Slot) Decided() bool { return s.Ruling != nil && s.Ruling.Decision != "" }

func (s Slot) String() string {
	if s.FLSID == "" {
		return string(s.Aspect)
	}
	return fmt.Sprintf("%s %s (%s)", s.Aspect, s.FLSID, s.Context)
}

// Begin returns the human review of a, creating it when absent. Per-id
// structures are filled from the comparison so every (fls_id, context)
// pair has an entry.
func Begin(a *analysis.OutlierAnalysis) *analysis.HumanReview {
	if a.HumanReview == nil {
		a.HumanReview = &analysis.HumanReview{OverallStatus: analysis.StatusPending}
	}
	hr := a.HumanReview
	if hr.FLSRemovals == nil {
		hr.FLSRemovals = map[string]*analysis.IDReview{}
	}
	if hr.FLSAdditions == nil {
		hr.FLSAdditions = map[string]*analysis.IDReview{}
	}
	for _, ctx := range schema.Contexts {
		c := a.Comparison.Get(ctx)
		for _, id := range c.FLSRemoved {
			addContext(hr.FLSRemovals, id, ctx)
		}
		for _, id := range c.FLSAdded {
			addContext(hr.FLSAdditions, id, ctx)
		}
	}
	return hr
}

func addContext(m map[string]*analysis.IDReview, id string, ctx schema.Context) {
	r, ok := m[id]
	if !ok {
		r = &analysis.IDReview{Decisions: map[schema.Context]*analysis.Ruling{}}
		m[id] = r
	}
	if r.Decisions == nil {
		r.Decisions = map[schema.Context]*analysis.Ruling{}
	}
	for _, c := range r.Contexts {
		if c == ctx {
			return
		}
	}
	r.Contexts = append(r.Contexts, ctx)
}

// Slots lists every required decision of a in review order. The slot set
// depends only on the flags and the comparison.
func Slots(a *analysis.OutlierAnalysis) []Slot {
	var slots []Slot
	for _, asp := range analysis.Aspects {
		switch asp {
		case analysis.AspectFLSRemovals, analysis.AspectFLSAdditions:
			reviews := idReviews(a.HumanReview, asp)
			for _, ctx := range schema.Contexts {
				for _, id := range changedIDs(a, asp, ctx) {
					s := Slot{Aspect: asp, FLSID: id, Context: ctx}
					if r, ok := reviews[id]; ok && r.Decisions != nil {
						s.Ruling = r.Decisions[ctx]
					}
					slots = append(slots, s)
				}
			}
		default:
			if !asp.Required(a.Flags) {
				continue
			}
			s := Slot{Aspect: asp}
			if a.HumanReview != nil {
				s.Ruling = *singleRuling(a.HumanReview, asp)
			}
			slots = append(slots, s)
		}
	}
	return slots
}

func changedIDs(a *analysis.OutlierAnalysis, asp analysis.Aspect, ctx schema.Context) []string {
	if asp == analysis.AspectFLSRemovals {
		return a.Comparison.Get(ctx).FLSRemoved
	}
	return a.Comparison.Get(ctx).FLSAdded
}

func idReviews(hr *analysis.HumanReview, asp analysis.Aspect) map[string]*analysis.IDReview {
	switch {
	case hr == nil:
		return nil
	case asp == analysis.AspectFLSRemovals:
		return hr.FLSRemovals
	case asp == analysis.AspectFLSAdditions:
		return hr.FLSAdditions
	}
	return nil
}

// Pending returns the undecided slots of a.
func Pending(a *analysis.OutlierAnalysis) []Slot {
	var out []Slot
	for _, s := range Slots(a) {
		if !s.Decided() {
			out = append(out, s)
		}
	}
	return out
}

// ComputeStatus derives the review status from slot coverage.
func ComputeStatus(a *analysis.OutlierAnalysis) analysis.Status {
	slots := Slots(a)
	pending := 0
	for _, s := range slots {
		if !s.Decided() {
			pending++
		}
	}
	switch {
	case pending == 0:
		return analysis.StatusFullyReviewed
	case pending < len(slots):
		return analysis.StatusPartial
	default:
		return analysis.StatusPending
	}
}

// Refresh recomputes and stores the status of a started review.
func Refresh(a *analysis.OutlierAnalysis, now time.Time) {
	if a.HumanReview == nil {
		return
	}
	a.HumanReview.OverallStatus = ComputeStatus(a)
	t := now.UTC()
	a.HumanReview.ReviewedAt = &t
}

// Guard returns ErrAlreadyReviewed when a is fully reviewed and the caller
// has not confirmed the re-review.
func Guard(a *analysis.OutlierAnalysis, confirmed bool) error {
	if confirmed || a.HumanReview == nil {
		return nil
	}
	if ComputeStatus(a) == analysis.StatusFullyReviewed {
		return fmt.Errorf("%s: %w (confirm to overwrite existing decisions)", a.GuidelineID, ErrAlreadyReviewed)
	}
	return nil
}

func singleRuling(hr *analysis.HumanReview, asp analysis.Aspect) **analysis.Ruling {
	switch asp {
	case analysis.AspectCategorization:
		return &hr.Categorization
	case analysis.AspectADD6Divergence:
		return &hr.ADD6Divergence
	case analysis.AspectSpecificity:
		return &hr.Specificity
	}
	return nil
}

func validRuling(r analysis.Ruling) error {
	if _, ok := analysis.ParseDecision(string(r.Decision)); !ok {
		return fmt.Errorf("invalid decision %q: must be accept or reject", r.Decision)
	}
	return nil
}

// SetAspect records a ruling on categorization, add6_divergence or
// specificity.
func SetAspect(a *analysis.OutlierAnalysis, asp analysis.Aspect, r analysis.Ruling, now time.Time) error {
	if err := validRuling(r); err != nil {
		return err
	}
	hr := Begin(a)
	slot := singleRuling(hr, asp)
	if slot == nil {
		return fmt.Errorf("aspect %s takes per-id rulings", asp)
	}
	*slot = &r
	Refresh(a, now)
	return nil
}

// SetID records a ruling on a removed or added fls_id in each of ctxs where
// it changed. ErrNotFound is returned when none of ctxs applies.
func SetID(a *analysis.OutlierAnalysis, asp analysis.Aspect, flsID string, ctxs []schema.Context, r analysis.Ruling, now time.Time) error {
	if err := validRuling(r); err != nil {
		return err
	}
	if asp != analysis.AspectFLSRemovals && asp != analysis.AspectFLSAdditions {
		return fmt.Errorf("aspect %s takes a single ruling", asp)
	}
	reviews := idReviews(Begin(a), asp)

	item, ok := reviews[flsID]
	if !ok {
		return fmt.Errorf("%s %s in %s: %w", asp, flsID, a.GuidelineID, ErrNotFound)
	}
	applied := 0
	for _, ctx := range ctxs {
		if !hasContext(item.Contexts, ctx) {
			continue
		}
		ruling := r
		item.Decisions[ctx] = &ruling
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("%s %s in %v: %w", asp, flsID, ctxs, ErrNotFound)
	}
	Refresh(a, now)
	return nil
}

func hasContext(ctxs []schema.Context, c schema.Context) bool {
	for _, x := range ctxs {
		if x == c {
			return true
		}
	}
	return false
}

// AcceptAll fills every required slot with an accept ruling.
func AcceptAll(a *analysis.OutlierAnalysis, now time.Time) {
	hr := Begin(a)
	accept := func() *analysis.Ruling {
		return &analysis.Ruling{Decision: analysis.DecisionAccept, Reason: AcceptAllReason}
	}
	for _, s := range Slots(a) {
		if s.FLSID != "" {
			idReviews(hr, s.Aspect)[s.FLSID].Decisions[s.Context] = accept()
			continue
		}
		*singleRuling(hr, s.Aspect) = accept()
	}
	Refresh(a, now)
}

// Reset discards the human review of a.
func Reset(a *analysis.OutlierAnalysis) {
	a.HumanReview = nil
}

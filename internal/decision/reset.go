package decision

import (
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/schema"
)

// Reset clears the verification decisions of ids in r, or of every
// guideline when ids is empty, and drops their applicability changes.
// It returns the guidelines whose decision was cleared and the ids that
// have no slot in r. The summary is recomputed.
func Reset(r *batch.Report, ids []string) (cleared, unknown []string) {
	selected := map[string]bool{}
	for _, id := range ids {
		id = schema.CanonicalGuidelineID(id)
		if r.Index(id) < 0 {
			unknown = append(unknown, id)
			continue
		}
		selected[id] = true
	}
	all := len(ids) == 0

	for i := range r.Guidelines {
		g := &r.Guidelines[i]
		if !all && !selected[g.GuidelineID] {
			continue
		}
		if g.VerificationDecision != nil {
			g.VerificationDecision = nil
			cleared = append(cleared, g.GuidelineID)
		}
	}

	kept := r.ApplicabilityChanges[:0]
	for _, c := range r.ApplicabilityChanges {
		if all || selected[schema.CanonicalGuidelineID(c.GuidelineID)] {
			continue
		}
		kept = append(kept, c)
	}
	r.ApplicabilityChanges = kept
	r.Recompute()
	return cleared, unknown
}

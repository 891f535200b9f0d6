package decision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

// ErrNoDecision is returned when a single context is recorded for a
// guideline that has no decision file yet.
var ErrNoDecision = errors.New("no decision file")

// MembershipError reports a guideline recorded against the wrong batch.
// Actual is zero when no batch holds the guideline.
type MembershipError struct {
	GuidelineID string
	Batch       int
	Actual      int
	ActualName  string
}

func (e *MembershipError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("%s is not in any batch", e.GuidelineID)
	}
	return fmt.Sprintf("%s is not in batch %d; it belongs to batch %d (%s)", e.GuidelineID, e.Batch, e.Actual, e.ActualName)
}

// CheckMembership returns the definition of batchID when it holds the
// guideline, and a *MembershipError naming the right batch otherwise.
func CheckMembership(set *batch.Set, guidelineID string, batchID int) (batch.Definition, error) {
	id := schema.CanonicalGuidelineID(guidelineID)
	def, ok := set.Get(batchID)
	if !ok {
		return batch.Definition{}, fmt.Errorf("batch %d is not defined", batchID)
	}
	if def.Contains(id) {
		return def, nil
	}
	merr := &MembershipError{GuidelineID: id, Batch: batchID}
	if actual, ok := set.BatchOf(id); ok {
		other, _ := set.Get(actual)
		merr.Actual, merr.ActualName = actual, other.Name
	}
	return def, merr
}

// Entry is one worker's decision for a guideline in the listed contexts.
type Entry struct {
	GuidelineID      string
	Contexts         []schema.Context
	Decision         schema.DecisionKind
	Applicability    schema.Applicability
	AdjustedCategory schema.AdjustedCategory
	RationaleType    schema.RationaleType
	Confidence       schema.Confidence
	Summary          string
	Accepted         []schema.Match
	Rejected         []schema.Match
	Searches         []schema.SearchToolUse
	Waiver           *schema.Waiver
	Notes            string
	Change           *schema.ApplicabilityChangeProposal
	RecordedAt       time.Time
}

func (e Entry) contextEntry() schema.ContextEntry {
	ce := schema.ContextEntry{
		Applicability:    e.Applicability.Normalized(),
		AdjustedCategory: e.AdjustedCategory.Normalized(),
		RationaleType:    e.RationaleType.Normalized(),
		Confidence:       e.Confidence.Normalized(),
		AnalysisSummary:  e.Summary,
		AcceptedMatches:  append([]schema.Match{}, e.Accepted...),
		RejectedMatches:  e.Rejected,
		Notes:            e.Notes,
		Decision:         e.Decision.Normalized(),
	}
	switch {
	case e.Waiver != nil:
		w := *e.Waiver
		ce.SearchToolsUsed = &schema.SearchTools{Waiver: &w}
	case len(e.Searches) > 0:
		ce.SearchToolsUsed = &schema.SearchTools{Uses: e.Searches}
	}
	return ce
}

// Record applies e on top of prev, the guideline's current decision or nil,
// and returns the validated record with its file bytes. Recording a single
// context needs an existing decision for the other one.
func Record(prev *schema.DecisionRecord, e Entry) (schema.DecisionRecord, []byte, error) {
	id := schema.CanonicalGuidelineID(e.GuidelineID)
	var rec schema.DecisionRecord
	if prev != nil {
		rec = *prev
	} else {
		if len(e.Contexts) != len(schema.Contexts) {
			return schema.DecisionRecord{}, nil, fmt.Errorf("%s: %w (record both contexts first)", id, ErrNoDecision)
		}
		rec = schema.DecisionRecord{GuidelineID: id}
	}
	rec.SchemaVersion = schema.CurrentSchemaVersion

	for _, ctx := range e.Contexts {
		entry, _ := schema.NormalizeToDualContext(e.contextEntry())
		if entry.AcceptedMatches == nil {
			entry.AcceptedMatches = []schema.Match{}
		}
		*rec.Entry(ctx) = entry
	}
	rec.Decision = ""
	if rec.AllRust.Decision == rec.SafeRust.Decision {
		rec.Decision = rec.AllRust.Decision
	}
	if e.Change != nil {
		c := *e.Change
		rec.ProposedApplicabilityChange = &c
	}
	if !e.RecordedAt.IsZero() {
		rec.RecordedAt = e.RecordedAt.UTC().Format(time.RFC3339)
	}

	data, err := Encode(&rec)
	if err != nil {
		return schema.DecisionRecord{}, nil, err
	}
	return rec, data, nil
}

// Encode validates rec the way merge does and returns its file bytes.
func Encode(rec *schema.DecisionRecord) ([]byte, error) {
	if err := schema.ValidateDecision(rec); err != nil {
		return nil, err
	}
	data, err := store.MarshalJSON(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", rec.GuidelineID, err)
	}
	if err := schema.CheckDecisionFile(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Path returns the decision file of a guideline in dir.
func Path(dir, guidelineID string) string {
	return filepath.Join(dir, schema.GuidelineFilename(guidelineID))
}

// Load reads the decision file of a guideline in dir. It returns nil and
// no error when there is none.
func Load(dir, guidelineID string) (*schema.DecisionRecord, error) {
	data, err := os.ReadFile(Path(dir, guidelineID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	rec, err := schema.DecodeDecision(data)
	if err != nil {
		return nil, fmt.Errorf("reading decision for %s: %w", schema.CanonicalGuidelineID(guidelineID), err)
	}
	return &rec, nil
}

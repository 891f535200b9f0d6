package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/standard"
	"github.com/dshills/flsverify/internal/store"
)

// GuidelineResult is one guideline slot of a batch report.
type GuidelineResult struct {
	GuidelineID          string                 `json:"guideline_id"`
	VerificationDecision *schema.DecisionRecord `json:"verification_decision"`
}

// Verified reports whether the guideline carries a decision.
func (g GuidelineResult) Verified() bool {
	d := g.VerificationDecision
	return d != nil && (d.Decision != "" || d.AllRust.Decision != "" || d.SafeRust.Decision != "")
}

// UnmarshalJSON decodes the verification decision through the versioned
// decoder so reports written by older tooling load in the current shape.
func (g *GuidelineResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		GuidelineID          string          `json:"guideline_id"`
		VerificationDecision json.RawMessage `json:"verification_decision"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.GuidelineID = schema.CanonicalGuidelineID(raw.GuidelineID)
	g.VerificationDecision = nil
	if len(raw.VerificationDecision) == 0 || bytes.Equal(bytes.TrimSpace(raw.VerificationDecision), []byte("null")) {
		return nil
	}
	rec, err := schema.DecodeDecision(raw.VerificationDecision)
	if err != nil {
		return fmt.Errorf("%s: %w", g.GuidelineID, err)
	}
	if rec.GuidelineID == "" {
		rec.GuidelineID = g.GuidelineID
	}
	g.VerificationDecision = &rec
	return nil
}

// ApplicabilityChange is a proposed applicability change awaiting human
// sign-off. Approved is nil until someone approves or rejects it.
type ApplicabilityChange struct {
	GuidelineID   string `json:"guideline_id"`
	Field         string `json:"field"`
	CurrentValue  string `json:"current_value"`
	ProposedValue string `json:"proposed_value"`
	Rationale     string `json:"rationale"`
	Approved      *bool  `json:"approved"`
}

// Summary counters of a report. They are always recomputed.
type Summary struct {
	TotalGuidelines              int `json:"total_guidelines"`
	VerifiedCount                int `json:"verified_count"`
	ApplicabilityChangesProposed int `json:"applicability_changes_proposed"`
	ApplicabilityChangesApproved int `json:"applicability_changes_approved"`
}

// Report is the consolidated view of one session of a batch.
type Report struct {
	BatchID              int                   `json:"batch_id"`
	SessionID            int                   `json:"session_id"`
	GeneratedDate        string                `json:"generated_date,omitempty"`
	Guidelines           []GuidelineResult     `json:"guidelines"`
	ApplicabilityChanges []ApplicabilityChange `json:"applicability_changes"`
	Summary              Summary               `json:"summary"`
}

// NewReport scaffolds an empty report for a session of def.
func NewReport(def Definition, session int, now time.Time) *Report {
	r := &Report{
		BatchID:              def.ID,
		SessionID:            session,
		GeneratedDate:        now.UTC().Format(time.RFC3339),
		Guidelines:           make([]GuidelineResult, len(def.Guidelines)),
		ApplicabilityChanges: []ApplicabilityChange{},
	}
	for i, g := range def.Guidelines {
		r.Guidelines[i] = GuidelineResult{GuidelineID: g}
	}
	r.Recompute()
	return r
}

// Index returns the position of a guideline in the report, or -1.
func (r *Report) Index(guidelineID string) int {
	guidelineID = schema.CanonicalGuidelineID(guidelineID)
	for i, g := range r.Guidelines {
		if g.GuidelineID == guidelineID {
			return i
		}
	}
	return -1
}

// Recompute derives the summary from the report contents.
func (r *Report) Recompute() {
	s := Summary{
		TotalGuidelines:              len(r.Guidelines),
		ApplicabilityChangesProposed: len(r.ApplicabilityChanges),
	}
	for _, g := range r.Guidelines {
		if g.Verified() {
			s.VerifiedCount++
		}
	}
	for _, c := range r.ApplicabilityChanges {
		if c.Approved != nil && *c.Approved {
			s.ApplicabilityChangesApproved++
		}
	}
	r.Summary = s
}

// FirstUnverified returns the first guideline without a decision.
func (r *Report) FirstUnverified() (string, bool) {
	for _, g := range r.Guidelines {
		if !g.Verified() {
			return g.GuidelineID, true
		}
	}
	return "", false
}

// PendingChanges returns the applicability changes nobody has ruled on.
func (r *Report) PendingChanges() []ApplicabilityChange {
	var out []ApplicabilityChange
	for _, c := range r.ApplicabilityChanges {
		if c.Approved == nil {
			out = append(out, c)
		}
	}
	return out
}

// LoadReport reads a batch report.
func LoadReport(path string) (*Report, error) {
	var r Report
	if err := store.ReadJSON(path, &r); err != nil {
		return nil, fmt.Errorf("loading batch report: %w", err)
	}
	if r.ApplicabilityChanges == nil {
		r.ApplicabilityChanges = []ApplicabilityChange{}
	}
	return &r, nil
}

// Encode returns the on-disk bytes of r.
func (r *Report) Encode() ([]byte, error) {
	return store.MarshalJSON(r)
}

// Save atomically writes r to path.
func (r *Report) Save(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, data)
}

// ReportFile is one session report found on disk.
type ReportFile struct {
	Path   string
	Report *Report
}

// FindReports returns every readable session report of a batch ordered by
// session id. Unreadable files are skipped.
func FindReports(layout standard.Layout, batchID int) ([]ReportFile, error) {
	paths, err := doublestar.FilepathGlob(layout.BatchReportGlob(batchID))
	if err != nil {
		return nil, fmt.Errorf("listing batch %d reports: %w", batchID, err)
	}
	var out []ReportFile
	for _, p := range paths {
		r, err := LoadReport(p)
		if err != nil || r.BatchID != batchID {
			continue
		}
		out = append(out, ReportFile{Path: p, Report: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Report.SessionID < out[j].Report.SessionID })
	return out, nil
}

// LatestReport returns the report of the highest session of a batch.
func LatestReport(layout standard.Layout, batchID int) (ReportFile, bool, error) {
	reports, err := FindReports(layout, batchID)
	if err != nil || len(reports) == 0 {
		return ReportFile{}, false, err
	}
	return reports[len(reports)-1], true, nil
}

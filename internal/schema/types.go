package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Match is one FLS section or paragraph matched to a guideline.
// Category 0 is section granularity; negative rubric codes are paragraphs.
type Match struct {
	FLSID        string  `json:"fls_id" validate:"required,flsid"`
	FLSTitle     string  `json:"fls_title,omitempty"`
	Category     int     `json:"category" validate:"min=-8,max=0"`
	Score        float64 `json:"score" validate:"min=0,max=1"`
	Reason       string  `json:"reason" validate:"nonblank"`
	SectionFLSID string  `json:"section_fls_id,omitempty" validate:"omitempty,flsid"`
}

// IsParagraph reports whether the match is finer than section granularity.
func (m Match) IsParagraph() bool { return m.Category != 0 }

// SearchToolUse records one search a worker ran before deciding.
type SearchToolUse struct {
	Tool        string `json:"tool" validate:"nonblank"`
	Query       string `json:"query" validate:"nonblank"`
	ResultCount *int   `json:"result_count,omitempty" validate:"omitempty,min=0"`
}

// Waiver replaces the search tool list when searches were skipped with approval.
type Waiver struct {
	Reason       string `json:"waiver_reason" validate:"nonblank"`
	ApprovedBy   string `json:"approved_by" validate:"nonblank"`
	ApprovalDate string `json:"approval_date" validate:"required,datetime=2006-01-02"`
	Notes        string `json:"notes,omitempty"`
}

// SearchTools is either a list of searches or a waiver. On the wire it is
// a JSON array or a JSON object respectively.
type SearchTools struct {
	Uses   []SearchToolUse `json:"-" validate:"dive"`
	Waiver *Waiver         `json:"-"`
}

// Present reports whether any search or a waiver was recorded.
func (s *SearchTools) Present() bool {
	return s != nil && (len(s.Uses) > 0 || s.Waiver != nil)
}

func (s SearchTools) MarshalJSON() ([]byte, error) {
	if s.Waiver != nil {
		return json.Marshal(s.Waiver)
	}
	if s.Uses == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Uses)
}

func (s *SearchTools) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '[':
		return json.Unmarshal(data, &s.Uses)
	case '{':
		s.Waiver = &Waiver{}
		return json.Unmarshal(data, s.Waiver)
	default:
		return fmt.Errorf("search_tools_used must be a list or a waiver object")
	}
}

// ContextEntry holds the mapping or decision fields for one context.
type ContextEntry struct {
	Applicability    Applicability    `json:"applicability" validate:"required,applicability"`
	AdjustedCategory AdjustedCategory `json:"adjusted_category,omitempty" validate:"omitempty,adjusted_category"`
	RationaleType    RationaleType    `json:"rationale_type,omitempty" validate:"omitempty,rationale_type"`
	Confidence       Confidence       `json:"confidence,omitempty" validate:"omitempty,confidence"`
	AnalysisSummary  string           `json:"analysis_summary,omitempty"`
	AcceptedMatches  []Match          `json:"accepted_matches" validate:"dive"`
	RejectedMatches  []Match          `json:"rejected_matches,omitempty" validate:"dive"`
	SearchToolsUsed  *SearchTools     `json:"search_tools_used,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Decision         DecisionKind     `json:"decision,omitempty" validate:"omitempty,decision"`
}

// AcceptedIDs returns the fls_ids of the accepted matches in order.
func (e ContextEntry) AcceptedIDs() []string {
	ids := make([]string, 0, len(e.AcceptedMatches))
	for _, m := range e.AcceptedMatches {
		ids = append(ids, m.FLSID)
	}
	return ids
}

// AcceptedMatch returns the accepted match with the given id.
func (e ContextEntry) AcceptedMatch(id string) (Match, bool) {
	for _, m := range e.AcceptedMatches {
		if m.FLSID == id {
			return m, true
		}
	}
	return Match{}, false
}

// FieldValue returns the normalized value of a pattern field.
func (e ContextEntry) FieldValue(field string) (string, bool) {
	switch field {
	case "applicability":
		return string(e.Applicability.Normalized()), true
	case "adjusted_category":
		return string(e.AdjustedCategory.Normalized()), true
	case "rationale_type":
		return string(e.RationaleType.Normalized()), true
	case "confidence":
		return string(e.Confidence.Normalized()), true
	case "decision":
		return string(e.Decision.Normalized()), true
	}
	return "", false
}

func (e ContextEntry) clone() ContextEntry {
	c := e
	c.AcceptedMatches = append([]Match(nil), e.AcceptedMatches...)
	c.RejectedMatches = append([]Match(nil), e.RejectedMatches...)
	if e.SearchToolsUsed != nil {
		st := SearchTools{Uses: append([]SearchToolUse(nil), e.SearchToolsUsed.Uses...)}
		if e.SearchToolsUsed.Waiver != nil {
			w := *e.SearchToolsUsed.Waiver
			st.Waiver = &w
		}
		c.SearchToolsUsed = &st
	}
	return c
}

func (e *ContextEntry) normalize() {
	e.Applicability = e.Applicability.Normalized()
	e.AdjustedCategory = e.AdjustedCategory.Normalized()
	e.RationaleType = e.RationaleType.Normalized()
	e.Confidence = e.Confidence.Normalized()
	e.Decision = e.Decision.Normalized()
}

// NormalizeToDualContext broadcasts a single-context entry to both contexts.
// The two copies share no slices.
func NormalizeToDualContext(e ContextEntry) (allRust, safeRust ContextEntry) {
	return e.clone(), e.clone()
}

// MappingEntry is the baseline mapping of one guideline.
type MappingEntry struct {
	GuidelineID    string       `json:"guideline_id" validate:"nonblank"`
	GuidelineTitle string       `json:"guideline_title,omitempty"`
	SchemaVersion  string       `json:"schema_version,omitempty"`
	AllRust        ContextEntry `json:"all_rust"`
	SafeRust       ContextEntry `json:"safe_rust"`

	// SourceVersion is the shape the entry was decoded from.
	SourceVersion Version `json:"-"`
}

// Entry returns the entry for context c.
func (m *MappingEntry) Entry(c Context) *ContextEntry {
	if c == ContextSafeRust {
		return &m.SafeRust
	}
	return &m.AllRust
}

// ApplicabilityChangeProposal is a worker's request to change a mapped value.
type ApplicabilityChangeProposal struct {
	Field         string `json:"field" validate:"nonblank"`
	CurrentValue  string `json:"current_value"`
	ProposedValue string `json:"proposed_value" validate:"nonblank"`
	Rationale     string `json:"rationale" validate:"nonblank"`
}

// DecisionRecord is one worker's verification decision for a guideline.
type DecisionRecord struct {
	GuidelineID                 string                       `json:"guideline_id" validate:"nonblank"`
	SchemaVersion               string                       `json:"schema_version,omitempty"`
	Decision                    DecisionKind                 `json:"decision,omitempty" validate:"omitempty,decision"`
	AllRust                     ContextEntry                 `json:"all_rust"`
	SafeRust                    ContextEntry                 `json:"safe_rust"`
	ProposedApplicabilityChange *ApplicabilityChangeProposal `json:"proposed_applicability_change,omitempty"`
	RecordedAt                  string                       `json:"recorded_at,omitempty"`

	// SourceVersion is the shape the record was decoded from.
	SourceVersion Version `json:"-"`
}

// Entry returns the entry for context c.
func (d *DecisionRecord) Entry(c Context) *ContextEntry {
	if c == ContextSafeRust {
		return &d.SafeRust
	}
	return &d.AllRust
}

// ADD6Row is the ADD-6 reference judgment for one guideline.
type ADD6Row struct {
	GuidelineID           string           `json:"guideline_id"`
	ApplicabilityAllRust  Applicability    `json:"applicability_all_rust"`
	ApplicabilitySafeRust Applicability    `json:"applicability_safe_rust"`
	AdjustedCategory      AdjustedCategory `json:"adjusted_category"`
	Rationale             []string         `json:"rationale,omitempty"`
	Comment               string           `json:"comment,omitempty"`
}

// Applicability returns the normalized ADD-6 applicability for context c.
func (r ADD6Row) Applicability(c Context) Applicability {
	if c == ContextSafeRust {
		return r.ApplicabilitySafeRust.Normalized()
	}
	return r.ApplicabilityAllRust.Normalized()
}

// PatternFields are the field names an expected pattern may declare.
var PatternFields = []string{"applicability", "adjusted_category", "rationale_type", "confidence", "decision"}

// ExpectedPattern maps context to field name to the value a batch expects
// after verification.
type ExpectedPattern map[Context]map[string]string

// Validate rejects unknown contexts and field names.
func (p ExpectedPattern) Validate() error {
	for ctx, fields := range p {
		if !ctx.Valid() {
			return fmt.Errorf("expected_pattern: unknown context %q", ctx)
		}
		for f := range fields {
			if !isPatternField(f) {
				return fmt.Errorf("expected_pattern.%s: unknown field %q", ctx, f)
			}
		}
	}
	return nil
}

// NormalizePatternValue folds an expected value the same way the matching
// decision field is folded.
func NormalizePatternValue(field, value string) string {
	switch field {
	case "applicability":
		return string(NormalizeApplicability(value))
	case "adjusted_category":
		return string(NormalizeAdjustedCategory(value))
	default:
		return foldKey(value)
	}
}

func isPatternField(f string) bool {
	for _, p := range PatternFields {
		if p == f {
			return true
		}
	}
	return false
}

package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version identifies one of the historical record shapes.
type Version int

const (
	VersionUnknown Version = iota
	// Version1 is a flat single-context record.
	Version1
	// Version2 has all_rust and safe_rust objects with a top-level decision.
	Version2
	// Version3 adds per-context decision and search_tools_used.
	Version3
)

// CurrentSchemaVersion is written on every re-encoded record.
const CurrentSchemaVersion = "3.0"

func (v Version) String() string {
	switch v {
	case Version1:
		return "v1"
	case Version2:
		return "v2"
	case Version3:
		return "v3"
	}
	return "unknown"
}

// DetectVersion reads schema_version when present and otherwise infers the
// shape from the keys of the record.
func DetectVersion(raw map[string]json.RawMessage) (Version, error) {
	if sv, ok := raw["schema_version"]; ok {
		v, err := parseSchemaVersion(sv)
		if err != nil {
			return VersionUnknown, err
		}
		return v, nil
	}
	all, hasAll := raw["all_rust"]
	safe, hasSafe := raw["safe_rust"]
	if !hasAll && !hasSafe {
		return Version1, nil
	}
	for _, ctx := range []json.RawMessage{all, safe} {
		if len(ctx) == 0 {
			continue
		}
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(ctx, &keys); err != nil {
			return VersionUnknown, fmt.Errorf("context object: %w", err)
		}
		if _, ok := keys["decision"]; ok {
			return Version3, nil
		}
		if _, ok := keys["search_tools_used"]; ok {
			return Version3, nil
		}
	}
	return Version2, nil
}

func parseSchemaVersion(data json.RawMessage) (Version, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return VersionUnknown, fmt.Errorf("schema_version: must be a string or number")
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	major, _, _ := strings.Cut(s, ".")
	switch major {
	case "1":
		return Version1, nil
	case "2":
		return Version2, nil
	case "3":
		return Version3, nil
	}
	return VersionUnknown, fmt.Errorf("schema_version: unsupported version %q", s)
}

// flatRecord is the v1 wire shape.
type flatRecord struct {
	GuidelineID                 string                       `json:"guideline_id"`
	GuidelineTitle              string                       `json:"guideline_title"`
	Decision                    DecisionKind                 `json:"decision"`
	Applicability               Applicability                `json:"applicability"`
	AdjustedCategory            AdjustedCategory             `json:"adjusted_category"`
	RationaleType               RationaleType                `json:"rationale_type"`
	FLSRationaleType            RationaleType                `json:"fls_rationale_type"`
	Confidence                  Confidence                   `json:"confidence"`
	AnalysisSummary             string                       `json:"analysis_summary"`
	AcceptedMatches             []Match                      `json:"accepted_matches"`
	RejectedMatches             []Match                      `json:"rejected_matches"`
	SearchToolsUsed             *SearchTools                 `json:"search_tools_used"`
	Notes                       string                       `json:"notes"`
	ProposedApplicabilityChange *ApplicabilityChangeProposal `json:"proposed_applicability_change"`
	RecordedAt                  string                       `json:"recorded_at"`
}

func (f flatRecord) entry() ContextEntry {
	rt := f.RationaleType
	if rt == "" {
		rt = f.FLSRationaleType
	}
	return ContextEntry{
		Applicability:    f.Applicability,
		AdjustedCategory: f.AdjustedCategory,
		RationaleType:    rt,
		Confidence:       f.Confidence,
		AnalysisSummary:  f.AnalysisSummary,
		AcceptedMatches:  f.AcceptedMatches,
		RejectedMatches:  f.RejectedMatches,
		SearchToolsUsed:  f.SearchToolsUsed,
		Notes:            f.Notes,
		Decision:         f.Decision,
	}
}

// dualRecord is the v2 and v3 wire shape. v2 may carry search tools and a
// summary at the top level.
type dualRecord struct {
	DecisionRecord
	GuidelineTitle  string       `json:"guideline_title"`
	SearchToolsUsed *SearchTools `json:"search_tools_used"`
	AnalysisSummary string       `json:"analysis_summary"`
}

func splitVersion(data []byte) (Version, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return VersionUnknown, fmt.Errorf("parsing record: %w", err)
	}
	return DetectVersion(raw)
}

// DecodeDecision decodes any record version into the dual-context shape.
// Enum fields are normalized and the guideline id is canonicalized.
func DecodeDecision(data []byte) (DecisionRecord, error) {
	v, err := splitVersion(data)
	if err != nil {
		return DecisionRecord{}, err
	}

	var rec DecisionRecord
	switch v {
	case Version1:
		var f flatRecord
		if err := json.Unmarshal(data, &f); err != nil {
			return DecisionRecord{}, fmt.Errorf("decoding v1 decision: %w", err)
		}
		all, safe := NormalizeToDualContext(f.entry())
		rec = DecisionRecord{
			GuidelineID:                 f.GuidelineID,
			Decision:                    f.Decision,
			AllRust:                     all,
			SafeRust:                    safe,
			ProposedApplicabilityChange: f.ProposedApplicabilityChange,
			RecordedAt:                  f.RecordedAt,
		}
	default:
		var d dualRecord
		if err := json.Unmarshal(data, &d); err != nil {
			return DecisionRecord{}, fmt.Errorf("decoding %s decision: %w", v, err)
		}
		rec = d.DecisionRecord
		for _, c := range Contexts {
			e := rec.Entry(c)
			if e.SearchToolsUsed == nil && d.SearchToolsUsed != nil {
				st := *d.SearchToolsUsed
				e.SearchToolsUsed = &st
			}
			if e.AnalysisSummary == "" {
				e.AnalysisSummary = d.AnalysisSummary
			}
		}
	}

	rec.SourceVersion = v
	finishDecision(&rec)
	return rec, nil
}

func finishDecision(rec *DecisionRecord) {
	rec.GuidelineID = CanonicalGuidelineID(rec.GuidelineID)
	rec.SchemaVersion = CurrentSchemaVersion
	rec.Decision = rec.Decision.Normalized()
	for _, c := range Contexts {
		e := rec.Entry(c)
		e.normalize()
		if e.Decision == "" {
			e.Decision = rec.Decision
		}
	}
	if rec.Decision == "" && rec.AllRust.Decision == rec.SafeRust.Decision {
		rec.Decision = rec.AllRust.Decision
	}
}

// DecodeMapping decodes one baseline mapping entry of any version.
func DecodeMapping(data []byte) (MappingEntry, error) {
	v, err := splitVersion(data)
	if err != nil {
		return MappingEntry{}, err
	}

	var m MappingEntry
	switch v {
	case Version1:
		var f flatRecord
		if err := json.Unmarshal(data, &f); err != nil {
			return MappingEntry{}, fmt.Errorf("decoding v1 mapping: %w", err)
		}
		all, safe := NormalizeToDualContext(f.entry())
		m = MappingEntry{GuidelineID: f.GuidelineID, GuidelineTitle: f.GuidelineTitle, AllRust: all, SafeRust: safe}
	default:
		var d dualRecord
		if err := json.Unmarshal(data, &d); err != nil {
			return MappingEntry{}, fmt.Errorf("decoding %s mapping: %w", v, err)
		}
		m = MappingEntry{
			GuidelineID:    d.GuidelineID,
			GuidelineTitle: d.GuidelineTitle,
			AllRust:        d.AllRust,
			SafeRust:       d.SafeRust,
		}
	}

	m.GuidelineID = CanonicalGuidelineID(m.GuidelineID)
	m.SchemaVersion = CurrentSchemaVersion
	m.SourceVersion = v
	m.AllRust.normalize()
	m.SafeRust.normalize()
	return m, nil
}

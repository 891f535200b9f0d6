package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/flsverify/internal/schema"
)

// ChangeFields are the fields an applicability change may target.
var ChangeFields = []string{"applicability_all_rust", "applicability_safe_rust", "fls_rationale_type"}

// SearchTools are the tools a search entry may name.
var SearchTools = []string{"search-fls", "search-fls-deep", "recompute-similarity", "read-fls-chapter", "grep-fls"}

// WaiverReasons are the accepted reasons for skipping searches.
var WaiverReasons = []string{"legacy_decision", "batch_report_sufficient", "manual_fls_review"}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ParseMatch parses "fls_id:fls_title:category:score:reason". The reason
// may contain colons. Scores are rounded to three decimals.
func ParseMatch(s string) (schema.Match, error) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) != 5 {
		return schema.Match{}, fmt.Errorf("invalid match %q: want fls_id:fls_title:category:score:reason", s)
	}
	id := strings.TrimSpace(parts[0])
	if !schema.ValidFLSID(id) {
		return schema.Match{}, fmt.Errorf("invalid match %q: bad FLS id %q", s, id)
	}
	category, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || category < -8 || category > 0 {
		return schema.Match{}, fmt.Errorf("invalid match %q: category must be an integer from -8 to 0", s)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil || score < 0 || score > 1 {
		return schema.Match{}, fmt.Errorf("invalid match %q: score must be a number from 0 to 1", s)
	}
	reason := strings.TrimSpace(parts[4])
	if reason == "" {
		return schema.Match{}, fmt.Errorf("invalid match %q: empty reason", s)
	}
	return schema.Match{
		FLSID:    id,
		FLSTitle: strings.TrimSpace(parts[1]),
		Category: category,
		Score:    math.Round(score*1000) / 1000,
		Reason:   reason,
	}, nil
}

// ParseChange parses "field:current_value:proposed_value:rationale".
func ParseChange(s string) (*schema.ApplicabilityChangeProposal, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid change %q: want field:current_value:proposed_value:rationale", s)
	}
	field := strings.TrimSpace(parts[0])
	if !oneOf(field, ChangeFields) {
		return nil, fmt.Errorf("invalid change %q: field must be one of %s", s, strings.Join(ChangeFields, ", "))
	}
	return &schema.ApplicabilityChangeProposal{
		Field:         field,
		CurrentValue:  strings.TrimSpace(parts[1]),
		ProposedValue: strings.TrimSpace(parts[2]),
		Rationale:     strings.TrimSpace(parts[3]),
	}, nil
}

// ParseSearch parses "tool:query[:result_count]".
func ParseSearch(s string) (schema.SearchToolUse, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return schema.SearchToolUse{}, fmt.Errorf("invalid search %q: want tool:query[:result_count]", s)
	}
	tool := strings.TrimSpace(parts[0])
	if !oneOf(tool, SearchTools) {
		return schema.SearchToolUse{}, fmt.Errorf("invalid search %q: tool must be one of %s", s, strings.Join(SearchTools, ", "))
	}
	use := schema.SearchToolUse{Tool: tool, Query: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || n < 0 {
			return schema.SearchToolUse{}, fmt.Errorf("invalid search %q: result count must be a non-negative integer", s)
		}
		use.ResultCount = &n
	}
	return use, nil
}

// ParseWaiver parses "reason:approved_by:YYYY-MM-DD[:notes]".
func ParseWaiver(s string) (*schema.Waiver, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid waiver %q: want reason:approved_by:approval_date[:notes]", s)
	}
	reason := strings.TrimSpace(parts[0])
	if !oneOf(reason, WaiverReasons) {
		return nil, fmt.Errorf("invalid waiver %q: reason must be one of %s", s, strings.Join(WaiverReasons, ", "))
	}
	date := strings.TrimSpace(parts[2])
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid waiver %q: approval date must be YYYY-MM-DD", s)
	}
	w := &schema.Waiver{Reason: reason, ApprovedBy: strings.TrimSpace(parts[1]), ApprovalDate: date}
	if len(parts) == 4 {
		w.Notes = strings.TrimSpace(parts[3])
	}
	return w, nil
}

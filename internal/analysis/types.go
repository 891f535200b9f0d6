package analysis

import (
	"time"

	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

// Verdict is an LLM verdict on one aspect.
type Verdict string

const (
	VerdictAppropriate   Verdict = "appropriate"
	VerdictInappropriate Verdict = "inappropriate"
	VerdictNeedsReview   Verdict = "needs_review"
	VerdictNA            Verdict = "n_a"

	// ADD-6 divergence verdicts.
	VerdictJustified    Verdict = "justified"
	VerdictQuestionable Verdict = "questionable"
	VerdictIncorrect    Verdict = "incorrect"
)

// Recommendation is the overall LLM recommendation.
type Recommendation string

const (
	RecommendAccept          Recommendation = "accept"
	RecommendAcceptWithNotes Recommendation = "accept_with_notes"
	RecommendNeedsReview     Recommendation = "needs_review"
	RecommendReject          Recommendation = "reject"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAccept, RecommendAcceptWithNotes, RecommendNeedsReview, RecommendReject:
		return true
	}
	return false
}

// Aspect is one reviewable dimension of a decision.
type Aspect string

const (
	AspectCategorization Aspect = "categorization"
	AspectFLSRemovals    Aspect = "fls_removals"
	AspectFLSAdditions   Aspect = "fls_additions"
	AspectADD6Divergence Aspect = "add6_divergence"
	AspectSpecificity    Aspect = "specificity"
)

// Aspects lists every aspect in review order.
var Aspects = []Aspect{AspectCategorization, AspectFLSRemovals, AspectFLSAdditions, AspectADD6Divergence, AspectSpecificity}

// ParseAspect returns the aspect with the given name.
func ParseAspect(s string) (Aspect, bool) {
	for _, a := range Aspects {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// ValidVerdict reports whether v is in the aspect's verdict domain.
func (a Aspect) ValidVerdict(v Verdict) bool {
	if a == AspectADD6Divergence {
		switch v {
		case VerdictJustified, VerdictQuestionable, VerdictIncorrect, VerdictNA:
			return true
		}
		return false
	}
	switch v {
	case VerdictAppropriate, VerdictInappropriate, VerdictNeedsReview, VerdictNA:
		return true
	}
	return false
}

// Required reports whether flags demand a verdict on a.
func (a Aspect) Required(f compare.Flags) bool {
	switch a {
	case AspectCategorization:
		return f.RationaleTypeChanged || f.BatchPatternOutlier
	case AspectFLSRemovals:
		return f.FLSRemoved
	case AspectFLSAdditions:
		return f.FLSAdded
	case AspectADD6Divergence:
		return f.ApplicabilityDiffersFromADD6 || f.AdjustedCategoryDiffersFromADD6
	case AspectSpecificity:
		return f.SpecificityDecreased
	}
	return false
}

func (a Aspect) reason() string {
	switch a {
	case AspectCategorization:
		return "rationale_type_changed or batch_pattern_outlier"
	case AspectFLSRemovals:
		return "fls_removed"
	case AspectFLSAdditions:
		return "fls_added"
	case AspectADD6Divergence:
		return "ADD-6 divergence"
	case AspectSpecificity:
		return "specificity_decreased"
	}
	return string(a)
}

// AspectVerdict is a verdict with its reasoning.
type AspectVerdict struct {
	Verdict   Verdict `json:"verdict"`
	Reasoning string  `json:"reasoning"`
}

// IDInfo describes one removed or added fls_id across contexts.
type IDInfo struct {
	Contexts []schema.Context `json:"contexts"`
	Title    string           `json:"title,omitempty"`
	Category int              `json:"category"`
}

// HasContext reports whether the id changed in context c.
func (i IDInfo) HasContext(c schema.Context) bool {
	for _, ctx := range i.Contexts {
		if ctx == c {
			return true
		}
	}
	return false
}

// RemovalInfo is the per_id entry of a removed fls_id.
type RemovalInfo struct {
	IDInfo
	OriginalReason   string                    `json:"original_reason,omitempty"`
	RemovalDecisions map[schema.Context]string `json:"removal_decisions"`
}

// AdditionInfo is the per_id entry of an added fls_id.
type AdditionInfo struct {
	IDInfo
	NewReason         string                    `json:"new_reason,omitempty"`
	AdditionDecisions map[schema.Context]string `json:"addition_decisions"`
}

// RemovalsVerdict is the fls_removals aspect with per-id justifications.
type RemovalsVerdict struct {
	AspectVerdict
	PerID map[string]*RemovalInfo `json:"per_id,omitempty"`
}

// AdditionsVerdict is the fls_additions aspect with per-id justifications.
type AdditionsVerdict struct {
	AspectVerdict
	PerID map[string]*AdditionInfo `json:"per_id,omitempty"`
}

// SpecificityVerdict carries the paragraphs whose loss was judged.
type SpecificityVerdict struct {
	AspectVerdict
	LostParagraphs []compare.LostParagraph `json:"lost_paragraphs"`
}

// LLMAnalysis is the LLM-authored part of an outlier analysis.
type LLMAnalysis struct {
	Summary               string              `json:"summary"`
	OverallRecommendation Recommendation      `json:"overall_recommendation"`
	AnalyzedAt            time.Time           `json:"analyzed_at"`
	Categorization        *AspectVerdict      `json:"categorization"`
	FLSRemovals           *RemovalsVerdict    `json:"fls_removals"`
	FLSAdditions          *AdditionsVerdict   `json:"fls_additions"`
	ADD6Divergence        *AspectVerdict      `json:"add6_divergence"`
	Specificity           *SpecificityVerdict `json:"specificity"`
	RoutinePattern        string              `json:"routine_pattern,omitempty"`
	Notes                 string              `json:"notes,omitempty"`
}

// Verdict returns the verdict recorded for aspect a.
func (l *LLMAnalysis) Verdict(a Aspect) (Verdict, bool) {
	switch a {
	case AspectCategorization:
		if l.Categorization != nil {
			return l.Categorization.Verdict, true
		}
	case AspectFLSRemovals:
		if l.FLSRemovals != nil {
			return l.FLSRemovals.Verdict, true
		}
	case AspectFLSAdditions:
		if l.FLSAdditions != nil {
			return l.FLSAdditions.Verdict, true
		}
	case AspectADD6Divergence:
		if l.ADD6Divergence != nil {
			return l.ADD6Divergence.Verdict, true
		}
	case AspectSpecificity:
		if l.Specificity != nil {
			return l.Specificity.Verdict, true
		}
	}
	return "", false
}

// EnrichedMatch is a match with its FLS content attached for display.
type EnrichedMatch struct {
	schema.Match
	Content *store.Content `json:"fls_content,omitempty"`
}

// ContextMatches holds enriched matches per context.
type ContextMatches struct {
	AllRust  []EnrichedMatch `json:"all_rust"`
	SafeRust []EnrichedMatch `json:"safe_rust"`
}

// EnrichedMatches holds the enriched mapping and decision matches.
type EnrichedMatches struct {
	Mapping  ContextMatches `json:"mapping"`
	Decision ContextMatches `json:"decision"`
}

// Status is the recomputed human review status.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPartial       Status = "partial"
	StatusFullyReviewed Status = "fully_reviewed"
)

// Decision is a human ruling.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// ParseDecision accepts "accept" or "reject".
func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case DecisionAccept, DecisionReject:
		return Decision(s), true
	}
	return "", false
}

// Ruling is one human decision with its reason.
type Ruling struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// IDReview holds the per-context rulings for one removed or added fls_id.
type IDReview struct {
	Contexts  []schema.Context           `json:"contexts"`
	Decisions map[schema.Context]*Ruling `json:"decisions"`
}

// HumanReview is the human layer of an outlier analysis.
type HumanReview struct {
	OverallStatus  Status               `json:"overall_status"`
	ReviewedAt     *time.Time           `json:"reviewed_at"`
	Categorization *Ruling              `json:"categorization"`
	FLSRemovals    map[string]*IDReview `json:"fls_removals"`
	FLSAdditions   map[string]*IDReview `json:"fls_additions"`
	ADD6Divergence *Ruling              `json:"add6_divergence"`
	Specificity    *Ruling              `json:"specificity"`
	Notes          string               `json:"notes,omitempty"`
}

// OutlierAnalysis is the analysis file of one flagged guideline.
type OutlierAnalysis struct {
	GuidelineID     string               `json:"guideline_id"`
	Batch           int                  `json:"batch"`
	GuidelineType   schema.GuidelineType `json:"guideline_type"`
	Chapter         int                  `json:"chapter"`
	ComparisonIDs   []string             `json:"comparison_ids"`
	ADD6            *schema.ADD6Row      `json:"add6"`
	Flags           compare.Flags        `json:"flags"`
	ActiveFlags     []compare.Flag       `json:"active_flags"`
	Comparison      compare.ByContext    `json:"comparison"`
	EnrichedMatches EnrichedMatches      `json:"enriched_matches"`
	LLMAnalysis     LLMAnalysis          `json:"llm_analysis"`
	HumanReview     *HumanReview         `json:"human_review"`
}

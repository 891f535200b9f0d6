package schema

import (
	"fmt"
	"strings"
)

// Context is one of the two applicability contexts tracked per guideline.
type Context string

const (
	ContextAllRust  Context = "all_rust"
	ContextSafeRust Context = "safe_rust"
)

// Contexts lists both contexts in canonical order.
var Contexts = []Context{ContextAllRust, ContextSafeRust}

// Valid reports whether c is a known context.
func (c Context) Valid() bool {
	return c == ContextAllRust || c == ContextSafeRust
}

// ParseContextSelector resolves a CLI context selector. "both" expands to
// every context.
func ParseContextSelector(s string) ([]Context, error) {
	switch foldKey(s) {
	case "all_rust":
		return []Context{ContextAllRust}, nil
	case "safe_rust":
		return []Context{ContextSafeRust}, nil
	case "both":
		return []Context{ContextAllRust, ContextSafeRust}, nil
	default:
		return nil, fmt.Errorf("invalid context %q: must be all_rust, safe_rust or both", s)
	}
}

// Applicability describes how a guideline's concern maps onto Rust.
type Applicability string

const (
	ApplicabilityDirect        Applicability = "direct"
	ApplicabilityPartial       Applicability = "partial"
	ApplicabilityNotApplicable Applicability = "not_applicable"
	ApplicabilityRustPrevents  Applicability = "rust_prevents"
	ApplicabilityUnmapped      Applicability = "unmapped"
)

var applicabilityAliases = map[string]Applicability{
	"direct":         ApplicabilityDirect,
	"yes":            ApplicabilityDirect,
	"partial":        ApplicabilityPartial,
	"not_applicable": ApplicabilityNotApplicable,
	"no":             ApplicabilityNotApplicable,
	"n_a":            ApplicabilityNotApplicable,
	"na":             ApplicabilityNotApplicable,
	"rust_prevents":  ApplicabilityRustPrevents,
	"unmapped":       ApplicabilityUnmapped,
}

// NormalizeApplicability folds case, separators and aliases ("Yes", "No",
// "n/a") onto the canonical value. Unknown input is returned folded.
func NormalizeApplicability(s string) Applicability {
	k := foldKey(s)
	if a, ok := applicabilityAliases[k]; ok {
		return a
	}
	return Applicability(k)
}

// Normalized returns the canonical form of a.
func (a Applicability) Normalized() Applicability { return NormalizeApplicability(string(a)) }

// Valid reports whether a normalizes to a known applicability.
func (a Applicability) Valid() bool {
	_, ok := applicabilityAliases[foldKey(string(a))]
	return ok
}

// AdjustedCategory mirrors the standard's severity categories.
type AdjustedCategory string

const (
	CategoryMandatory  AdjustedCategory = "mandatory"
	CategoryRequired   AdjustedCategory = "required"
	CategoryAdvisory   AdjustedCategory = "advisory"
	CategoryDisapplied AdjustedCategory = "disapplied"
	CategoryImplicit   AdjustedCategory = "implicit"
	CategoryNA         AdjustedCategory = "n_a"
)

var adjustedCategories = map[AdjustedCategory]bool{
	CategoryMandatory: true, CategoryRequired: true, CategoryAdvisory: true,
	CategoryDisapplied: true, CategoryImplicit: true, CategoryNA: true,
}

// NormalizeAdjustedCategory folds case and the "n/a" spellings.
func NormalizeAdjustedCategory(s string) AdjustedCategory {
	k := foldKey(s)
	if k == "na" || k == "not_applicable" {
		k = "n_a"
	}
	return AdjustedCategory(k)
}

func (c AdjustedCategory) Normalized() AdjustedCategory {
	return NormalizeAdjustedCategory(string(c))
}

func (c AdjustedCategory) Valid() bool { return adjustedCategories[c.Normalized()] }

// RationaleType classifies why a mapping looks the way it does.
type RationaleType string

const (
	RationaleDirectMapping   RationaleType = "direct_mapping"
	RationaleRustAlternative RationaleType = "rust_alternative"
	RationaleRustPrevents    RationaleType = "rust_prevents"
	RationaleNoEquivalent    RationaleType = "no_equivalent"
	RationalePartialMapping  RationaleType = "partial_mapping"
)

var rationaleTypes = map[RationaleType]bool{
	RationaleDirectMapping: true, RationaleRustAlternative: true, RationaleRustPrevents: true,
	RationaleNoEquivalent: true, RationalePartialMapping: true,
}

func NormalizeRationaleType(s string) RationaleType { return RationaleType(foldKey(s)) }

func (r RationaleType) Normalized() RationaleType { return NormalizeRationaleType(string(r)) }

func (r RationaleType) Valid() bool { return rationaleTypes[r.Normalized()] }

// Confidence is the author's confidence in a mapping or decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Normalized() Confidence { return Confidence(foldKey(string(c))) }

func (c Confidence) Valid() bool {
	switch c.Normalized() {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// DecisionKind is the verdict a worker records for a guideline.
type DecisionKind string

const (
	DecisionAcceptWithModifications DecisionKind = "accept_with_modifications"
	DecisionAcceptNoMatches         DecisionKind = "accept_no_matches"
	DecisionAcceptExisting          DecisionKind = "accept_existing"
	DecisionReject                  DecisionKind = "reject"
)

func (d DecisionKind) Normalized() DecisionKind { return DecisionKind(foldKey(string(d))) }

func (d DecisionKind) Valid() bool {
	switch d.Normalized() {
	case DecisionAcceptWithModifications, DecisionAcceptNoMatches, DecisionAcceptExisting, DecisionReject:
		return true
	}
	return false
}

// foldKey lowercases and maps dashes, spaces and "/" separators to "_".
func foldKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "n/a", "n_a")
	return strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(s)
}

// Package analysis builds and persists outlier analyses: the LLM-authored
// per-aspect verdicts recorded against a flagged guideline's comparison.
//
// [Build] is the completeness gate. It refuses to produce an analysis while
// any verdict demanded by the guideline's flags, or any per-(fls_id,
// context) justification for a removed or added match, is missing, and it
// reports every missing item in a single [IncompleteError].
//
// The human review section is declared here because it is part of the
// analysis file; the review package owns its state transitions.
package analysis

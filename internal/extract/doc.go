// Package extract runs the comparison pipeline over whole batches: it loads
// the read-only reference data of a project, diffs every decision of a
// batch against the baseline mapping, and persists the per-guideline
// comparison records together with the batch and cross-batch summaries.
//
// The persisted records are derived data. Re-running an extraction over the
// same decisions rewrites identical files and prunes records of guidelines
// that no longer have a decision.
package extract

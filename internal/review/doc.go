// Package review layers human accept/reject rulings onto an outlier
// analysis and tracks bulk acceptance rules across guidelines.
//
// A review's status is never advanced by hand. It is recomputed from the
// required decision slots: one per aspect whose flag is set and one per
// removed or added (fls_id, context) pair. Zero slots means the guideline
// is trivially fully reviewed.
//
// Bulk rules live in an explicit [State] value that callers load, pass in
// and save. Rules are never applied implicitly; [ApplyBulkRules] is an
// idempotent pass that only fills slots nobody has decided yet.
package review

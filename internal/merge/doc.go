// Package merge consolidates per-guideline decision files into a batch
// report.
//
// Decision files are written independently by workers. Merge is the sole
// writer of the report and is idempotent: re-merging the same files
// produces the same bytes.
package merge

// Package aggregate derives per-batch statistics, cross-batch systematic
// patterns and the attention-ranked outlier report from extracted
// comparison records and outlier analyses.
package aggregate

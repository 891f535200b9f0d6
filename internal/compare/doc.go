// Package compare diffs a verification decision against the baseline
// mapping per context and derives the guideline's flags.
//
// Comparisons are always regenerable from the mapping, the decision and the
// ADD-6 row; nothing here reads or writes files.
package compare

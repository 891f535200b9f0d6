// Flsverify tracks verification decisions that map coding-standard
// guidelines (MISRA C/C++, CERT C/C++) onto the Ferrocene Language
// Specification, and diffs them against the baseline mapping.
//
// It extracts per-guideline comparisons and outlier flags, records LLM
// analyses and human reviews of the outliers, merges decision files into
// batch reports, and ranks what still needs attention.
//
// Usage:
//
//	flsverify extract --batches 1-3        # compare decisions with the mapping
//	flsverify pending --needs-analysis     # outliers without an analysis
//	flsverify analyze "Rule 10.1" ...      # record an LLM analysis
//	flsverify review decide "Rule 10.1" ...  # record a human ruling
//	flsverify record "Rule 10.1" --batch 2 ...  # write a decision file
//	flsverify merge --batch 2              # fold decision files into the report
//	flsverify report                       # write the attention report
package main

// Package output renders command results for display or machine consumption.
//
// Three formats are supported:
//   - text: terminal output, styled with lipgloss when stdout is a TTY (default)
//   - json: the full structured result
//   - markdown: review-ready documents; the attention report is written in this format
//
// Use [GetWriter] to obtain a [Writer] for a format string and call the
// method for the result being shown. [WriteReport] renders an attention
// report to a file or to stdout.
package output

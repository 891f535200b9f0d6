package merge

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an issue.
type Kind string

const (
	KindStructural  Kind = "structural"
	KindConsistency Kind = "consistency"
	KindDuplicate   Kind = "duplicate"
)

// Severity of an issue. Errors block the file, and the whole merge unless
// valid-only merging was requested.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found in a decision file.
type Issue struct {
	File     string   `json:"file"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	loc := i.File
	if i.Path != "" {
		loc += ": " + i.Path
	}
	return fmt.Sprintf("%s [%s %s] %s", loc, i.Severity, i.Kind, i.Message)
}

// Fatal reports whether any issue is an error.
func Fatal(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		if issues[a].File != issues[b].File {
			return issues[a].File < issues[b].File
		}
		return issues[a].Path < issues[b].Path
	})
}

// Aborted is returned when errors stop a merge before anything is written.
type Aborted struct {
	Issues []Issue
}

func (e *Aborted) Error() string {
	n := 0
	for _, i := range e.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	lines := make([]string, 0, len(e.Issues)+1)
	lines = append(lines, fmt.Sprintf("merge aborted: %d error(s), nothing written", n))
	for _, i := range e.Issues {
		lines = append(lines, "  "+i.String())
	}
	return strings.Join(lines, "\n")
}

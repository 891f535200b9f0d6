package schema

import (
	"path/filepath"
	"strconv"
	"strings"
)

// GuidelineType distinguishes rules from directives.
type GuidelineType string

const (
	TypeRule      GuidelineType = "rule"
	TypeDirective GuidelineType = "directive"
)

// Guideline is the immutable identity of one standard guideline.
type Guideline struct {
	ID       string        `json:"guideline_id"`
	Type     GuidelineType `json:"type"`
	Chapter  int           `json:"chapter"`
	Title    string        `json:"title,omitempty"`
	Category string        `json:"category,omitempty"`
}

var guidelinePrefixes = map[string]string{
	"rule":      "Rule",
	"dir":       "Dir",
	"directive": "Dir",
}

// CanonicalGuidelineID folds prefix spellings so "directive 4.1", "dir 4.1"
// and "Dir_4.1" all become "Dir 4.1". Ids without a rule or directive
// prefix are returned trimmed.
func CanonicalGuidelineID(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.Fields(strings.ReplaceAll(s, "_", " "))
	if len(fields) != 2 {
		return s
	}
	prefix, ok := guidelinePrefixes[strings.ToLower(fields[0])]
	if !ok {
		return s
	}
	return prefix + " " + fields[1]
}

// ParseGuideline derives type and chapter from a guideline id.
func ParseGuideline(id string) Guideline {
	id = CanonicalGuidelineID(id)
	g := Guideline{ID: id, Type: TypeRule}
	num := id
	switch {
	case strings.HasPrefix(id, "Dir "):
		g.Type = TypeDirective
		num = strings.TrimPrefix(id, "Dir ")
	case strings.HasPrefix(id, "Rule "):
		num = strings.TrimPrefix(id, "Rule ")
	default:
		return g
	}
	head, _, _ := strings.Cut(num, ".")
	if n, err := strconv.Atoi(head); err == nil {
		g.Chapter = n
	}
	return g
}

// GuidelineFilename returns the decision filename for a guideline id.
func GuidelineFilename(id string) string {
	return strings.ReplaceAll(CanonicalGuidelineID(id), " ", "_") + ".json"
}

// GuidelineFromFilename reverses GuidelineFilename. Directory components
// are ignored.
func GuidelineFromFilename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	return CanonicalGuidelineID(strings.ReplaceAll(base, "_", " "))
}

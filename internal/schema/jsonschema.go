package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed decision_file.schema.json
var decisionFileSchema string

var decisionSchema = jsonschema.MustCompileString("decision_file.schema.json", decisionFileSchema)

// CheckDecisionFile validates raw decision file bytes against the decision
// file JSON Schema. Every violation is returned in one *ValidationError.
func CheckDecisionFile(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return &ValidationError{Fields: []FieldError{{Message: fmt.Sprintf("malformed JSON: %v", err)}}}
	}

	err := decisionSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	out := &ValidationError{}
	if m, ok := doc.(map[string]interface{}); ok {
		if id, ok := m["guideline_id"].(string); ok {
			out.GuidelineID = CanonicalGuidelineID(id)
		}
	}
	seen := map[FieldError]bool{}
	for _, leaf := range leaves(verr) {
		fe := FieldError{Path: pointerToPath(leaf.InstanceLocation), Message: leaf.Message}
		if !seen[fe] {
			seen[fe] = true
			out.Fields = append(out.Fields, fe)
		}
	}
	sort.SliceStable(out.Fields, func(i, j int) bool { return out.Fields[i].Path < out.Fields[j].Path })
	return out
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// pointerToPath turns "/all_rust/accepted_matches/0/fls_id" into
// "all_rust.accepted_matches[0].fls_id".
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

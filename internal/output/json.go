package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/merge"
)

// JSONWriter outputs results as indented JSON.
type JSONWriter struct{}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if _, err = w.Write(data); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

func (j *JSONWriter) Extract(w io.Writer, res extract.Result) error { return writeJSON(w, res) }

func (j *JSONWriter) Diff(w io.Writer, v DiffView) error { return writeJSON(w, v) }

func (j *JSONWriter) Merge(w io.Writer, res merge.Result) error { return writeJSON(w, res) }

func (j *JSONWriter) Validation(w io.Writer, v merge.Validation) error {
	return writeJSON(w, struct {
		OK bool `json:"ok"`
		merge.Validation
	}{v.OK(), v})
}

func (j *JSONWriter) Progress(w io.Writer, o batch.Overview) error { return writeJSON(w, o) }

func (j *JSONWriter) Pending(w io.Writer, l aggregate.PendingListing) error { return writeJSON(w, l) }

func (j *JSONWriter) Review(w io.Writer, v ReviewView) error { return writeJSON(w, v) }

func (j *JSONWriter) Report(w io.Writer, r *aggregate.Report) error { return writeJSON(w, r) }

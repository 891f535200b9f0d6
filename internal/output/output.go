package output

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/review"
	"github.com/dshills/flsverify/internal/store"
)

// DiffView is one extracted record with the FLS content of every id it
// mentions.
type DiffView struct {
	Record  compare.Record           `json:"record"`
	Content map[string]store.Content `json:"fls_content,omitempty"`
}

// ReviewView is an outlier analysis with its recomputed status and the
// slots a reviewer still has to fill.
type ReviewView struct {
	Analysis *analysis.OutlierAnalysis `json:"analysis"`
	Status   analysis.Status           `json:"status"`
	Slots    []review.Slot             `json:"slots"`
}

// Writer renders each kind of command result in one format.
type Writer interface {
	Extract(w io.Writer, res extract.Result) error
	Diff(w io.Writer, v DiffView) error
	Merge(w io.Writer, res merge.Result) error
	Validation(w io.Writer, v merge.Validation) error
	Progress(w io.Writer, o batch.Overview) error
	Pending(w io.Writer, l aggregate.PendingListing) error
	Review(w io.Writer, v ReviewView) error
	Report(w io.Writer, r *aggregate.Report) error
}

// Formats lists the supported format names.
var Formats = []string{"text", "json", "markdown"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport renders the attention report to outPath, or to stdout when
// outPath is empty. Files are replaced atomically.
func WriteReport(r *aggregate.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	if outPath == "" {
		return writer.Report(os.Stdout, r)
	}

	var buf bytes.Buffer
	if err := writer.Report(&buf, r); err != nil {
		return err
	}
	if err := store.WriteFileAtomic(outPath, buf.Bytes()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

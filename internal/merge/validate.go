package merge

import (
	"bytes"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/store"
)

// Coverage cross-references decision files with a batch report.
type Coverage struct {
	Total int `json:"total"`
	// Missing lists report guidelines without a valid decision file.
	Missing []string `json:"missing,omitempty"`
	// Unmerged lists guidelines whose decision file differs from the
	// report's recorded decision.
	Unmerged []string `json:"unmerged,omitempty"`
}

// Complete reports whether every guideline has a merged decision.
func (c Coverage) Complete() bool { return len(c.Missing) == 0 && len(c.Unmerged) == 0 }

// Validation is the outcome of a strict, write-free check of a decisions
// directory.
type Validation struct {
	Loaded   Loaded    `json:"-"`
	Issues   []Issue   `json:"issues,omitempty"`
	Coverage *Coverage `json:"coverage,omitempty"`
}

// OK reports whether validation found no errors and full coverage.
func (v Validation) OK() bool {
	return !Fatal(v.Issues) && (v.Coverage == nil || v.Coverage.Complete())
}

// Validate runs the merge checks in strict mode without writing. When
// report is non-nil coverage is computed against it.
func Validate(decisionsDir, glob string, def batch.Definition, report *batch.Report) (Validation, error) {
	loaded, err := LoadDir(decisionsDir, glob, &def, true)
	if err != nil {
		return Validation{}, err
	}
	v := Validation{Loaded: loaded, Issues: loaded.Issues}
	if report == nil {
		return v, nil
	}

	files := map[string]Decision{}
	for _, d := range loaded.Decisions {
		files[d.Record.GuidelineID] = d
	}
	cov := &Coverage{Total: len(report.Guidelines)}
	for _, g := range report.Guidelines {
		d, ok := files[g.GuidelineID]
		if !ok {
			cov.Missing = append(cov.Missing, g.GuidelineID)
			continue
		}
		if g.VerificationDecision == nil {
			cov.Unmerged = append(cov.Unmerged, g.GuidelineID)
			continue
		}
		have, err1 := store.MarshalJSON(g.VerificationDecision)
		want, err2 := store.MarshalJSON(d.Record)
		if err1 != nil || err2 != nil || !bytes.Equal(have, want) {
			cov.Unmerged = append(cov.Unmerged, g.GuidelineID)
		}
	}
	v.Coverage = cov
	return v, nil
}

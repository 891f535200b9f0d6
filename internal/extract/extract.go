package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/schema"
)

// Source names where a batch's decisions were read from.
type Source string

const (
	SourceDecisions Source = "decisions_dir"
	SourceReport    Source = "batch_report"
)

// BatchResult is the outcome of extracting one batch.
type BatchResult struct {
	BatchID  int                    `json:"batch_id"`
	Source   Source                 `json:"source"`
	Records  []compare.Record       `json:"-"`
	Summary  aggregate.BatchSummary `json:"summary"`
	Issues   []merge.Issue          `json:"issues,omitempty"`
	Outliers int                    `json:"outliers"`
}

// Decisions returns the decisions of batch def. Decision files in the
// batch's decisions directory are preferred; when the directory does not
// exist the latest session report is used. Files failing the structural
// checks are reported as issues and left out.
func (p *Project) Decisions(def batch.Definition, glob string) ([]schema.DecisionRecord, Source, []merge.Issue, error) {
	dir := p.Layout.DecisionsDir(def.ID)
	if _, err := os.Stat(dir); err == nil {
		loaded, err := merge.LoadDir(dir, glob, &def, false)
		if err != nil {
			return nil, "", nil, err
		}
		recs := make([]schema.DecisionRecord, len(loaded.Decisions))
		for i, d := range loaded.Decisions {
			recs[i] = d.Record
		}
		return recs, SourceDecisions, loaded.Issues, nil
	}

	rf, ok, err := batch.LatestReport(p.Layout, def.ID)
	if err != nil {
		return nil, "", nil, err
	}
	if !ok {
		return nil, "", nil, fmt.Errorf("batch %d has no decisions directory (%s) and no session report", def.ID, dir)
	}
	var recs []schema.DecisionRecord
	for _, g := range rf.Report.Guidelines {
		if g.Verified() {
			recs = append(recs, *g.VerificationDecision)
		}
	}
	return recs, SourceReport, nil, nil
}

// Batch compares and flags every decision of batch id. Decisions without a
// baseline mapping, and structurally invalid decisions, become issues.
func (p *Project) Batch(id int, glob string) (BatchResult, error) {
	def, err := p.Definition(id)
	if err != nil {
		return BatchResult{}, err
	}
	decisions, src, issues, err := p.Decisions(def, glob)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{BatchID: id, Source: src, Issues: issues}
	for i := range decisions {
		d := &decisions[i]
		file := schema.GuidelineFilename(d.GuidelineID)
		m, ok := p.Mappings.Get(d.GuidelineID)
		if !ok {
			res.Issues = append(res.Issues, merge.Issue{
				File:     file,
				Path:     "guideline_id",
				Message:  fmt.Sprintf("%s has no baseline mapping", d.GuidelineID),
				Kind:     merge.KindConsistency,
				Severity: merge.SeverityError,
			})
			continue
		}
		if p.Catalog != nil {
			if _, ok := p.Catalog.Get(d.GuidelineID); !ok {
				res.Issues = append(res.Issues, merge.Issue{
					File:     file,
					Path:     "guideline_id",
					Message:  fmt.Sprintf("%s is not in the %s catalogue", d.GuidelineID, p.Layout.Standard),
					Kind:     merge.KindConsistency,
					Severity: merge.SeverityWarning,
				})
			}
		}
		var add6 *schema.ADD6Row
		if row, ok := p.ADD6.Get(d.GuidelineID); ok {
			add6 = row
		}
		rec, err := compare.Build(compare.Input{
			Batch:    id,
			Mapping:  &m,
			Decision: d,
			ADD6:     add6,
			Expected: def.ExpectedPattern,
			Sections: p.FLS,
		})
		if err != nil {
			res.Issues = append(res.Issues, issuesFrom(file, err)...)
			continue
		}
		if rec.IsOutlier {
			res.Outliers++
		}
		res.Records = append(res.Records, rec)
	}
	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].GuidelineID < res.Records[j].GuidelineID })
	res.Summary = aggregate.SummarizeBatch(def, res.Records)
	return res, nil
}

func issuesFrom(file string, err error) []merge.Issue {
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return []merge.Issue{{File: file, Message: err.Error(), Kind: merge.KindStructural, Severity: merge.SeverityError}}
	}
	out := make([]merge.Issue, len(verr.Fields))
	for i, f := range verr.Fields {
		out[i] = merge.Issue{File: file, Path: f.Path, Message: f.Message, Kind: merge.KindStructural, Severity: merge.SeverityError}
	}
	return out
}

// Result is the outcome of a multi-batch extraction.
type Result struct {
	Batches []BatchResult        `json:"batches"`
	Cross   aggregate.CrossBatch `json:"cross_batch"`
}

// Run extracts each batch in ids, persists the records and summaries, and
// recomputes the cross-batch summary over every batch extracted so far.
func (p *Project) Run(ids []int, glob string, threshold int) (Result, error) {
	var out Result
	for _, id := range ids {
		res, err := p.Batch(id, glob)
		if err != nil {
			return out, err
		}
		if err := SaveBatch(p.Layout, res); err != nil {
			return out, err
		}
		slog.Info("extracted batch",
			slog.Int("batch", id),
			slog.String("source", string(res.Source)),
			slog.Int("guidelines", len(res.Records)),
			slog.Int("outliers", res.Outliers),
			slog.Int("issues", len(res.Issues)))
		out.Batches = append(out.Batches, res)
	}

	records, err := LoadAllRecords(p.Layout)
	if err != nil {
		return out, err
	}
	summaries, err := LoadSummaries(p.Layout, records)
	if err != nil {
		return out, err
	}
	out.Cross = aggregate.Summarize(records, summaries, threshold)
	if err := writeJSON(p.Layout.CrossBatchSummaryFile(), out.Cross); err != nil {
		return out, err
	}
	return out, nil
}

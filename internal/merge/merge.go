package merge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/store"
)

// Options control a merge.
type Options struct {
	// Glob selects decision files; DefaultGlob when empty.
	Glob string
	// Strict makes consistency issues fatal.
	Strict bool
	// ValidOnly merges the valid subset despite errors.
	ValidOnly bool
	// DryRun computes the merged report but never writes it.
	DryRun bool
	// Scaffold builds the report when reportPath does not exist yet. The
	// scaffold is only written together with the merged decisions.
	Scaffold func() *batch.Report
}

// Result describes one merge run.
type Result struct {
	Merged  []string      `json:"merged"`
	Skipped []string      `json:"skipped,omitempty"`
	Issues  []Issue       `json:"issues,omitempty"`
	Summary batch.Summary `json:"summary"`
	Changed bool          `json:"changed"`
	Written bool          `json:"written"`
	Created bool          `json:"created,omitempty"`
}

// Apply folds decisions into r and recomputes its summary. Applicability
// proposals are upserted by (guideline_id, field) with approval pending;
// a proposal identical to the recorded one keeps its approval. The
// returned slice names decisions whose guideline has no slot in r.
func Apply(r *batch.Report, decisions []Decision) (merged, skipped []string) {
	changes := map[[2]string]batch.ApplicabilityChange{}
	for _, c := range r.ApplicabilityChanges {
		changes[[2]string{c.GuidelineID, c.Field}] = c
	}

	for _, d := range decisions {
		rec := d.Record
		idx := r.Index(rec.GuidelineID)
		if idx < 0 {
			skipped = append(skipped, rec.GuidelineID)
			continue
		}
		r.Guidelines[idx].VerificationDecision = &rec
		merged = append(merged, rec.GuidelineID)

		p := rec.ProposedApplicabilityChange
		if p == nil {
			continue
		}
		key := [2]string{rec.GuidelineID, p.Field}
		next := batch.ApplicabilityChange{
			GuidelineID:   rec.GuidelineID,
			Field:         p.Field,
			CurrentValue:  p.CurrentValue,
			ProposedValue: p.ProposedValue,
			Rationale:     p.Rationale,
		}
		if prev, ok := changes[key]; ok && sameProposal(prev, next) {
			next.Approved = prev.Approved
		}
		changes[key] = next
	}

	r.ApplicabilityChanges = make([]batch.ApplicabilityChange, 0, len(changes))
	for _, c := range changes {
		r.ApplicabilityChanges = append(r.ApplicabilityChanges, c)
	}
	sort.Slice(r.ApplicabilityChanges, func(i, j int) bool {
		a, b := r.ApplicabilityChanges[i], r.ApplicabilityChanges[j]
		if a.GuidelineID != b.GuidelineID {
			return a.GuidelineID < b.GuidelineID
		}
		return a.Field < b.Field
	})
	r.Recompute()
	sort.Strings(merged)
	return merged, skipped
}

func sameProposal(a, b batch.ApplicabilityChange) bool {
	return a.CurrentValue == b.CurrentValue && a.ProposedValue == b.ProposedValue && a.Rationale == b.Rationale
}

// Run merges the decision files in decisionsDir into the report at
// reportPath. When any issue is an error nothing is written and *Aborted
// is returned, unless opts.ValidOnly is set. An unchanged report is not
// rewritten. Cancelling ctx stops the run before the report is written.
func Run(ctx context.Context, reportPath, decisionsDir string, def batch.Definition, opts Options) (Result, error) {
	report, created, err := openReport(reportPath, opts.Scaffold)
	if err != nil {
		return Result{}, err
	}
	var before []byte
	if !created {
		if before, err = report.Encode(); err != nil {
			return Result{}, err
		}
	}

	loaded, err := LoadDir(decisionsDir, opts.Glob, &def, opts.Strict)
	if err != nil {
		return Result{}, err
	}
	res := Result{Issues: loaded.Issues}
	if Fatal(loaded.Issues) && !opts.ValidOnly {
		return res, &Aborted{Issues: loaded.Issues}
	}

	res.Merged, res.Skipped = Apply(report, loaded.Decisions)
	res.Summary = report.Summary
	after, err := report.Encode()
	if err != nil {
		return res, err
	}
	res.Changed = !bytes.Equal(before, after)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if opts.DryRun || !res.Changed {
		return res, nil
	}
	if err := store.WriteFileAtomic(reportPath, after); err != nil {
		return res, err
	}
	res.Written = true
	res.Created = created
	slog.Info("merged decisions",
		slog.String("report", reportPath),
		slog.Bool("created", created),
		slog.Int("merged", len(res.Merged)),
		slog.Int("issues", len(res.Issues)))
	return res, nil
}

func openReport(path string, scaffold func() *batch.Report) (*batch.Report, bool, error) {
	if scaffold != nil && !store.Exists(path) {
		return scaffold(), true, nil
	}
	r, err := batch.LoadReport(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w (run `flsverify progress` to find the session report)", err)
	}
	return r, false, nil
}

package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flsverify/internal/batch"
)

func decisionJSON(id, flsID, reason string) string {
	return `{
  "guideline_id": "` + id + `",
  "schema_version": "3.0",
  "all_rust": {
    "applicability": "direct",
    "decision": "accept_with_modifications",
    "accepted_matches": [{"fls_id": "` + flsID + `", "category": -2, "score": 0.8, "reason": "` + reason + `"}],
    "search_tools_used": [{"tool": "search-fls", "query": "integer types"}]
  },
  "safe_rust": {
    "applicability": "direct",
    "decision": "accept_with_modifications",
    "accepted_matches": [],
    "search_tools_used": [{"tool": "search-fls", "query": "integer types"}]
  },
  "recorded_at": "2026-03-01T10:00:00Z"
}`
}

const proposal = `,
  "proposed_applicability_change": {
    "field": "applicability_safe_rust",
    "current_value": "direct",
    "proposed_value": "not_applicable",
    "rationale": "safe Rust rejects the construct"
  }
}`

func withProposal(doc string) string {
	return strings.TrimSuffix(doc, "\n}") + proposal
}

type fixture struct {
	dir, decisions, report string
	def                    batch.Definition
}

func setup(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:       dir,
		decisions: filepath.Join(dir, "batch1_decisions"),
		report:    filepath.Join(dir, "batch1_session1.json"),
		def:       batch.Definition{ID: 1, Guidelines: []string{"Rule 10.1", "Rule 10.2", "Rule 10.3"}},
	}
	require.NoError(t, os.MkdirAll(f.decisions, 0o755))
	r := batch.NewReport(f.def, 1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, r.Save(f.report))
	return f
}

func (f fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.decisions, name), []byte(content), 0o644))
}

func TestMergeIsIdempotent(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	f.write(t, "Rule_10.2.json", withProposal(decisionJSON("Rule 10.2", "fls_bcdefghijk", "char arithmetic")))

	res, err := Run(context.Background(), f.report, f.decisions, f.def, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rule 10.1", "Rule 10.2"}, res.Merged)
	assert.True(t, res.Written)
	assert.Equal(t, batch.Summary{TotalGuidelines: 3, VerifiedCount: 2, ApplicabilityChangesProposed: 1}, res.Summary)
	first, err := os.ReadFile(f.report)
	require.NoError(t, err)

	res, err = Run(context.Background(), f.report, f.decisions, f.def, Options{})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	second, err := os.ReadFile(f.report)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestMergeDuplicate(t *testing.T) {
	f := setup(t)
	doc := decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types")
	f.write(t, "Rule_10.1.json", doc)
	f.write(t, "Rule_10.1_copy.json", doc)
	f.write(t, "Rule_10.2.json", decisionJSON("Rule 10.2", "fls_bcdefghijk", "char arithmetic"))

	before, err := os.ReadFile(f.report)
	require.NoError(t, err)

	_, err = Run(context.Background(), f.report, f.decisions, f.def, Options{})
	var aborted *Aborted
	require.True(t, errors.As(err, &aborted))

	var dups []Issue
	for _, i := range aborted.Issues {
		if i.Kind == KindDuplicate {
			dups = append(dups, i)
		}
	}
	require.Len(t, dups, 1)
	assert.Contains(t, dups[0].Message, "Rule_10.1.json")
	assert.Contains(t, dups[0].Message, "Rule_10.1_copy.json")

	after, err := os.ReadFile(f.report)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "aborted merge writes nothing")

	res, err := Run(context.Background(), f.report, f.decisions, f.def, Options{ValidOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rule 10.2"}, res.Merged)
}

func TestDuplicateSurvivesStrictFilenameCheck(t *testing.T) {
	f := setup(t)
	doc := decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types")
	f.write(t, "Rule_10.1.json", doc)
	f.write(t, "renamed.json", doc)

	loaded, err := LoadDir(f.decisions, "", &f.def, true)
	require.NoError(t, err)
	assert.Empty(t, loaded.Decisions)
	kinds := map[Kind]int{}
	for _, i := range loaded.Issues {
		kinds[i.Kind]++
	}
	assert.Equal(t, map[Kind]int{KindDuplicate: 1, KindConsistency: 1}, kinds)
}

func TestStructuralIssuesNameFieldPaths(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_bad", ""))
	f.write(t, "Rule_10.2.json", `{"guideline_id": `)

	loaded, err := LoadDir(f.decisions, "", &f.def, false)
	require.NoError(t, err)
	assert.Empty(t, loaded.Decisions)

	var paths []string
	for _, i := range loaded.Issues {
		assert.Equal(t, KindStructural, i.Kind)
		if i.File == "Rule_10.1.json" {
			paths = append(paths, i.Path)
		}
	}
	assert.Contains(t, paths, "all_rust.accepted_matches[0].fls_id")
	assert.Contains(t, paths, "all_rust.accepted_matches[0].reason")
}

func TestDecisionKindRequired(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	undecided := strings.ReplaceAll(decisionJSON("Rule 10.2", "fls_bcdefghijk", "char arithmetic"),
		`"decision": "accept_with_modifications",`, "")
	f.write(t, "Rule_10.2.json", undecided)

	loaded, err := LoadDir(f.decisions, "", &f.def, false)
	require.NoError(t, err)
	require.Len(t, loaded.Decisions, 1)
	assert.Equal(t, "Rule 10.1", loaded.Decisions[0].Record.GuidelineID)
	require.NotEmpty(t, loaded.Issues)
	mentioned := false
	for _, i := range loaded.Issues {
		assert.Equal(t, "Rule_10.2.json", i.File)
		assert.Equal(t, SeverityError, i.Severity)
		if strings.Contains(i.Path+" "+i.Message, "decision") {
			mentioned = true
		}
	}
	assert.True(t, mentioned, "issues should name the missing decision: %v", loaded.Issues)

	_, err = Run(context.Background(), f.report, f.decisions, f.def, Options{})
	var aborted *Aborted
	assert.ErrorAs(t, err, &aborted)
}

func TestLenientFilenameMismatchIsWarning(t *testing.T) {
	f := setup(t)
	f.write(t, "rule-10-1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	f.write(t, "Rule_9.1.json", decisionJSON("Rule 9.1", "fls_abcdefghij", "init"))

	res, err := Run(context.Background(), f.report, f.decisions, f.def, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rule 10.1"}, res.Merged)
	require.Len(t, res.Issues, 2)
	for _, i := range res.Issues {
		assert.Equal(t, SeverityWarning, i.Severity)
	}

	_, err = Run(context.Background(), f.report, f.decisions, f.def, Options{Strict: true})
	var aborted *Aborted
	assert.ErrorAs(t, err, &aborted)
}

func TestApplyKeepsApprovalOfUnchangedProposal(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.2.json", withProposal(decisionJSON("Rule 10.2", "fls_bcdefghijk", "char arithmetic")))
	loaded, err := LoadDir(f.decisions, "", &f.def, false)
	require.NoError(t, err)

	r, err := batch.LoadReport(f.report)
	require.NoError(t, err)
	Apply(r, loaded.Decisions)
	require.Len(t, r.ApplicabilityChanges, 1)
	assert.Nil(t, r.ApplicabilityChanges[0].Approved)

	yes := true
	r.ApplicabilityChanges[0].Approved = &yes
	Apply(r, loaded.Decisions)
	require.NotNil(t, r.ApplicabilityChanges[0].Approved)
	assert.True(t, *r.ApplicabilityChanges[0].Approved)
	assert.Equal(t, 1, r.Summary.ApplicabilityChangesApproved)

	loaded.Decisions[0].Record.ProposedApplicabilityChange.ProposedValue = "partial"
	Apply(r, loaded.Decisions)
	assert.Nil(t, r.ApplicabilityChanges[0].Approved, "a changed proposal needs fresh approval")
	assert.Equal(t, 0, r.Summary.ApplicabilityChangesApproved)
}

func TestRunDryRunAndCancel(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	before, err := os.ReadFile(f.report)
	require.NoError(t, err)

	res, err := Run(context.Background(), f.report, f.decisions, f.def, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Written)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, f.report, f.decisions, f.def, Options{})
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(f.report)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestScaffoldWrittenOnlyWithMerge(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	path := filepath.Join(f.dir, "batch1_session2.json")
	calls := 0
	opts := Options{Scaffold: func() *batch.Report {
		calls++
		return batch.NewReport(f.def, 2, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	}}

	dry := opts
	dry.DryRun = true
	res, err := Run(context.Background(), path, f.decisions, f.def, dry)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Written)
	assert.NoFileExists(t, path)

	f.write(t, "Rule_10.1_copy.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	_, err = Run(context.Background(), path, f.decisions, f.def, opts)
	var aborted *Aborted
	require.ErrorAs(t, err, &aborted)
	assert.NoFileExists(t, path)

	require.NoError(t, os.Remove(filepath.Join(f.decisions, "Rule_10.1_copy.json")))
	res, err = Run(context.Background(), path, f.decisions, f.def, opts)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.True(t, res.Created)
	assert.Equal(t, 3, calls)

	r, err := batch.LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.SessionID)
	assert.Equal(t, 1, r.Summary.VerifiedCount)

	res, err = Run(context.Background(), path, f.decisions, f.def, opts)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)
	assert.Equal(t, 3, calls, "an existing report is never rebuilt")
}

func TestValidateCoverage(t *testing.T) {
	f := setup(t)
	f.write(t, "Rule_10.1.json", decisionJSON("Rule 10.1", "fls_abcdefghij", "operand types"))
	_, err := Run(context.Background(), f.report, f.decisions, f.def, Options{})
	require.NoError(t, err)
	f.write(t, "Rule_10.2.json", decisionJSON("Rule 10.2", "fls_bcdefghijk", "char arithmetic"))

	r, err := batch.LoadReport(f.report)
	require.NoError(t, err)
	v, err := Validate(f.decisions, "", f.def, r)
	require.NoError(t, err)
	require.NotNil(t, v.Coverage)
	assert.Equal(t, []string{"Rule 10.3"}, v.Coverage.Missing)
	assert.Equal(t, []string{"Rule 10.2"}, v.Coverage.Unmerged)
	assert.False(t, v.OK())
}

package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/standard"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const mappingFile = `{
  "standard": "misra-c",
  "mappings": [
    {
      "guideline_id": "Rule 10.1",
      "all_rust": {"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
        "accepted_matches": [{"fls_id": "fls_abc1234567", "category": 0, "score": 0.7, "reason": "operand types"}]},
      "safe_rust": {"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
        "accepted_matches": [{"fls_id": "fls_abc1234567", "category": 0, "score": 0.7, "reason": "operand types"}]}
    },
    {
      "guideline_id": "Rule 10.2",
      "all_rust": {"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
        "accepted_matches": [{"fls_id": "fls_def1234567", "category": 0, "score": 0.8, "reason": "character types"}]},
      "safe_rust": {"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
        "accepted_matches": [{"fls_id": "fls_def1234567", "category": 0, "score": 0.8, "reason": "character types"}]}
    }
  ]
}`

const batchesFile = `
standard: misra-c
batches:
  - id: 1
    name: Direct mappings
    expected_pattern:
      all_rust:
        applicability: direct
    guidelines: [Rule 10.1, Rule 10.2]
`

const add6File = `{"guidelines": {
  "Rule 10.1": {"applicability_all_rust": "Yes", "applicability_safe_rust": "Yes", "adjusted_category": "required"},
  "Rule 10.2": {"applicability_all_rust": "Yes", "applicability_safe_rust": "Yes", "adjusted_category": "required"}
}}`

func contextJSON(matches string) string {
	return `{"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
    "decision": "accept_with_modifications", "analysis_summary": "checked",
    "search_tools_used": [{"tool": "search-fls", "query": "essential type"}],
    "accepted_matches": [` + matches + `]}`
}

func decisionJSON(id, all, safe string) string {
	return `{"guideline_id": "` + id + `", "schema_version": "3.0", "all_rust": ` + contextJSON(all) + `, "safe_rust": ` + contextJSON(safe) + `}`
}

func setup(t *testing.T) standard.Layout {
	t.Helper()
	layout := standard.NewLayout(t.TempDir(), standard.MisraC)
	writeFile(t, layout.MappingFile(), mappingFile)
	writeFile(t, layout.BatchesFile(), batchesFile)
	writeFile(t, layout.ADD6File(), add6File)

	abc := `{"fls_id": "fls_abc1234567", "category": 0, "score": 0.7, "reason": "operand types"}`
	xyz := `{"fls_id": "fls_xyz7654321", "category": -2, "score": 0.6, "reason": "legality rule on operands"}`
	def := `{"fls_id": "fls_def1234567", "category": 0, "score": 0.8, "reason": "character types"}`
	dir := layout.DecisionsDir(1)
	writeFile(t, filepath.Join(dir, "Rule_10.1.json"), decisionJSON("Rule 10.1", xyz, abc))
	writeFile(t, filepath.Join(dir, "Rule_10.2.json"), decisionJSON("Rule 10.2", def, def))
	return layout
}

func TestRun(t *testing.T) {
	layout := setup(t)
	p, err := Open(layout, nil)
	require.NoError(t, err)

	res, err := p.Run([]int{1}, "", 2)
	require.NoError(t, err)
	require.Len(t, res.Batches, 1)

	b := res.Batches[0]
	assert.Equal(t, SourceDecisions, b.Source)
	assert.Empty(t, b.Issues)
	require.Len(t, b.Records, 2)
	assert.Equal(t, 1, b.Outliers)

	changed := b.Records[0]
	assert.Equal(t, "Rule 10.1", changed.GuidelineID)
	assert.Equal(t, []string{"fls_xyz7654321"}, changed.Comparison.AllRust.FLSAdded)
	assert.Equal(t, []string{"fls_abc1234567"}, changed.Comparison.AllRust.FLSRemoved)
	assert.Empty(t, changed.Comparison.AllRust.FLSRetained)
	assert.True(t, changed.Flags.FLSAdded)
	assert.True(t, changed.Flags.FLSRemoved)
	assert.True(t, changed.IsOutlier)

	same := b.Records[1]
	assert.False(t, same.IsOutlier)
	assert.Empty(t, same.ActiveFlags)

	assert.Equal(t, 2, res.Cross.TotalGuidelines)
	assert.FileExists(t, layout.BatchSummaryFile(1))
	assert.FileExists(t, layout.CrossBatchSummaryFile())

	got, err := LoadRecord(layout, "rule 10.1", 0)
	require.NoError(t, err)
	assert.Equal(t, changed.Comparison.AllRust.ComparisonID, got.Comparison.AllRust.ComparisonID)
	assert.Equal(t, changed.Flags, got.Flags)
}

func TestRunIsRepeatable(t *testing.T) {
	layout := setup(t)
	p, err := Open(layout, nil)
	require.NoError(t, err)

	_, err = p.Run([]int{1}, "", 2)
	require.NoError(t, err)
	path := filepath.Join(layout.ComparisonDir(1), "Rule_10.1.json")
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	stale := filepath.Join(layout.ComparisonDir(1), "Rule_9.9.json")
	writeFile(t, stale, `{}`)

	_, err = p.Run([]int{1}, "", 2)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.NoFileExists(t, stale)
}

func TestBatchReportsUnmappedAndInvalid(t *testing.T) {
	layout := setup(t)
	dir := layout.DecisionsDir(1)
	require.NoError(t, os.Remove(filepath.Join(dir, "Rule_10.2.json")))
	writeFile(t, filepath.Join(dir, "Rule_10.2.json"), `{"guideline_id": "Rule 10.2", "all_rust": {"applicability": "direct",
  "accepted_matches": [{"fls_id": "bogus", "category": 0, "score": 1.5, "reason": ""}]}, "safe_rust": {"applicability": "direct", "accepted_matches": []}}`)

	p, err := Open(layout, nil)
	require.NoError(t, err)
	res, err := p.Batch(1, "")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.NotEmpty(t, res.Issues)
	for _, i := range res.Issues {
		assert.Equal(t, "Rule_10.2.json", i.File)
	}
}

func TestBatchFallsBackToReport(t *testing.T) {
	layout := setup(t)
	require.NoError(t, os.RemoveAll(layout.DecisionsDir(1)))

	p, err := Open(layout, nil)
	require.NoError(t, err)
	_, err = p.Batch(1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session report")
}

func TestLoadRecordMissing(t *testing.T) {
	layout := standard.NewLayout(t.TempDir(), standard.MisraC)
	_, err := LoadRecord(layout, "Rule 1.1", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoComparison))
	assert.Contains(t, err.Error(), "flsverify extract --batches 3")
}

func TestUndefinedBatch(t *testing.T) {
	p, err := Open(setup(t), nil)
	require.NoError(t, err)
	_, err = p.Batch(7, "")
	assert.Error(t, err)
}

func TestBatchWarnsOutsideCatalogue(t *testing.T) {
	layout := setup(t)
	writeFile(t, layout.DefinitionsFile(), `{"categories": [{"name": "Required", "guidelines": [
  {"id": "Rule 10.1", "title": "Operands shall not be of an inappropriate essential type", "guideline_type": "rule"}
]}]}`)

	p, err := Open(layout, nil)
	require.NoError(t, err)
	require.NotNil(t, p.Catalog)
	res, err := p.Batch(1, "")
	require.NoError(t, err)

	assert.Len(t, res.Records, 2, "catalogue misses are warnings only")
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "Rule_10.2.json", res.Issues[0].File)
	assert.Equal(t, merge.SeverityWarning, res.Issues[0].Severity)
}

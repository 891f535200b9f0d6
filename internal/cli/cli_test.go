package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/config"
	"github.com/dshills/flsverify/internal/decision"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/review"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/standard"
)

// resetFlags resets all package-level flag variables to their zero values.
func resetFlags() {
	flagRoot = ""
	flagStandard = ""
	flagFormat = ""
	flagVerbose = false
	flagBatches = ""
	flagThreshold = 0
	flagDiffBatch = 0
	flagPendingFlag = ""
	flagPendingBatch = 0
	flagPendingNeedsAnalysis = false
	flagPendingNeedsReview = false
	flagAnalyzeBatch = 0
	flagSummary = ""
	flagRecommendation = ""
	flagRemovals = nil
	flagAdditions = nil
	flagRoutinePattern = ""
	flagAnalyzeNotes = ""
	flagForce = false
	flagAnalyzeValidate = false
	for _, p := range flagAspectVerdicts {
		*p = ""
	}
	for _, p := range flagAspectReasonings {
		*p = ""
	}
	flagReviewAspect = ""
	flagReviewFLSID = ""
	flagReviewContext = "both"
	flagReviewDecision = ""
	flagReviewReason = ""
	flagYes = false
	flagMergeBatch = 0
	flagMergeSession = 0
	flagMergeValidate = false
	flagValidOnly = false
	flagDryRun = false
	flagGlob = ""
	flagWatch = false
	flagValidateSession = 0
	flagDecisionBatch = 0
	flagDecisionDryRun = false
	flagRecordContext = "both"
	flagRecordDecision = ""
	flagRecordApplic = ""
	flagRecordRationale = ""
	flagRecordConf = ""
	flagRecordCategory = ""
	flagRecordSummary = ""
	flagRecordNotes = ""
	flagRecordChange = ""
	flagAcceptMatches = nil
	flagRejectMatches = nil
	flagSearches = nil
	flagWaiver = ""
	flagResetSession = 0
	flagResetGuidelines = ""
	flagRemediateID = ""
	flagListMissing = false
	flagReportOut = ""
	flagReportStdout = false
	exitCode = ExitSuccess
}

// execute runs the root command with args and returns the exit code Run
// would return.
func execute(t *testing.T, args ...string) int {
	t.Helper()
	registerCommands()
	resetFlags()
	interactive = func() bool { return false }
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return ExitUsageError
	}
	return exitCode
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func entryJSON(matches string) string {
	return `{"applicability": "direct", "adjusted_category": "required", "rationale_type": "direct_mapping",
    "decision": "accept_with_modifications", "analysis_summary": "checked",
    "search_tools_used": [{"tool": "search-fls", "query": "essential type"}],
    "accepted_matches": [` + matches + `]}`
}

const (
	matchABC = `{"fls_id": "fls_abc1234567", "category": 0, "score": 0.7, "reason": "operand types"}`
	matchXYZ = `{"fls_id": "fls_xyz7654321", "category": -2, "score": 0.6, "reason": "legality rule on operands"}`
	matchDEF = `{"fls_id": "fls_def1234567", "category": 0, "score": 0.8, "reason": "character types"}`
)

// setupProject lays out a misra-c project with one batch of two guidelines.
// Rule 10.1 swaps fls_abc1234567 for fls_xyz7654321 in all_rust; Rule 10.2
// matches the mapping.
func setupProject(t *testing.T) standard.Layout {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache-home"))

	layout := standard.NewLayout(filepath.Join(tmp, "project"), standard.MisraC)
	mapping := func(id, m string) string {
		return `{"guideline_id": "` + id + `", "all_rust": ` + entryJSON(m) + `, "safe_rust": ` + entryJSON(m) + `}`
	}
	writeFile(t, layout.MappingFile(), `{"standard": "misra-c", "mappings": [`+
		mapping("Rule 10.1", matchABC)+`, `+mapping("Rule 10.2", matchDEF)+`]}`)
	writeFile(t, layout.BatchesFile(), `
standard: misra-c
batches:
  - id: 1
    name: Direct mappings
    expected_pattern:
      all_rust:
        applicability: direct
    guidelines: [Rule 10.1, Rule 10.2]
`)
	writeFile(t, layout.ADD6File(), `{"guidelines": {
  "Rule 10.1": {"applicability_all_rust": "Yes", "applicability_safe_rust": "Yes", "adjusted_category": "required"},
  "Rule 10.2": {"applicability_all_rust": "Yes", "applicability_safe_rust": "Yes", "adjusted_category": "required"}
}}`)

	decision := func(id, all, safe string) string {
		return `{"guideline_id": "` + id + `", "schema_version": "3.0", "all_rust": ` + entryJSON(all) + `, "safe_rust": ` + entryJSON(safe) + `}`
	}
	dir := layout.DecisionsDir(1)
	writeFile(t, filepath.Join(dir, "Rule_10.1.json"), decision("Rule 10.1", matchXYZ, matchABC))
	writeFile(t, filepath.Join(dir, "Rule_10.2.json"), decision("Rule 10.2", matchDEF, matchDEF))
	return layout
}

// analyzeArgs is a complete analysis of Rule 10.1.
func analyzeArgs(root string) []string {
	return []string{"--root", root, "analyze", "Rule 10.1",
		"--summary", "Swaps a section for a legality paragraph",
		"--recommendation", "accept",
		"--fls_removals", "appropriate", "--fls_removals-reasoning", "section was too broad",
		"--fls_additions", "appropriate", "--fls_additions-reasoning", "paragraph is the actual rule",
		"--removal", "fls_abc1234567:all_rust:covered by the legality rule",
		"--addition", "fls_xyz7654321:all_rust:states the operand restriction",
	}
}

// --- splitComma tests ---

func TestSplitComma(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty string", "", nil},
		{"single value", "foo", []string{"foo"}},
		{"multiple values", "a,b,c", []string{"a", "b", "c"}},
		{"whitespace trimmed", " a , b , c ", []string{"a", "b", "c"}},
		{"empty parts skipped", "a,,b", []string{"a", "b"}},
		{"all empty", ",,,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitComma(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("splitComma(%q) = %v (len %d), want %v (len %d)",
					tt.input, got, len(got), tt.want, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitComma(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// --- parseBatchIDs tests ---

func TestParseBatchIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{"1", []int{1}, false},
		{"1,3", []int{1, 3}, false},
		{"2-4", []int{2, 3, 4}, false},
		{"1,2-3,2", []int{1, 2, 3}, false},
		{" 5 , 6 ", []int{5, 6}, false},
		{"0", nil, true},
		{"x", nil, true},
		{"4-2", nil, true},
		{"1-", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseBatchIDs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseBatchIDs(%q) = %v, want error", tt.input, got)
				}
				if !errors.Is(err, errUsage) {
					t.Errorf("error %v is not a usage error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBatchIDs(%q) error: %v", tt.input, err)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("parseBatchIDs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// --- buildOverrides tests ---

func TestBuildOverrides_NoFlags(t *testing.T) {
	resetFlags()
	if m := buildOverrides(); len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}
}

func TestBuildOverrides_AllFlags(t *testing.T) {
	resetFlags()
	flagRoot = "/data/fls"
	flagStandard = "cert-c"
	flagFormat = "json"
	flagVerbose = true

	m := buildOverrides()
	expected := map[string]string{
		"root":     "/data/fls",
		"standard": "cert-c",
		"format":   "json",
		"logLevel": "debug",
	}
	if len(m) != len(expected) {
		t.Fatalf("buildOverrides() returned %d entries, want %d", len(m), len(expected))
	}
	for k, v := range expected {
		if m[k] != v {
			t.Errorf("buildOverrides()[%q] = %q, want %q", k, m[k], v)
		}
	}
}

// --- classify tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"incomplete analysis", fmt.Errorf("wrapped: %w", &analysis.IncompleteError{GuidelineID: "Rule 1.1"}), ExitIncomplete},
		{"aborted merge", &merge.Aborted{}, ExitFindings},
		{"stray justification", &analysis.InconsistentError{GuidelineID: "Rule 1.1"}, ExitFindings},
		{"wrong batch", fmt.Errorf("record: %w", &decision.MembershipError{GuidelineID: "Rule 1.1", Batch: 1}), ExitFindings},
		{"no decision file", fmt.Errorf("Rule 1.1: %w", decision.ErrNoDecision), ExitUsageError},
		{"already reviewed", fmt.Errorf("Rule 1.1: %w", review.ErrAlreadyReviewed), ExitUsageError},
		{"nothing to review", review.ErrNotFound, ExitUsageError},
		{"analysis exists", analysis.ErrExists, ExitUsageError},
		{"usage", usagef("bad %s", "flag"), ExitUsageError},
		{"anything else", errors.New("disk full"), ExitRuntimeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// --- version command ---

func TestVersionCmd_Execute(t *testing.T) {
	if code := execute(t, "version"); code != ExitSuccess {
		t.Errorf("version exit code = %d, want %d", code, ExitSuccess)
	}
}

// --- end-to-end workflow ---

func TestWorkflow_ExtractAnalyzeReview(t *testing.T) {
	layout := setupProject(t)
	root := layout.Root

	if code := execute(t, "--root", root, "extract"); code != ExitSuccess {
		t.Fatalf("extract exit code = %d, want %d", code, ExitSuccess)
	}
	if _, err := os.Stat(filepath.Join(layout.ComparisonDir(1), "Rule_10.1.json")); err != nil {
		t.Fatalf("extract did not write comparison data: %v", err)
	}

	if code := execute(t, "--root", root, "diff", "Rule 10.1"); code != ExitSuccess {
		t.Errorf("diff exit code = %d, want %d", code, ExitSuccess)
	}
	if code := execute(t, "--root", root, "diff", "Rule 99.9"); code != ExitRuntimeError {
		t.Errorf("diff of unknown guideline exit code = %d, want %d", code, ExitRuntimeError)
	}
	if code := execute(t, "--root", root, "pending", "--needs-analysis"); code != ExitSuccess {
		t.Errorf("pending exit code = %d, want %d", code, ExitSuccess)
	}

	// Missing justifications leave nothing on disk.
	code := execute(t, "--root", root, "analyze", "Rule 10.1", "--summary", "s", "--recommendation", "accept")
	if code != ExitIncomplete {
		t.Fatalf("incomplete analyze exit code = %d, want %d", code, ExitIncomplete)
	}
	if _, err := os.Stat(analysis.Path(layout, "Rule 10.1")); !os.IsNotExist(err) {
		t.Fatal("incomplete analysis was written")
	}

	if code := execute(t, "--root", root, "analyze", "Rule 10.2", "--summary", "s", "--recommendation", "accept"); code != ExitUsageError {
		t.Errorf("analyze of non-outlier exit code = %d, want %d", code, ExitUsageError)
	}

	// Rule 10.1 keeps fls_abc1234567 in safe_rust, so this justification is stray.
	stray := append(analyzeArgs(root), "--validate", "--removal", "fls_abc1234567:safe_rust:not removed here")
	if code := execute(t, stray...); code != ExitFindings {
		t.Errorf("strict analyze with stray justification exit code = %d, want %d", code, ExitFindings)
	}
	if _, err := os.Stat(analysis.Path(layout, "Rule 10.1")); !os.IsNotExist(err) {
		t.Fatal("inconsistent analysis was written")
	}

	if code := execute(t, analyzeArgs(root)...); code != ExitSuccess {
		t.Fatalf("analyze exit code = %d, want %d", code, ExitSuccess)
	}
	if code := execute(t, analyzeArgs(root)...); code != ExitUsageError {
		t.Errorf("second analyze without --force exit code = %d, want %d", code, ExitUsageError)
	}

	code = execute(t, "--root", root, "review", "decide", "Rule 10.1",
		"--aspect", "fls_removals", "--fls-id", "fls_abc1234567", "--context", "all_rust",
		"--decision", "accept", "--reason", "agreed")
	if code != ExitSuccess {
		t.Fatalf("review decide exit code = %d, want %d", code, ExitSuccess)
	}
	a, err := analysis.Load(layout, "Rule 10.1")
	if err != nil {
		t.Fatal(err)
	}
	if got := review.ComputeStatus(a); got != analysis.StatusPartial {
		t.Errorf("status after one ruling = %s, want %s", got, analysis.StatusPartial)
	}

	if code := execute(t, "--root", root, "review", "accept-all", "Rule 10.1"); code != ExitSuccess {
		t.Fatalf("accept-all exit code = %d, want %d", code, ExitSuccess)
	}
	a, err = analysis.Load(layout, "Rule 10.1")
	if err != nil {
		t.Fatal(err)
	}
	if got := review.ComputeStatus(a); got != analysis.StatusFullyReviewed {
		t.Errorf("status after accept-all = %s, want %s", got, analysis.StatusFullyReviewed)
	}

	st, err := review.LoadState(layout.ReviewStateFile())
	if err != nil {
		t.Fatal(err)
	}
	if st.Summary.FullyReviewed != 1 || st.Summary.TotalOutliers != 1 {
		t.Errorf("review state summary = %+v, want 1 of 1 fully reviewed", st.Summary)
	}

	// Re-review without confirmation is refused when there is no terminal.
	code = execute(t, "--root", root, "review", "decide", "Rule 10.1",
		"--aspect", "fls_additions", "--fls-id", "fls_xyz7654321", "--decision", "reject", "--reason", "no")
	if code != ExitUsageError {
		t.Errorf("unconfirmed re-review exit code = %d, want %d", code, ExitUsageError)
	}
	code = execute(t, "--root", root, "review", "decide", "Rule 10.1", "--yes",
		"--aspect", "fls_additions", "--fls-id", "fls_xyz7654321", "--decision", "reject", "--reason", "no")
	if code != ExitSuccess {
		t.Errorf("confirmed re-review exit code = %d, want %d", code, ExitSuccess)
	}

	out := filepath.Join(t.TempDir(), "report.json")
	if code := execute(t, "--root", root, "--format", "json", "report", "--out", out); code != ExitSuccess {
		t.Fatalf("report exit code = %d, want %d", code, ExitSuccess)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var parsed struct {
		Totals struct {
			Outliers int `json:"outliers"`
			Analyzed int `json:"analyzed"`
		} `json:"totals"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if parsed.Totals.Outliers != 1 || parsed.Totals.Analyzed != 1 {
		t.Errorf("report totals = %+v, want 1 outlier analyzed", parsed.Totals)
	}
}

func TestReviewBulkRules(t *testing.T) {
	layout := setupProject(t)
	root := layout.Root
	if code := execute(t, "--root", root, "extract"); code != ExitSuccess {
		t.Fatalf("extract exit code = %d", code)
	}
	if code := execute(t, analyzeArgs(root)...); code != ExitSuccess {
		t.Fatalf("analyze exit code = %d", code)
	}

	code := execute(t, "--root", root, "review", "bulk", "--aspect", "fls_removals",
		"--fls-id", "fls_abc1234567", "--reason", "section ids are replaced project-wide")
	if code != ExitSuccess {
		t.Fatalf("review bulk exit code = %d, want %d", code, ExitSuccess)
	}
	if code := execute(t, "--root", root, "review", "apply-bulk"); code != ExitSuccess {
		t.Fatalf("apply-bulk exit code = %d, want %d", code, ExitSuccess)
	}

	a, err := analysis.Load(layout, "Rule 10.1")
	if err != nil {
		t.Fatal(err)
	}
	pending := review.Pending(a)
	if len(pending) != 1 || pending[0].Aspect != analysis.AspectFLSAdditions {
		t.Errorf("pending after bulk = %v, want only the addition slot", pending)
	}

	if code := execute(t, "--root", root, "review", "bulk", "--aspect", "specificity",
		"--fls-id", "fls_abc1234567", "--reason", "x"); code != ExitUsageError {
		t.Errorf("bulk rule on specificity exit code = %d, want %d", code, ExitUsageError)
	}

	if code := execute(t, "--root", root, "review", "reset", "Rule 10.1", "--yes"); code != ExitSuccess {
		t.Fatalf("reset exit code = %d", code)
	}
	a, err = analysis.Load(layout, "Rule 10.1")
	if err != nil {
		t.Fatal(err)
	}
	if a.HumanReview != nil {
		t.Error("reset kept the human review")
	}
}

func TestMergeAndValidate(t *testing.T) {
	layout := setupProject(t)
	root := layout.Root

	reportPath := layout.BatchReportFile(1, 1)
	if code := execute(t, "--root", root, "merge", "--batch", "1", "--dry-run"); code != ExitSuccess {
		t.Fatalf("dry-run merge exit code = %d, want %d", code, ExitSuccess)
	}
	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Errorf("dry-run merge created the session report (stat err = %v)", err)
	}

	// An aborted merge leaves no scaffold behind either.
	copyPath := filepath.Join(layout.DecisionsDir(1), "Rule_10.2_copy.json")
	orig, err := os.ReadFile(filepath.Join(layout.DecisionsDir(1), "Rule_10.2.json"))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, copyPath, string(orig))
	if code := execute(t, "--root", root, "merge", "--batch", "1"); code != ExitFindings {
		t.Errorf("aborted merge exit code = %d, want %d", code, ExitFindings)
	}
	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Errorf("aborted merge created the session report (stat err = %v)", err)
	}
	if err := os.Remove(copyPath); err != nil {
		t.Fatal(err)
	}

	if code := execute(t, "--root", root, "merge", "--batch", "1"); code != ExitSuccess {
		t.Fatalf("merge exit code = %d, want %d", code, ExitSuccess)
	}
	report, err := batch.LoadReport(reportPath)
	if err != nil {
		t.Fatalf("merge did not create the session report: %v", err)
	}
	if report.Summary.VerifiedCount != 2 {
		t.Errorf("verified = %d, want 2", report.Summary.VerifiedCount)
	}

	if code := execute(t, "--root", root, "validate", "--batch", "1"); code != ExitSuccess {
		t.Errorf("validate exit code = %d, want %d", code, ExitSuccess)
	}
	if code := execute(t, "--root", root, "progress"); code != ExitSuccess {
		t.Errorf("progress exit code = %d, want %d", code, ExitSuccess)
	}

	// A duplicate claim on Rule 10.2 aborts the merge and fails validation.
	dup, err := os.ReadFile(filepath.Join(layout.DecisionsDir(1), "Rule_10.2.json"))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(layout.DecisionsDir(1), "Rule_10.2_copy.json"), string(dup))
	if code := execute(t, "--root", root, "merge", "--batch", "1"); code != ExitFindings {
		t.Errorf("merge with duplicate exit code = %d, want %d", code, ExitFindings)
	}
	if code := execute(t, "--root", root, "validate", "--batch", "1"); code != ExitFindings {
		t.Errorf("validate with duplicate exit code = %d, want %d", code, ExitFindings)
	}

	if code := execute(t, "--root", root, "merge", "--batch", "9"); code != ExitUsageError {
		t.Errorf("merge of undefined batch exit code = %d, want %d", code, ExitUsageError)
	}
}

func TestDecisionTools(t *testing.T) {
	layout := setupProject(t)
	root := layout.Root
	dir := layout.DecisionsDir(1)

	checks := []struct {
		args []string
		want int
	}{
		{[]string{"check", "rule 10.1", "--batch", "1"}, ExitSuccess},
		{[]string{"check", "Rule 22.1", "--batch", "1"}, ExitFindings},
		{[]string{"check", "Rule 10.1", "--batch", "9"}, ExitUsageError},
	}
	for _, c := range checks {
		if code := execute(t, append([]string{"--root", root}, c.args...)...); code != c.want {
			t.Errorf("%v exit code = %d, want %d", c.args, code, c.want)
		}
	}

	record := func(extra ...string) int {
		args := []string{"--root", root, "record", "Rule 10.2", "--batch", "1",
			"--context", "safe_rust", "--decision", "reject", "--applicability", "rust_prevents"}
		return execute(t, append(args, extra...)...)
	}
	if code := record(); code != ExitUsageError {
		t.Errorf("record without searches exit code = %d, want %d", code, ExitUsageError)
	}
	if code := record("--search", "search-fls:char:2", "--waiver", "legacy_decision:lead:2026-01-01"); code != ExitUsageError {
		t.Errorf("record with searches and waiver exit code = %d, want %d", code, ExitUsageError)
	}
	if code := record("--search", "search-fls:char:2", "--accept-match", "fls_def1234567:x:0:2:too high"); code != ExitUsageError {
		t.Errorf("record with bad match exit code = %d, want %d", code, ExitUsageError)
	}
	if code := record("--search", "search-fls:character types:3"); code != ExitSuccess {
		t.Fatalf("record exit code = %d, want %d", code, ExitSuccess)
	}
	rec, err := decision.Load(dir, "Rule 10.2")
	if err != nil || rec == nil {
		t.Fatalf("Load() = %v, %v", rec, err)
	}
	if rec.SafeRust.Decision != schema.DecisionReject || rec.AllRust.Decision != schema.DecisionAcceptWithModifications {
		t.Errorf("decisions = %q/%q, want reject in safe_rust only", rec.AllRust.Decision, rec.SafeRust.Decision)
	}
	if rec.Decision != "" || rec.SchemaVersion != schema.CurrentSchemaVersion {
		t.Errorf("top level = %q %q, want no decision at schema %s", rec.Decision, rec.SchemaVersion, schema.CurrentSchemaVersion)
	}

	wrong := []string{"--root", root, "record", "Rule 22.1", "--batch", "1", "--decision", "reject",
		"--applicability", "direct", "--search", "search-fls:q"}
	if code := execute(t, wrong...); code != ExitFindings {
		t.Errorf("record outside the batch exit code = %d, want %d", code, ExitFindings)
	}

	// Rule 10.1 without any search evidence.
	bare := func(m string) string {
		return `{"applicability": "direct", "decision": "accept_with_modifications", "accepted_matches": [` + m + `]}`
	}
	path10 := filepath.Join(dir, "Rule_10.1.json")
	writeFile(t, path10, `{"guideline_id": "Rule 10.1", "schema_version": "3.0", "all_rust": `+bare(matchXYZ)+`, "safe_rust": `+bare(matchABC)+`}`)
	if code := execute(t, "--root", root, "remediate", "--batch", "1", "--list-missing"); code != ExitSuccess {
		t.Errorf("remediate --list-missing exit code = %d, want %d", code, ExitSuccess)
	}
	if code := execute(t, "--root", root, "remediate", "--batch", "1"); code != ExitUsageError {
		t.Errorf("remediate without evidence exit code = %d, want %d", code, ExitUsageError)
	}
	waiver := "legacy_decision:lead:2026-01-01"
	if code := execute(t, "--root", root, "remediate", "--batch", "1", "--waiver", waiver, "--dry-run"); code != ExitSuccess {
		t.Errorf("remediate --dry-run exit code = %d, want %d", code, ExitSuccess)
	}
	if rec, _ := decision.Load(dir, "Rule 10.1"); len(decision.MissingSearch(rec)) != 2 {
		t.Error("dry-run remediate rewrote the decision file")
	}
	if code := execute(t, "--root", root, "remediate", "--batch", "1", "--waiver", waiver); code != ExitSuccess {
		t.Fatalf("remediate exit code = %d, want %d", code, ExitSuccess)
	}
	rec, err = decision.Load(dir, "Rule 10.1")
	if err != nil {
		t.Fatal(err)
	}
	if missing := decision.MissingSearch(rec); len(missing) != 0 {
		t.Errorf("still missing search evidence in %v", missing)
	}
	if w := rec.AllRust.SearchToolsUsed.Waiver; w == nil || w.ApprovedBy != "lead" {
		t.Errorf("all_rust waiver = %+v, want approved by lead", w)
	}

	if code := execute(t, "--root", root, "merge", "--batch", "1"); code != ExitSuccess {
		t.Fatalf("merge exit code = %d, want %d", code, ExitSuccess)
	}
	reportPath := layout.BatchReportFile(1, 1)
	verified := func() int {
		t.Helper()
		r, err := batch.LoadReport(reportPath)
		if err != nil {
			t.Fatal(err)
		}
		return r.Summary.VerifiedCount
	}
	if got := verified(); got != 2 {
		t.Fatalf("verified after merge = %d, want 2", got)
	}

	reset := []string{"--root", root, "reset-batch", "--batch", "1", "--guidelines", "rule 10.2"}
	if code := execute(t, reset...); code != ExitUsageError {
		t.Errorf("unconfirmed reset exit code = %d, want %d", code, ExitUsageError)
	}
	if code := execute(t, append(reset, "--dry-run")...); code != ExitSuccess {
		t.Errorf("dry-run reset exit code = %d, want %d", code, ExitSuccess)
	}
	if got := verified(); got != 2 {
		t.Errorf("verified after unconfirmed reset = %d, want 2", got)
	}
	if code := execute(t, "--root", root, "reset-batch", "--batch", "1", "--guidelines", "Rule 9.9", "--yes"); code != ExitUsageError {
		t.Errorf("reset of unknown guideline exit code = %d, want %d", code, ExitUsageError)
	}
	if code := execute(t, append(reset, "--yes")...); code != ExitSuccess {
		t.Fatalf("reset exit code = %d, want %d", code, ExitSuccess)
	}
	if got := verified(); got != 1 {
		t.Errorf("verified after reset = %d, want 1", got)
	}

	// A single context cannot start a decision file.
	if err := os.Remove(path10); err != nil {
		t.Fatal(err)
	}
	single := []string{"--root", root, "record", "Rule 10.1", "--batch", "1", "--context", "all_rust",
		"--decision", "reject", "--applicability", "direct", "--search", "search-fls:q"}
	if code := execute(t, single...); code != ExitUsageError {
		t.Errorf("single-context record without a file exit code = %d, want %d", code, ExitUsageError)
	}
	if _, err := os.Stat(path10); !os.IsNotExist(err) {
		t.Errorf("single-context record created %s (stat err = %v)", path10, err)
	}
}

// --- config command tests ---

func TestConfigInit_CreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if code := execute(t, "config", "init"); code != ExitSuccess {
		t.Fatalf("config init exit code = %d", code)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "flsverify", "config.json"))
	if err != nil {
		t.Fatalf("config init did not create config.json: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if cfg.Standard != "misra-c" {
		t.Errorf("standard = %q, want %q", cfg.Standard, "misra-c")
	}
}

func TestConfigSet_UpdatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if code := execute(t, "config", "set", "systematicThreshold", "3"); code != ExitSuccess {
		t.Fatalf("config set exit code = %d", code)
	}
	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SystematicThreshold != 3 {
		t.Errorf("systematicThreshold = %d, want 3", cfg.SystematicThreshold)
	}
}

func TestConfigSet_Rejects(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "provider", "openai"}},
		{"invalid value", []string{"config", "set", "format", "sarif"}},
		{"missing value", []string{"config", "set", "format"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := execute(t, tt.args...); code != ExitUsageError {
				t.Errorf("exit code = %d, want %d", code, ExitUsageError)
			}
		})
	}
}

// --- cache command tests ---

func TestCacheClear_Execute(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_CACHE_HOME", tmpDir)

	cacheDir := filepath.Join(tmpDir, "flsverify")
	writeFile(t, filepath.Join(cacheDir, "abc123.json"), `{"key":"test"}`)

	if code := execute(t, "cache", "clear"); code != ExitSuccess {
		t.Fatalf("cache clear exit code = %d", code)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "abc123.json")); !os.IsNotExist(err) {
		t.Error("cache clear did not remove the entry")
	}
	if code := execute(t, "cache", "show"); code != ExitSuccess {
		t.Errorf("cache show exit code = %d", code)
	}
}

// --- exit code constants ---

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitFindings", ExitFindings, 1},
		{"ExitUsageError", ExitUsageError, 2},
		{"ExitIncomplete", ExitIncomplete, 3},
		{"ExitRuntimeError", ExitRuntimeError, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.code, tt.want)
			}
		})
	}
}

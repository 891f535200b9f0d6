package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/decision"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

var (
	flagDecisionBatch   int
	flagDecisionDryRun  bool
	flagRecordContext   string
	flagRecordDecision  string
	flagRecordApplic    string
	flagRecordRationale string
	flagRecordConf      string
	flagRecordCategory  string
	flagRecordSummary   string
	flagRecordNotes     string
	flagRecordChange    string
	flagAcceptMatches   []string
	flagRejectMatches   []string
	flagSearches        []string
	flagWaiver          string
	flagResetSession    int
	flagResetGuidelines string
	flagRemediateID     string
	flagListMissing     bool
)

var recordCmd = &cobra.Command{
	Use:   "record <guideline>",
	Short: "Write a guideline's verification decision file",
	Long: "Record writes the decision file of one guideline in its batch's decisions directory. " +
		"Matches are given as fls_id:fls_title:category:score:reason, searches as " +
		"tool:query[:result_count] and a waiver as reason:approved_by:YYYY-MM-DD[:notes]. " +
		"Either --search or --waiver is required. Recording a single --context updates an " +
		"existing file and keeps the other context.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := memberBatch(e, args[0], flagDecisionBatch)
		if err != nil {
			fail(err)
			return nil
		}
		entry, err := recordEntry(args[0])
		if err != nil {
			fail(err)
			return nil
		}

		dir := e.layout.DecisionsDir(def.ID)
		prev, err := decision.Load(dir, entry.GuidelineID)
		if err != nil {
			fail(err)
			return nil
		}
		rec, data, err := decision.Record(prev, entry)
		if err != nil {
			var verr *schema.ValidationError
			if errors.As(err, &verr) {
				err = usagef("%v", err)
			}
			fail(err)
			return nil
		}

		if flagDecisionDryRun {
			_, _ = os.Stdout.Write(data)
			return nil
		}
		path := decision.Path(dir, rec.GuidelineID)
		if err := store.WriteFileAtomic(path, data); err != nil {
			fail(err)
			return nil
		}
		slog.Debug("recorded decision", slog.String("guideline", rec.GuidelineID), slog.String("path", path))
		fmt.Fprintf(os.Stdout, "Recorded %s (%s) in %s\n", rec.GuidelineID, contextNames(entry.Contexts), path)
		return nil
	},
}

// recordEntry builds the decision entry from the record flags.
func recordEntry(guidelineID string) (decision.Entry, error) {
	ctxs, err := schema.ParseContextSelector(flagRecordContext)
	if err != nil {
		return decision.Entry{}, usagef("%v", err)
	}
	entry := decision.Entry{
		GuidelineID:      schema.CanonicalGuidelineID(guidelineID),
		Contexts:         ctxs,
		Decision:         schema.DecisionKind(flagRecordDecision),
		Applicability:    schema.Applicability(flagRecordApplic),
		AdjustedCategory: schema.AdjustedCategory(flagRecordCategory),
		RationaleType:    schema.RationaleType(flagRecordRationale),
		Confidence:       schema.Confidence(flagRecordConf),
		Summary:          flagRecordSummary,
		Notes:            flagRecordNotes,
		RecordedAt:       now(),
	}
	if entry.Accepted, err = parseMatches(flagAcceptMatches); err != nil {
		return decision.Entry{}, err
	}
	if entry.Rejected, err = parseMatches(flagRejectMatches); err != nil {
		return decision.Entry{}, err
	}
	st, err := searchEvidence()
	if err != nil {
		return decision.Entry{}, err
	}
	entry.Searches, entry.Waiver = st.Uses, st.Waiver
	if flagRecordChange != "" {
		if entry.Change, err = decision.ParseChange(flagRecordChange); err != nil {
			return decision.Entry{}, usagef("%v", err)
		}
	}
	return entry, nil
}

func parseMatches(specs []string) ([]schema.Match, error) {
	var out []schema.Match
	for _, s := range specs {
		m, err := decision.ParseMatch(s)
		if err != nil {
			return nil, usagef("%v", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// searchEvidence parses --search or --waiver. Exactly one of them must be
// given.
func searchEvidence() (schema.SearchTools, error) {
	switch {
	case flagWaiver != "" && len(flagSearches) > 0:
		return schema.SearchTools{}, usagef("--search and --waiver are mutually exclusive")
	case flagWaiver != "":
		w, err := decision.ParseWaiver(flagWaiver)
		if err != nil {
			return schema.SearchTools{}, usagef("%v", err)
		}
		return schema.SearchTools{Waiver: w}, nil
	case len(flagSearches) == 0:
		return schema.SearchTools{}, usagef("give at least one --search or a --waiver")
	}
	var st schema.SearchTools
	for _, s := range flagSearches {
		use, err := decision.ParseSearch(s)
		if err != nil {
			return schema.SearchTools{}, usagef("%v", err)
		}
		st.Uses = append(st.Uses, use)
	}
	return st, nil
}

// memberBatch returns the definition of batchID after checking that it
// holds the guideline.
func memberBatch(e env, guidelineID string, batchID int) (batch.Definition, error) {
	set, err := batch.LoadDefinitions(e.layout.BatchesFile())
	if err != nil {
		return batch.Definition{}, err
	}
	def, err := decision.CheckMembership(set, guidelineID, batchID)
	var merr *decision.MembershipError
	if err != nil && !errors.As(err, &merr) {
		return def, usagef("%v in %s", err, e.layout.BatchesFile())
	}
	return def, err
}

var resetBatchCmd = &cobra.Command{
	Use:   "reset-batch",
	Short: "Clear verification decisions from a session report",
	Long: "Reset-batch clears the verification decisions of the listed guidelines, or of every " +
		"guideline, from a batch's session report and drops their proposed applicability " +
		"changes. Decision files are kept; a later merge folds them back in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := batchDefinition(e, flagDecisionBatch)
		if err != nil {
			fail(err)
			return nil
		}
		path, report, err := existingReport(e, def.ID, flagResetSession)
		if err != nil {
			fail(err)
			return nil
		}

		before := len(report.ApplicabilityChanges)
		cleared, unknown := decision.Reset(report, splitComma(flagResetGuidelines))
		if len(unknown) > 0 {
			fail(usagef("not in session %d of batch %d: %s", report.SessionID, def.ID, strings.Join(unknown, ", ")))
			return nil
		}
		dropped := before - len(report.ApplicabilityChanges)
		if len(cleared) == 0 && dropped == 0 {
			fmt.Fprintln(os.Stdout, "Nothing to reset.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "Batch %d session %d: clearing %d decisions, dropping %d applicability changes\n",
			def.ID, report.SessionID, len(cleared), dropped)
		for _, id := range cleared {
			fmt.Fprintf(os.Stdout, "  %s\n", id)
		}
		if flagDecisionDryRun {
			return nil
		}
		if !confirm(fmt.Sprintf("Clear %d decisions from %s?", len(cleared), filepath.Base(path))) {
			fmt.Fprintln(os.Stderr, "Aborted.")
			exitCode = ExitUsageError
			return nil
		}
		if err := report.Save(path); err != nil {
			fail(err)
			return nil
		}
		slog.Info("reset session report", slog.Int("batch", def.ID), slog.Int("session", report.SessionID))
		fmt.Fprintf(os.Stdout, "Decision files in %s are unchanged; re-record them before the next merge.\n",
			e.layout.DecisionsDir(def.ID))
		return nil
	},
}

// existingReport loads the named session report, or the latest one.
func existingReport(e env, batchID, session int) (string, *batch.Report, error) {
	if session > 0 {
		path := e.layout.BatchReportFile(batchID, session)
		r, err := batch.LoadReport(path)
		if err != nil {
			return "", nil, err
		}
		return path, r, nil
	}
	rf, ok, err := batch.LatestReport(e.layout, batchID)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, usagef("batch %d has no session report", batchID)
	}
	return rf.Path, rf.Report, nil
}

var remediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Add search evidence to decisions that lack it",
	Long: "Remediate fills search_tools_used in every context of a batch's decision files that " +
		"records neither a search nor a waiver. Existing evidence is never replaced and " +
		"rewritten files use the current schema version. --list-missing only reports them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := batchDefinition(e, flagDecisionBatch)
		if err != nil {
			fail(err)
			return nil
		}
		dir := e.layout.DecisionsDir(def.ID)
		loaded, err := merge.LoadDir(dir, decisionGlob(e), &def, false)
		if err != nil {
			fail(err)
			return nil
		}
		for _, iss := range loaded.Issues {
			if iss.Severity == merge.SeverityError {
				slog.Warn("skipping decision file", slog.String("issue", iss.String()))
			}
		}

		want := schema.CanonicalGuidelineID(flagRemediateID)
		var targets []merge.Decision
		for _, d := range loaded.Decisions {
			if want == "" || d.Record.GuidelineID == want {
				targets = append(targets, d)
			}
		}
		if want != "" && len(targets) == 0 {
			fail(usagef("no valid decision file for %s in %s", want, dir))
			return nil
		}

		if flagListMissing {
			n := 0
			for _, d := range targets {
				if missing := decision.MissingSearch(&d.Record); len(missing) > 0 {
					n++
					fmt.Fprintf(os.Stdout, "%s: %s\n", d.Record.GuidelineID, contextNames(missing))
				}
			}
			if n == 0 {
				fmt.Fprintln(os.Stdout, "Every decision records searches or a waiver.")
			}
			return nil
		}

		st, err := searchEvidence()
		if err != nil {
			fail(err)
			return nil
		}
		n := 0
		for _, d := range targets {
			rec := d.Record
			filled := decision.Remediate(&rec, st)
			if len(filled) == 0 {
				continue
			}
			data, err := decision.Encode(&rec)
			if err != nil {
				fail(err)
				return nil
			}
			n++
			if flagDecisionDryRun {
				fmt.Fprintf(os.Stdout, "Would remediate %s: %s\n", rec.GuidelineID, contextNames(filled))
				continue
			}
			if err := store.WriteFileAtomic(filepath.Join(dir, d.File), data); err != nil {
				fail(err)
				return nil
			}
			fmt.Fprintf(os.Stdout, "Remediated %s: %s\n", rec.GuidelineID, contextNames(filled))
		}
		if n == 0 {
			fmt.Fprintln(os.Stdout, "Nothing to remediate.")
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <guideline>",
	Short: "Check that a guideline belongs to a batch",
	Long: "Check confirms a guideline is part of a batch before a decision is recorded for it, " +
		"and shows its decision file and whether the latest session report has it verified. " +
		"Exits 1 when the guideline belongs to another batch or to none.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := memberBatch(e, args[0], flagDecisionBatch)
		if err != nil {
			fail(err)
			return nil
		}
		id := schema.CanonicalGuidelineID(args[0])
		fmt.Fprintf(os.Stdout, "OK: %s is in batch %d (%s)\n", id, def.ID, def.Name)

		dir := e.layout.DecisionsDir(def.ID)
		rec, err := decision.Load(dir, id)
		switch {
		case err != nil:
			fmt.Fprintf(os.Stdout, "Decision file: unreadable (%v)\n", err)
		case rec == nil:
			fmt.Fprintln(os.Stdout, "Decision file: none")
		default:
			fmt.Fprintf(os.Stdout, "Decision file: %s (%s)\n", decision.Path(dir, id), rec.SourceVersion)
		}

		rf, ok, err := batch.LatestReport(e.layout, def.ID)
		if err != nil {
			fail(err)
			return nil
		}
		if !ok {
			fmt.Fprintln(os.Stdout, "Session report: none")
			return nil
		}
		state := "not verified"
		if i := rf.Report.Index(id); i >= 0 && rf.Report.Guidelines[i].Verified() {
			state = "verified"
		}
		fmt.Fprintf(os.Stdout, "Session %d: %s\n", rf.Report.SessionID, state)
		return nil
	},
}

func contextNames(ctxs []schema.Context) string {
	names := make([]string, len(ctxs))
	for i, c := range ctxs {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func init() {
	for _, c := range []*cobra.Command{recordCmd, resetBatchCmd, remediateCmd, checkCmd} {
		c.Flags().IntVar(&flagDecisionBatch, "batch", 0, "Batch the guideline belongs to")
		_ = c.MarkFlagRequired("batch")
	}
	for _, c := range []*cobra.Command{recordCmd, resetBatchCmd, remediateCmd} {
		c.Flags().BoolVar(&flagDecisionDryRun, "dry-run", false, "Show what would change without writing")
	}
	for _, c := range []*cobra.Command{recordCmd, remediateCmd} {
		c.Flags().StringArrayVar(&flagSearches, "search", nil, "Search run, as tool:query[:result_count] (repeatable)")
		c.Flags().StringVar(&flagWaiver, "waiver", "", "Search waiver, as reason:approved_by:YYYY-MM-DD[:notes]")
	}

	f := recordCmd.Flags()
	f.StringVar(&flagRecordContext, "context", "both", "all_rust, safe_rust or both")
	f.StringVar(&flagRecordDecision, "decision", "", "accept_with_modifications, accept_no_matches, accept_existing or reject")
	f.StringVar(&flagRecordApplic, "applicability", "", "direct, partial, not_applicable, rust_prevents or unmapped")
	f.StringVar(&flagRecordRationale, "rationale-type", "", "Rationale type")
	f.StringVar(&flagRecordConf, "confidence", "", "high, medium or low")
	f.StringVar(&flagRecordCategory, "adjusted-category", "", "Adjusted category")
	f.StringVar(&flagRecordSummary, "summary", "", "Analysis summary")
	f.StringVar(&flagRecordNotes, "notes", "", "Free-form notes")
	f.StringVar(&flagRecordChange, "propose-change", "", "Applicability change, as field:current:proposed:rationale")
	f.StringArrayVar(&flagAcceptMatches, "accept-match", nil, "Accepted match, as fls_id:fls_title:category:score:reason (repeatable)")
	f.StringArrayVar(&flagRejectMatches, "reject-match", nil, "Rejected match, same format as --accept-match (repeatable)")
	_ = recordCmd.MarkFlagRequired("decision")
	_ = recordCmd.MarkFlagRequired("applicability")

	resetBatchCmd.Flags().IntVar(&flagResetSession, "session", 0, "Session report to reset (default: latest)")
	resetBatchCmd.Flags().StringVar(&flagResetGuidelines, "guidelines", "", "Comma-separated guidelines to reset (default: all)")
	resetBatchCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Confirm without prompting")

	remediateCmd.Flags().StringVar(&flagRemediateID, "guideline", "", "Only remediate this guideline")
	remediateCmd.Flags().BoolVar(&flagListMissing, "list-missing", false, "List decisions lacking search evidence and exit")
	remediateCmd.Flags().StringVar(&flagGlob, "glob", "", "Decision file pattern (default from config)")
}

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/output"
	"github.com/dshills/flsverify/internal/review"
	"github.com/dshills/flsverify/internal/schema"
)

var (
	flagReviewAspect   string
	flagReviewFLSID    string
	flagReviewContext  string
	flagReviewDecision string
	flagReviewReason   string
	flagYes            bool
)

// now is the clock used for review timestamps.
var now = func() time.Time { return time.Now().UTC() }

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record human decisions on analyzed outliers",
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <guideline>",
	Short: "Show an analysis with its review slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		a, err := analysis.Load(e.layout, args[0])
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Review(os.Stdout, reviewView(a)); err != nil {
			fail(err)
		}
		return nil
	},
}

var reviewDecideCmd = &cobra.Command{
	Use:   "decide <guideline>",
	Short: "Accept or reject one aspect or one removed/added fls_id",
	Long: "Decide records a ruling on a single aspect. For fls_removals and fls_additions " +
		"--fls-id names the id and --context (all_rust, safe_rust or both, default both) the " +
		"contexts the ruling covers.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asp, ok := analysis.ParseAspect(flagReviewAspect)
		if !ok {
			return usagef("unknown aspect %q", flagReviewAspect)
		}
		decision, ok := analysis.ParseDecision(flagReviewDecision)
		if !ok {
			return usagef("--decision must be accept or reject, got %q", flagReviewDecision)
		}
		perID := asp == analysis.AspectFLSRemovals || asp == analysis.AspectFLSAdditions
		if perID && flagReviewFLSID == "" {
			return usagef("--fls-id is required for %s", asp)
		}
		if !perID && flagReviewFLSID != "" {
			return usagef("--fls-id only applies to fls_removals and fls_additions")
		}
		ctxs, err := schema.ParseContextSelector(flagReviewContext)
		if err != nil {
			return usagef("%v", err)
		}
		ruling := analysis.Ruling{Decision: decision, Reason: flagReviewReason}

		return updateReview(args[0], func(a *analysis.OutlierAnalysis) error {
			if perID {
				return review.SetID(a, asp, flagReviewFLSID, ctxs, ruling, now())
			}
			return review.SetAspect(a, asp, ruling, now())
		})
	},
}

var reviewAcceptAllCmd = &cobra.Command{
	Use:   "accept-all <guideline>",
	Short: "Accept every review slot per the LLM recommendation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateReview(args[0], func(a *analysis.OutlierAnalysis) error {
			review.AcceptAll(a, now())
			return nil
		})
	},
}

var reviewResetCmd = &cobra.Command{
	Use:   "reset <guideline>",
	Short: "Discard the human review of an outlier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		a, err := analysis.Load(e.layout, args[0])
		if err != nil {
			fail(err)
			return nil
		}
		if a.HumanReview == nil {
			fmt.Fprintf(os.Stdout, "%s has no review to reset.\n", a.GuidelineID)
			return nil
		}
		if !confirm(fmt.Sprintf("Discard every human decision on %s?", a.GuidelineID)) {
			fmt.Fprintln(os.Stderr, "Aborted.")
			exitCode = ExitUsageError
			return nil
		}
		review.Reset(a)
		if err := saveReviewed(e, a); err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Review(os.Stdout, reviewView(a)); err != nil {
			fail(err)
		}
		return nil
	},
}

var reviewBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Add a standing rule accepting one fls_id removal or addition everywhere",
	RunE: func(cmd *cobra.Command, args []string) error {
		asp, ok := analysis.ParseAspect(flagReviewAspect)
		if !ok {
			return usagef("unknown aspect %q", flagReviewAspect)
		}
		if flagReviewFLSID == "" {
			return usagef("--fls-id is required")
		}
		ctxs, err := schema.ParseContextSelector(flagReviewContext)
		if err != nil {
			return usagef("%v", err)
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		path := e.layout.ReviewStateFile()
		st, err := review.LoadState(path)
		if err != nil {
			fail(err)
			return nil
		}
		st, err = st.AddRule(asp, flagReviewFLSID, ctxs, flagReviewReason)
		if err != nil {
			fail(usagef("%v", err))
			return nil
		}
		if err := review.SaveState(path, st); err != nil {
			fail(err)
			return nil
		}
		removals, additions := st.RuleCount()
		fmt.Fprintf(os.Stdout, "Rule added. Bulk rules: %d removal(s), %d addition(s).\n", removals, additions)
		return nil
	},
}

var reviewApplyBulkCmd = &cobra.Command{
	Use:   "apply-bulk",
	Short: "Fill undecided slots covered by bulk rules in every analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		st, err := review.LoadState(e.layout.ReviewStateFile())
		if err != nil {
			fail(err)
			return nil
		}
		all, err := analysis.LoadAll(e.layout)
		if err != nil {
			fail(err)
			return nil
		}
		slots, files := 0, 0
		for _, a := range all {
			n := review.ApplyBulkRules(st, a, now())
			if n == 0 {
				continue
			}
			if err := analysis.Save(e.layout, a, true); err != nil {
				fail(err)
				return nil
			}
			slog.Debug("applied bulk rules", slog.String("guideline", a.GuidelineID), slog.Int("slots", n))
			slots += n
			files++
		}
		if err := review.SaveState(e.layout.ReviewStateFile(), st.WithSummary(review.Summarize(all))); err != nil {
			fail(err)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Filled %d slot(s) in %d analysis file(s).\n", slots, files)
		return nil
	},
}

// updateReview loads an analysis, guards a fully reviewed one against
// silent re-review, applies fn and saves the result.
func updateReview(guidelineID string, fn func(*analysis.OutlierAnalysis) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	a, err := analysis.Load(e.layout, guidelineID)
	if err != nil {
		fail(err)
		return nil
	}
	confirmed := flagYes
	if !confirmed && review.ComputeStatus(a) == analysis.StatusFullyReviewed {
		confirmed = confirm(fmt.Sprintf("%s is already fully reviewed. Overwrite existing decisions?", a.GuidelineID))
	}
	if err := review.Guard(a, confirmed); err != nil {
		fail(err)
		return nil
	}
	if err := fn(a); err != nil {
		fail(err)
		return nil
	}
	if err := saveReviewed(e, a); err != nil {
		fail(err)
		return nil
	}
	if err := e.out.Review(os.Stdout, reviewView(a)); err != nil {
		fail(err)
	}
	return nil
}

func saveReviewed(e env, a *analysis.OutlierAnalysis) error {
	if err := analysis.Save(e.layout, a, true); err != nil {
		return err
	}
	return refreshReviewSummary(e)
}

// refreshReviewSummary recounts review status over every analysis file.
func refreshReviewSummary(e env) error {
	path := e.layout.ReviewStateFile()
	st, err := review.LoadState(path)
	if err != nil {
		return err
	}
	all, err := analysis.LoadAll(e.layout)
	if err != nil {
		return err
	}
	return review.SaveState(path, st.WithSummary(review.Summarize(all)))
}

func reviewView(a *analysis.OutlierAnalysis) output.ReviewView {
	return output.ReviewView{Analysis: a, Status: review.ComputeStatus(a), Slots: review.Slots(a)}
}

// interactive reports whether both stdin and stdout are terminals.
var interactive = func() bool {
	in, out := os.Stdin.Fd(), os.Stdout.Fd()
	return (isatty.IsTerminal(in) || isatty.IsCygwinTerminal(in)) &&
		(isatty.IsTerminal(out) || isatty.IsCygwinTerminal(out))
}

// confirm asks a yes/no question. --yes answers it; without a terminal the
// answer is no.
func confirm(question string) bool {
	if flagYes {
		return true
	}
	if !interactive() {
		fmt.Fprintf(os.Stderr, "%s Pass --yes to confirm.\n", question)
		return false
	}
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(question).Affirmative("Yes").Negative("No").Value(&ok),
	)).Run()
	if err != nil {
		slog.Debug("confirmation prompt failed", slog.Any("error", err))
		return false
	}
	return ok
}

func init() {
	reviewDecideCmd.Flags().StringVar(&flagReviewAspect, "aspect", "", "Aspect to decide ("+aspectNames()+")")
	reviewDecideCmd.Flags().StringVar(&flagReviewFLSID, "fls-id", "", "Removed or added fls_id")
	reviewDecideCmd.Flags().StringVar(&flagReviewContext, "context", "both", "all_rust, safe_rust or both")
	reviewDecideCmd.Flags().StringVar(&flagReviewDecision, "decision", "", "accept or reject")
	reviewDecideCmd.Flags().StringVar(&flagReviewReason, "reason", "", "Reason for the ruling")
	_ = reviewDecideCmd.MarkFlagRequired("aspect")
	_ = reviewDecideCmd.MarkFlagRequired("decision")

	reviewBulkCmd.Flags().StringVar(&flagReviewAspect, "aspect", "", "fls_removals or fls_additions")
	reviewBulkCmd.Flags().StringVar(&flagReviewFLSID, "fls-id", "", "fls_id the rule accepts")
	reviewBulkCmd.Flags().StringVar(&flagReviewContext, "context", "both", "all_rust, safe_rust or both")
	reviewBulkCmd.Flags().StringVar(&flagReviewReason, "reason", "", "Reason recorded on every filled slot")
	_ = reviewBulkCmd.MarkFlagRequired("aspect")
	_ = reviewBulkCmd.MarkFlagRequired("reason")

	for _, c := range []*cobra.Command{reviewDecideCmd, reviewAcceptAllCmd, reviewResetCmd} {
		c.Flags().BoolVarP(&flagYes, "yes", "y", false, "Confirm without prompting")
	}

	reviewCmd.AddCommand(reviewShowCmd, reviewDecideCmd, reviewAcceptAllCmd, reviewResetCmd, reviewBulkCmd, reviewApplyBulkCmd)
}

func aspectNames() string {
	names := make([]string, len(analysis.Aspects))
	for i, a := range analysis.Aspects {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

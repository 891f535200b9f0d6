package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/store"
)

var (
	flagAnalyzeBatch     int
	flagSummary          string
	flagRecommendation   string
	flagRemovals         []string
	flagAdditions        []string
	flagRoutinePattern   string
	flagAnalyzeNotes     string
	flagForce            bool
	flagAnalyzeValidate  bool
	flagAspectVerdicts   = map[analysis.Aspect]*string{}
	flagAspectReasonings = map[analysis.Aspect]*string{}
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <guideline>",
	Short: "Record the LLM analysis of an outlier",
	Long: "Analyze records verdicts on every aspect the guideline's flags require, plus a " +
		"justification for each removed or added fls_id in every context where it changed. " +
		"Nothing is written until the analysis is complete; missing items exit 3. With " +
		"--validate a justification for an fls_id that did not change exits 1.\n\n" +
		"Justifications are written fls_id:context:text, where context is all_rust, safe_rust or both.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		in, err := analysisInput()
		if err != nil {
			return err
		}

		rec, err := extract.LoadRecord(e.layout, args[0], flagAnalyzeBatch)
		if err != nil {
			fail(err)
			return nil
		}
		if !rec.IsOutlier {
			fail(usagef("%s is not an outlier; nothing to analyze", rec.GuidelineID))
			return nil
		}
		fls, err := store.LoadFLS(e.layout.FLSDir(), e.cache())
		if err != nil {
			fail(err)
			return nil
		}

		a, warnings, err := analysis.Build(rec, in, fls)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
		if err != nil {
			var incomplete *analysis.IncompleteError
			var inconsistent *analysis.InconsistentError
			if !errors.As(err, &incomplete) && !errors.As(err, &inconsistent) {
				err = usagef("%v", err)
			}
			fail(err)
			return nil
		}
		if err := analysis.Save(e.layout, a, flagForce); err != nil {
			fail(err)
			return nil
		}
		if err := refreshReviewSummary(e); err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Review(os.Stdout, reviewView(a)); err != nil {
			fail(err)
		}
		return nil
	},
}

// analysisInput collects the analysis flags. Verdict and recommendation
// values are checked by analysis.Build.
func analysisInput() (analysis.Input, error) {
	in := analysis.Input{
		Summary:        flagSummary,
		Recommendation: analysis.Recommendation(flagRecommendation),
		RoutinePattern: flagRoutinePattern,
		Notes:          flagAnalyzeNotes,
		Strict:         flagAnalyzeValidate,
	}
	for _, asp := range analysis.Aspects {
		verdict := *flagAspectVerdicts[asp]
		reasoning := *flagAspectReasonings[asp]
		if verdict == "" {
			if reasoning != "" {
				return in, usagef("--%s-reasoning given without --%s", asp, asp)
			}
			continue
		}
		v := &analysis.AspectVerdict{Verdict: analysis.Verdict(verdict), Reasoning: reasoning}
		switch asp {
		case analysis.AspectCategorization:
			in.Categorization = v
		case analysis.AspectFLSRemovals:
			in.FLSRemovals = v
		case analysis.AspectFLSAdditions:
			in.FLSAdditions = v
		case analysis.AspectADD6Divergence:
			in.ADD6Divergence = v
		case analysis.AspectSpecificity:
			in.Specificity = v
		}
	}
	for _, s := range flagRemovals {
		j, err := analysis.ParseJustification(s)
		if err != nil {
			return in, usagef("--removal: %v", err)
		}
		in.Removals = append(in.Removals, j)
	}
	for _, s := range flagAdditions {
		j, err := analysis.ParseJustification(s)
		if err != nil {
			return in, usagef("--addition: %v", err)
		}
		in.Additions = append(in.Additions, j)
	}
	return in, nil
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVar(&flagAnalyzeBatch, "batch", 0, "Batch of the guideline (default: search every batch)")
	f.StringVar(&flagSummary, "summary", "", "One-paragraph summary of the decision")
	f.StringVar(&flagRecommendation, "recommendation", "", "accept, accept_with_notes, needs_review or reject")
	f.StringArrayVar(&flagRemovals, "removal", nil, "Removal justification fls_id:context:text (repeatable)")
	f.StringArrayVar(&flagAdditions, "addition", nil, "Addition justification fls_id:context:text (repeatable)")
	f.StringVar(&flagRoutinePattern, "routine-pattern", "", "Name of a routine pattern this outlier follows")
	f.StringVar(&flagAnalyzeNotes, "notes", "", "Free-form notes")
	f.BoolVar(&flagForce, "force", false, "Overwrite an existing analysis")
	f.BoolVar(&flagAnalyzeValidate, "validate", false, "Treat stray justifications as errors")
	for _, asp := range analysis.Aspects {
		flagAspectVerdicts[asp] = f.String(string(asp), "", fmt.Sprintf("Verdict on %s", asp))
		flagAspectReasonings[asp] = f.String(string(asp)+"-reasoning", "", fmt.Sprintf("Reasoning for the %s verdict", asp))
	}
}

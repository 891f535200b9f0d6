package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/output"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

var (
	flagBatches   string
	flagThreshold int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Compare decisions with the baseline mapping and record flags",
	Long: "Extract diffs every decision of the selected batches against the baseline mapping, " +
		"writes per-guideline comparison data and batch summaries, and recomputes the " +
		"cross-batch summary. Exits 1 when decisions had to be left out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		p, err := e.project()
		if err != nil {
			fail(err)
			return nil
		}

		ids := p.Batches.IDs()
		if flagBatches != "" {
			if ids, err = parseBatchIDs(flagBatches); err != nil {
				return err
			}
		}
		threshold := e.cfg.SystematicThreshold
		if flagThreshold > 0 {
			threshold = flagThreshold
		}

		res, err := p.Run(ids, e.cfg.DecisionGlob, threshold)
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Extract(os.Stdout, res); err != nil {
			fail(err)
			return nil
		}
		for _, b := range res.Batches {
			if merge.Fatal(b.Issues) {
				exitCode = ExitFindings
			}
		}
		return nil
	},
}

var flagDiffBatch int

var diffCmd = &cobra.Command{
	Use:   "diff <guideline>",
	Short: "Show the extracted comparison of one guideline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		rec, err := extract.LoadRecord(e.layout, args[0], flagDiffBatch)
		if err != nil {
			fail(err)
			return nil
		}
		fls, err := store.LoadFLS(e.layout.FLSDir(), e.cache())
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Diff(os.Stdout, output.DiffView{Record: rec, Content: recordContent(rec, fls)}); err != nil {
			fail(err)
		}
		return nil
	},
}

// recordContent looks up every fls_id the record's mapping or decision
// mentions.
func recordContent(rec compare.Record, fls *store.FLS) map[string]store.Content {
	out := map[string]store.Content{}
	for _, ctx := range schema.Contexts {
		for _, e := range []*schema.ContextEntry{rec.Mapping.Entry(ctx), rec.Decision.Entry(ctx)} {
			for _, m := range e.AcceptedMatches {
				if c, ok := fls.Lookup(m.FLSID); ok {
					out[m.FLSID] = c
				}
			}
		}
	}
	return out
}

var (
	flagPendingFlag          string
	flagPendingBatch         int
	flagPendingNeedsAnalysis bool
	flagPendingNeedsReview   bool
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List outliers that still need analysis or review",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		filter := aggregate.PendingFilter{
			NeedsAnalysis: flagPendingNeedsAnalysis,
			NeedsReview:   flagPendingNeedsReview,
		}
		if flagPendingFlag != "" {
			f, ok := compare.ParseFlag(flagPendingFlag)
			if !ok {
				return usagef("unknown flag %q", flagPendingFlag)
			}
			filter.Flag = f
		}

		records, err := loadRecords(e, flagPendingBatch)
		if err != nil {
			fail(err)
			return nil
		}
		analyses, err := loadAnalyses(e)
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Pending(os.Stdout, aggregate.Pending(records, analyses, filter)); err != nil {
			fail(err)
		}
		return nil
	},
}

// loadRecords returns the extracted records of one batch, or of every batch
// when batchID is zero.
func loadRecords(e env, batchID int) ([]compare.Record, error) {
	if batchID > 0 {
		return extract.LoadRecords(e.layout, batchID)
	}
	all, err := extract.LoadAllRecords(e.layout)
	if err != nil {
		return nil, err
	}
	return extract.Flatten(all), nil
}

func loadAnalyses(e env) (map[string]*analysis.OutlierAnalysis, error) {
	list, err := analysis.LoadAll(e.layout)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*analysis.OutlierAnalysis, len(list))
	for _, a := range list {
		out[a.GuidelineID] = a
	}
	return out, nil
}

func init() {
	extractCmd.Flags().StringVar(&flagBatches, "batches", "", "Batches to extract, e.g. 1,2 or 1-3 (default: all)")
	extractCmd.Flags().IntVar(&flagThreshold, "threshold", 0, "Minimum guidelines for a systematic pattern (default from config)")

	diffCmd.Flags().IntVar(&flagDiffBatch, "batch", 0, "Batch to look in (default: search every batch)")

	pendingCmd.Flags().StringVar(&flagPendingFlag, "flag", "", "Only outliers carrying this flag")
	pendingCmd.Flags().IntVar(&flagPendingBatch, "batch", 0, "Only outliers of this batch")
	pendingCmd.Flags().BoolVar(&flagPendingNeedsAnalysis, "needs-analysis", false, "Only outliers without an analysis")
	pendingCmd.Flags().BoolVar(&flagPendingNeedsReview, "needs-review", false, "Only analyzed outliers without a human review")
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/output"
	"github.com/dshills/flsverify/internal/store"
)

var (
	flagReportOut    string
	flagReportStdout bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the attention-ranked outlier report",
	Long: "Report ranks every outlier by attention score and writes the result to the " +
		"reports directory. The format defaults to markdown; --format selects another.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		format := "markdown"
		if flagFormat != "" {
			format = flagFormat
		}
		if flagReportStdout && flagReportOut != "" {
			return usagef("--out and --stdout are mutually exclusive")
		}

		r, err := buildReport(e)
		if err != nil {
			fail(err)
			return nil
		}

		path := ""
		if !flagReportStdout {
			path = flagReportOut
			if path == "" {
				path = filepath.Join(e.layout.ReportsDir(), "attention_report"+reportExt(format))
			}
		}
		if err := output.WriteReport(r, format, path); err != nil {
			fail(err)
			return nil
		}
		if path != "" {
			fmt.Fprintf(os.Stdout, "Report written to %s (%d outliers)\n", path, r.Totals.Outliers)
		}
		return nil
	},
}

func buildReport(e env) (*aggregate.Report, error) {
	records, err := extract.LoadAllRecords(e.layout)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("no comparison data (run `flsverify extract` first)")
	}
	analyses, err := loadAnalyses(e)
	if err != nil {
		return nil, err
	}

	var cross aggregate.CrossBatch
	if err := store.ReadJSON(e.layout.CrossBatchSummaryFile(), &cross); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		summaries, err := extract.LoadSummaries(e.layout, records)
		if err != nil {
			return nil, err
		}
		cross = aggregate.Summarize(records, summaries, e.cfg.SystematicThreshold)
	}

	names := map[int]string{}
	if set, err := batch.LoadDefinitions(e.layout.BatchesFile()); err == nil {
		for _, d := range set.Batches {
			names[d.ID] = d.Name
		}
	}

	r := aggregate.BuildReport(aggregate.Sources{
		Standard:   e.layout.Standard.String(),
		Records:    extract.Flatten(records),
		Analyses:   analyses,
		BatchNames: names,
		Cross:      &cross,
	}, now())
	return &r, nil
}

func reportExt(format string) string {
	switch format {
	case "json":
		return ".json"
	case "text":
		return ".txt"
	}
	return ".md"
}

func init() {
	reportCmd.Flags().StringVarP(&flagReportOut, "out", "o", "", "Output file (default: <reports dir>/attention_report.<ext>)")
	reportCmd.Flags().BoolVar(&flagReportStdout, "stdout", false, "Print the report instead of writing a file")
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/store"
)

var (
	flagMergeBatch    int
	flagMergeSession  int
	flagMergeValidate bool
	flagValidOnly     bool
	flagDryRun        bool
	flagGlob          string
	flagWatch         bool
)

// watchDebounce coalesces bursts of file events into one merge.
const watchDebounce = 500 * time.Millisecond

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a batch's decision files into its session report",
	Long: "Merge folds every decision file of a batch into the batch's session report and " +
		"recomputes its summary. Any error-level issue aborts the merge with nothing written " +
		"unless --valid-only is given. A missing session report is created when the " +
		"merge writes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := batchDefinition(e, flagMergeBatch)
		if err != nil {
			fail(err)
			return nil
		}
		path, scaffold, err := sessionReport(e, def, flagMergeSession)
		if err != nil {
			fail(err)
			return nil
		}
		opts := merge.Options{
			Glob:      decisionGlob(e),
			Strict:    flagMergeValidate,
			ValidOnly: flagValidOnly,
			DryRun:    flagDryRun,
			Scaffold:  scaffold,
		}
		dir := e.layout.DecisionsDir(def.ID)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runMerge(ctx, e, path, dir, def, opts)
		if !flagWatch {
			return nil
		}
		if err := watchDecisions(ctx, dir, opts.Glob, func() {
			exitCode = ExitSuccess
			runMerge(ctx, e, path, dir, def, opts)
		}); err != nil {
			fail(err)
		}
		return nil
	},
}

func runMerge(ctx context.Context, e env, reportPath, dir string, def batch.Definition, opts merge.Options) {
	res, err := merge.Run(ctx, reportPath, dir, def, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fail(err)
		return
	}
	if err := e.out.Merge(os.Stdout, res); err != nil {
		fail(err)
		return
	}
	if res.Created {
		slog.Info("created session report", slog.Int("batch", def.ID), slog.String("path", reportPath))
	}
	if merge.Fatal(res.Issues) {
		exitCode = ExitFindings
	}
}

// watchDecisions calls run after each settled burst of changes to decision
// files in dir until ctx is cancelled.
func watchDecisions(ctx context.Context, dir, glob string, run func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", dir)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ok, _ := doublestar.Match(glob, filepath.Base(ev.Name)); !ok {
				continue
			}
			slog.Debug("decision file changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.Any("error", err))
		case <-timer.C:
			run()
		}
	}
}

var flagValidateSession int

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a batch's decision files without writing anything",
	Long: "Validate runs the merge checks in strict mode, including the decision-file JSON " +
		"Schema, and reports which guidelines of the session report are missing or unmerged. " +
		"Exits 1 when anything is wrong.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		def, err := batchDefinition(e, flagMergeBatch)
		if err != nil {
			fail(err)
			return nil
		}

		var report *batch.Report
		switch {
		case flagValidateSession > 0:
			if report, err = batch.LoadReport(e.layout.BatchReportFile(def.ID, flagValidateSession)); err != nil {
				fail(err)
				return nil
			}
		default:
			rf, ok, err := batch.LatestReport(e.layout, def.ID)
			if err != nil {
				fail(err)
				return nil
			}
			if ok {
				report = rf.Report
			}
		}

		v, err := merge.Validate(e.layout.DecisionsDir(def.ID), decisionGlob(e), def, report)
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Validation(os.Stdout, v); err != nil {
			fail(err)
			return nil
		}
		if !v.OK() {
			exitCode = ExitFindings
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show verification progress of every batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		set, err := batch.LoadDefinitions(e.layout.BatchesFile())
		if err != nil {
			fail(err)
			return nil
		}
		ov, err := batch.ScanProgress(e.layout, set)
		if err != nil {
			fail(err)
			return nil
		}
		if err := e.out.Progress(os.Stdout, ov); err != nil {
			fail(err)
		}
		return nil
	},
}

func batchDefinition(e env, id int) (batch.Definition, error) {
	set, err := batch.LoadDefinitions(e.layout.BatchesFile())
	if err != nil {
		return batch.Definition{}, err
	}
	def, ok := set.Get(id)
	if !ok {
		return batch.Definition{}, usagef("batch %d is not defined in %s", id, e.layout.BatchesFile())
	}
	return def, nil
}

// sessionReport returns the report path for a merge. Without a session the
// latest report of the batch is used. When the batch has none, or the named
// session does not exist, the returned scaffold builds a new empty report
// for merge.Run to write alongside the merged decisions.
func sessionReport(e env, def batch.Definition, session int) (string, func() *batch.Report, error) {
	if session == 0 {
		rf, ok, err := batch.LatestReport(e.layout, def.ID)
		if err != nil {
			return "", nil, err
		}
		if ok {
			return rf.Path, nil, nil
		}
		set, err := batch.LoadDefinitions(e.layout.BatchesFile())
		if err != nil {
			return "", nil, err
		}
		ov, err := batch.ScanProgress(e.layout, set)
		if err != nil {
			return "", nil, err
		}
		session = ov.NextSession
	}

	path := e.layout.BatchReportFile(def.ID, session)
	if store.Exists(path) {
		return path, nil, nil
	}
	return path, func() *batch.Report { return batch.NewReport(def, session, now()) }, nil
}

func decisionGlob(e env) string {
	if flagGlob != "" {
		return flagGlob
	}
	return e.cfg.DecisionGlob
}

func init() {
	for _, c := range []*cobra.Command{mergeCmd, validateCmd} {
		c.Flags().IntVar(&flagMergeBatch, "batch", 0, "Batch to work on")
		c.Flags().StringVar(&flagGlob, "glob", "", "Decision file pattern (default from config)")
		_ = c.MarkFlagRequired("batch")
	}
	mergeCmd.Flags().IntVar(&flagMergeSession, "session", 0, "Session report to merge into (default: latest)")
	mergeCmd.Flags().BoolVar(&flagMergeValidate, "validate", false, "Treat consistency issues as errors")
	mergeCmd.Flags().BoolVar(&flagValidOnly, "valid-only", false, "Merge the valid decisions despite errors")
	mergeCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Show what would change without writing")
	mergeCmd.Flags().BoolVar(&flagWatch, "watch", false, "Re-merge whenever decision files change")

	validateCmd.Flags().IntVar(&flagValidateSession, "session", 0, "Session report for coverage (default: latest)")
}

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/cache"
	"github.com/dshills/flsverify/internal/config"
	"github.com/dshills/flsverify/internal/decision"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/output"
	"github.com/dshills/flsverify/internal/review"
	"github.com/dshills/flsverify/internal/standard"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitIncomplete   = 3
	ExitRuntimeError = 4
)

// Global flags
var (
	flagRoot     string
	flagStandard string
	flagFormat   string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "flsverify",
	Short: "Track and diff FLS mapping verification decisions",
	Long: "flsverify reconciles the baseline guideline-to-FLS mapping with per-guideline " +
		"verification decisions, flags divergences, and tracks LLM and human review of outliers.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Run executes the root command and returns an exit code.
func Run() int {
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

var registerOnce sync.Once

func registerCommands() {
	registerOnce.Do(func() {
		rootCmd.AddCommand(extractCmd)
		rootCmd.AddCommand(diffCmd)
		rootCmd.AddCommand(analyzeCmd)
		rootCmd.AddCommand(pendingCmd)
		rootCmd.AddCommand(reviewCmd)
		rootCmd.AddCommand(mergeCmd)
		rootCmd.AddCommand(validateCmd)
		rootCmd.AddCommand(recordCmd)
		rootCmd.AddCommand(resetBatchCmd)
		rootCmd.AddCommand(remediateCmd)
		rootCmd.AddCommand(checkCmd)
		rootCmd.AddCommand(progressCmd)
		rootCmd.AddCommand(reportCmd)
		rootCmd.AddCommand(configCmd)
		rootCmd.AddCommand(cacheCmd)
		rootCmd.AddCommand(versionCmd)
	})
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print flsverify version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "flsverify version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRoot, "root", "", "Project root holding the mapping and cache directories")
	pf.StringVar(&flagStandard, "standard", "", "Coding standard (misra-c, misra-cpp, cert-c, cert-cpp)")
	pf.StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagRoot != "" {
		m["root"] = flagRoot
	}
	if flagStandard != "" {
		m["standard"] = flagStandard
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagVerbose {
		m["logLevel"] = "debug"
	}
	return m
}

func setupLogging() error {
	level := slog.LevelWarn
	if cfg, err := config.Load(buildOverrides()); err == nil {
		if l, err := config.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// env is what most commands need: the effective config, the artifact
// layout and the output writer.
type env struct {
	cfg    config.Config
	layout standard.Layout
	out    output.Writer
}

func loadEnv() (env, error) {
	cfg, err := config.Load(buildOverrides())
	if err != nil {
		return env{}, err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return env{}, err
	}
	w, err := output.GetWriter(cfg.Format)
	if err != nil {
		return env{}, err
	}
	return env{cfg: cfg, layout: layout, out: w}, nil
}

func (e env) cache() *cache.Cache {
	c, err := cache.New(e.cfg.Cache.Enabled, e.cfg.Cache.Dir, e.cfg.Cache.TTLSeconds)
	if err != nil {
		slog.Warn("FLS index cache unavailable", slog.Any("error", err))
		return nil
	}
	return c
}

func (e env) project() (*extract.Project, error) {
	return extract.Open(e.layout, e.cache())
}

// fail prints err and sets the exit code for its class.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = classify(err)
}

func classify(err error) int {
	var incomplete *analysis.IncompleteError
	var aborted *merge.Aborted
	var inconsistent *analysis.InconsistentError
	var membership *decision.MembershipError
	switch {
	case errors.As(err, &incomplete):
		return ExitIncomplete
	case errors.As(err, &aborted), errors.As(err, &inconsistent), errors.As(err, &membership):
		return ExitFindings
	case errors.Is(err, review.ErrAlreadyReviewed),
		errors.Is(err, decision.ErrNoDecision),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, analysis.ErrExists),
		errors.Is(err, errUsage):
		return ExitUsageError
	}
	return ExitRuntimeError
}

// errUsage marks bad flag combinations detected after parsing.
var errUsage = errors.New("usage")

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseBatchIDs parses "1,2,5-7".
func parseBatchIDs(s string) ([]int, error) {
	var ids []int
	seen := map[int]bool{}
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			ids = append(ids, n)
		}
	}
	for _, part := range splitComma(s) {
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || a <= 0 {
			return nil, usagef("invalid batch %q", part)
		}
		if !isRange {
			add(a)
			continue
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || b < a {
			return nil, usagef("invalid batch range %q", part)
		}
		for n := a; n <= b; n++ {
			add(n)
		}
	}
	return ids, nil
}

package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/extract"
	"github.com/dshills/flsverify/internal/merge"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/store"
)

// TextWriter outputs human-readable terminal text. Colors are only emitted
// when the destination is a terminal.
type TextWriter struct{}

type styles struct {
	title lipgloss.Style
	dim   lipgloss.Style
	good  lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true),
		dim:   r.NewStyle().Faint(true),
		good:  r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func rule(n int) string { return strings.Repeat("─", n) }

func (t *TextWriter) Extract(w io.Writer, res extract.Result) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	for _, b := range res.Batches {
		s := b.Summary
		ew.printf("%s\n", st.title.Render(fmt.Sprintf("Batch %d: %s", b.BatchID, s.BatchName)))
		ew.println(rule(60))
		ew.printf("Source: %s | Guidelines: %d | Outliers: %s | Issues: %d\n",
			b.Source, s.GuidelineCount, countStyle(st, b.Outliers).Render(fmt.Sprint(b.Outliers)), len(b.Issues))
		for _, ctx := range schema.Contexts {
			if c, ok := s.PatternConformance[ctx]; ok {
				ew.printf("  %s pattern conformance: %d/%d (%.0f%%)\n",
					ctx, c.Conforms, c.Conforms+c.Outliers, c.Rate*100)
			}
		}
		for _, flag := range compare.AllFlags {
			ids := s.FlaggedGuidelines[flag]
			if len(ids) == 0 {
				continue
			}
			ew.printf("  %-36s %3d  %s\n", flag, len(ids), st.dim.Render(abbreviate(ids, 6)))
		}
		for _, i := range b.Issues {
			ew.printf("  %s\n", issueStyle(st, i).Render(i.String()))
		}
		ew.println("")
	}

	c := res.Cross
	ew.printf("%s\n", st.title.Render(fmt.Sprintf("Cross-batch: %d guidelines in %d batch(es)", c.TotalGuidelines, len(c.Batches))))
	ew.println(rule(60))
	writePatterns(ew, "Frequently removed", c.SystematicPatterns.Removed, c.Threshold)
	writePatterns(ew, "Frequently added", c.SystematicPatterns.Added, c.Threshold)
	if md := c.OutlierConcentration.MultiDimension; len(md) > 0 {
		ew.printf("Multi-dimension outliers: %d\n", len(md))
		for _, m := range md {
			ew.printf("  %-14s batch %d  %d flags\n", m.GuidelineID, m.Batch, m.FlagCount)
		}
	}
	return ew.err
}

func writePatterns(ew *errWriter, label string, patterns []aggregate.Pattern, threshold int) {
	if len(patterns) == 0 {
		ew.printf("%s (≥%d guidelines): none\n", label, threshold)
		return
	}
	ew.printf("%s (≥%d guidelines):\n", label, threshold)
	for _, p := range patterns {
		ew.printf("  %s  %d guideline(s) in batch(es) %s\n", p.FLSID, p.Count, batchList(p.Batches))
	}
}

func batchList(m map[int]int) string {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func (t *TextWriter) Diff(w io.Writer, v DiffView) error {
	ew := &errWriter{w: w}
	st := newStyles(w)
	r := v.Record

	ew.printf("%s\n", st.title.Render(fmt.Sprintf("%s (batch %d)", r.GuidelineID, r.Batch)))
	ew.println(rule(60))
	if r.IsOutlier {
		ew.printf("Flags: %s\n", st.warn.Render(joinFlags(r.ActiveFlags)))
	} else {
		ew.printf("Flags: %s\n", st.good.Render("none"))
	}

	for _, c := range r.Comparison.All() {
		ew.printf("\n%s\n", st.title.Render(string(c.Context)))
		ew.printf("  comparison id: %s\n", st.dim.Render(c.ComparisonID))
		writeTransition(ew, "applicability", c.ApplicabilityChanged, c.ApplicabilityMappingToDecision)
		writeTransition(ew, "adjusted_category", c.AdjustedCategoryChanged, c.AdjustedCategoryMappingToDecision)
		writeTransition(ew, "rationale_type", c.RationaleTypeChanged, c.RationaleTypeMappingToDecision)
		if c.ADD6Applicability != "" || c.ADD6AdjustedCategory != "" {
			ew.printf("  ADD-6: %s / %s", c.ADD6Applicability, c.ADD6AdjustedCategory)
			if c.ApplicabilityDiffersFromADD6 || c.AdjustedCategoryDiffersFromADD6 {
				ew.printf("  %s", st.warn.Render("(decision differs)"))
			}
			ew.println("")
		}
		ew.printf("  matches: %d → %d (net %+d)\n", c.MatchCountMapping, c.MatchCountDecision, c.NetFLSChange)
		writeIDs(ew, st.bad, "-", c.FLSRemoved, v.Content)
		writeIDs(ew, st.good, "+", c.FLSAdded, v.Content)
		writeIDs(ew, st.dim, "=", c.FLSRetained, v.Content)
		for _, lp := range c.LostParagraphs {
			ew.printf("  %s %s (%s) of section %s\n",
				st.warn.Render("lost paragraph"), lp.FLSID, store.CategoryName(lp.Category), lp.SectionFLSID)
		}
		if !c.HasAnalysisSummary {
			ew.printf("  %s\n", st.warn.Render("no analysis summary"))
		}
		if !c.HasSearchTools {
			ew.printf("  %s\n", st.warn.Render("no search tools recorded"))
		}
	}

	if len(r.PatternDeviations) > 0 {
		ew.printf("\n%s\n", st.title.Render("Batch pattern deviations"))
		for _, d := range r.PatternDeviations {
			ew.printf("  %s.%s: expected %s, got %s\n", d.Context, d.Field, d.Expected, d.Actual)
		}
	}
	return ew.err
}

func writeTransition(ew *errWriter, field string, changed bool, transition string) {
	if changed {
		ew.printf("  %s: %s\n", field, transition)
	}
}

func writeIDs(ew *errWriter, style lipgloss.Style, marker string, ids []string, content map[string]store.Content) {
	for _, id := range ids {
		line := marker + " " + id
		if c, ok := content[id]; ok {
			line += "  " + c.Title
			if c.Kind != "section" {
				line += " [" + c.CategoryName + "]"
			}
		}
		ew.printf("  %s\n", style.Render(line))
	}
}

func (t *TextWriter) Merge(w io.Writer, res merge.Result) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	for _, i := range res.Issues {
		ew.printf("%s\n", issueStyle(st, i).Render(i.String()))
	}
	ew.printf("Merged %d decision(s)", len(res.Merged))
	if len(res.Skipped) > 0 {
		ew.printf(", skipped %d not in the report", len(res.Skipped))
	}
	ew.println("")
	ew.printf("Verified: %d/%d | Applicability changes: %d proposed, %d approved\n",
		res.Summary.VerifiedCount, res.Summary.TotalGuidelines,
		res.Summary.ApplicabilityChangesProposed, res.Summary.ApplicabilityChangesApproved)
	switch {
	case res.Written:
		ew.println(st.good.Render("Report updated."))
	case res.Changed:
		ew.println(st.warn.Render("Dry run: report not written."))
	default:
		ew.println(st.dim.Render("Report unchanged."))
	}
	return ew.err
}

func (t *TextWriter) Validation(w io.Writer, v merge.Validation) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	ew.printf("Files: %d | Valid decisions: %d | Issues: %d\n", v.Loaded.Files, len(v.Loaded.Decisions), len(v.Issues))
	for _, i := range v.Issues {
		ew.printf("  %s\n", issueStyle(st, i).Render(i.String()))
	}
	if c := v.Coverage; c != nil {
		ew.printf("Coverage: %d/%d guidelines merged\n", c.Total-len(c.Missing)-len(c.Unmerged), c.Total)
		if len(c.Missing) > 0 {
			ew.printf("  missing:  %s\n", strings.Join(c.Missing, ", "))
		}
		if len(c.Unmerged) > 0 {
			ew.printf("  unmerged: %s\n", strings.Join(c.Unmerged, ", "))
		}
	}
	if v.OK() {
		ew.println(st.good.Render("OK"))
	} else {
		ew.println(st.bad.Render("FAILED"))
	}
	return ew.err
}

func (t *TextWriter) Progress(w io.Writer, o batch.Overview) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	ew.printf("%-5s %-32s %-12s %9s  %-8s %s\n", "Batch", "Name", "Status", "Verified", "Session", "Resume from")
	ew.println(rule(80))
	for _, p := range o.Batches {
		status := string(p.Status)
		switch p.Status {
		case batch.StatusCompleted:
			status = st.good.Render(fmt.Sprintf("%-12s", status))
		case batch.StatusInProgress:
			status = st.warn.Render(fmt.Sprintf("%-12s", status))
		default:
			status = fmt.Sprintf("%-12s", status)
		}
		session := "-"
		if p.SessionID > 0 {
			session = fmt.Sprint(p.SessionID)
		}
		ew.printf("%-5d %-32s %s %4d/%-4d  %-8s %s\n",
			p.BatchID, truncate(p.Name, 32), status, p.Verified, p.Total, session, p.ResumeFrom)
		if p.PendingApps > 0 {
			ew.printf("      %s\n", st.warn.Render(fmt.Sprintf("%d applicability change(s) awaiting approval", p.PendingApps)))
		}
	}
	ew.println(rule(80))
	ew.printf("Last session: %d | Next session: %d", o.LastSession, o.NextSession)
	if o.CurrentBatch > 0 {
		ew.printf(" | Current batch: %d", o.CurrentBatch)
	}
	ew.println("")
	return ew.err
}

func (t *TextWriter) Pending(w io.Writer, l aggregate.PendingListing) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	ew.printf("Outliers: %d | Needs analysis: %d | Needs review: %d | Reviewed: %d\n",
		len(l.Items), l.NeedsAnalysis, l.NeedsReview, l.Reviewed)
	if len(l.Items) == 0 {
		ew.println("\nNothing pending.")
		return ew.err
	}
	ew.println(rule(60))
	for _, it := range l.Items {
		state := st.bad.Render("needs analysis")
		switch {
		case it.HasReview:
			state = st.good.Render("review started")
		case it.HasAnalysis:
			state = st.warn.Render("needs review")
		}
		ew.printf("%-14s batch %-3d %s\n", it.GuidelineID, it.Batch, state)
		ew.printf("  %s\n", st.dim.Render(joinFlags(it.ActiveFlags)))
	}
	ew.println(rule(60))
	for _, flag := range compare.AllFlags {
		if n := l.FlagDistribution[flag]; n > 0 {
			ew.printf("  %-36s %d\n", flag, n)
		}
	}
	return ew.err
}

func (t *TextWriter) Review(w io.Writer, v ReviewView) error {
	ew := &errWriter{w: w}
	st := newStyles(w)
	a := v.Analysis
	llm := a.LLMAnalysis

	ew.printf("%s\n", st.title.Render(fmt.Sprintf("%s (batch %d)", a.GuidelineID, a.Batch)))
	ew.println(rule(60))
	ew.printf("Flags: %s\n", joinFlags(a.ActiveFlags))
	ew.printf("Recommendation: %s | Review: %s\n", llm.OverallRecommendation, statusStyle(st, v.Status).Render(string(v.Status)))
	for _, line := range wrapText(llm.Summary, 70) {
		ew.printf("  %s\n", line)
	}

	for _, asp := range analysis.Aspects {
		verdict, ok := llm.Verdict(asp)
		if !ok {
			continue
		}
		ew.printf("\n%s: %s\n", st.title.Render(string(asp)), verdict)
		for _, line := range wrapText(aspectReasoning(&llm, asp), 70) {
			ew.printf("    %s\n", line)
		}
	}

	ew.printf("\n%s\n", st.title.Render("Review slots"))
	for _, s := range v.Slots {
		if !s.Decided() {
			ew.printf("  [ ] %s\n", s)
			continue
		}
		mark := st.good.Render("[✓]")
		if s.Ruling.Decision == analysis.DecisionReject {
			mark = st.bad.Render("[✗]")
		}
		ew.printf("  %s %s: %s\n", mark, s, s.Ruling.Reason)
	}
	return ew.err
}

func aspectReasoning(l *analysis.LLMAnalysis, asp analysis.Aspect) string {
	switch asp {
	case analysis.AspectCategorization:
		return l.Categorization.Reasoning
	case analysis.AspectFLSRemovals:
		return l.FLSRemovals.Reasoning
	case analysis.AspectFLSAdditions:
		return l.FLSAdditions.Reasoning
	case analysis.AspectADD6Divergence:
		return l.ADD6Divergence.Reasoning
	case analysis.AspectSpecificity:
		return l.Specificity.Reasoning
	}
	return ""
}

func (t *TextWriter) Report(w io.Writer, r *aggregate.Report) error {
	ew := &errWriter{w: w}
	st := newStyles(w)

	ew.printf("%s\n", st.title.Render(fmt.Sprintf("Outlier attention report: %s", r.Standard)))
	ew.println(rule(60))
	tot := r.Totals
	ew.printf("Outliers: %d | Analyzed: %d | Awaiting analysis: %d\n", tot.Outliers, tot.Analyzed, tot.AwaitingAnalysis)
	ew.printf("Reviewed: %d fully, %d partially, %d pending\n", tot.FullyReviewed, tot.Partial, tot.PendingReview)
	ew.println(rule(60))
	if len(r.Items) == 0 {
		ew.println("\nNo outliers.")
		return ew.err
	}
	for _, it := range r.Items {
		ew.printf("%4d  %-14s batch %-3d %s", it.Score, it.GuidelineID, it.Batch, statusStyle(st, it.Status).Render(string(it.Status)))
		if it.Recommendation != "" {
			ew.printf("  %s", it.Recommendation)
		}
		ew.println("")
		ew.printf("      %s\n", st.dim.Render(joinFlags(it.ActiveFlags)))
	}
	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func countStyle(st styles, n int) lipgloss.Style {
	if n == 0 {
		return st.good
	}
	return st.warn
}

func issueStyle(st styles, i merge.Issue) lipgloss.Style {
	if i.Severity == merge.SeverityError {
		return st.bad
	}
	return st.warn
}

func statusStyle(st styles, s analysis.Status) lipgloss.Style {
	switch s {
	case analysis.StatusFullyReviewed:
		return st.good
	case analysis.StatusPartial:
		return st.warn
	}
	return st.dim
}

func joinFlags(flags []compare.Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

func abbreviate(ids []string, n int) string {
	if len(ids) <= n {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:n], ", ") + fmt.Sprintf(", … (+%d)", len(ids)-n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

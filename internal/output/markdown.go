package output

import (
	"io"
	"sort"
	"strings"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/analysis"
	"github.com/dshills/flsverify/internal/compare"
)

// MarkdownWriter outputs review-ready markdown. Results without a markdown
// rendering fall back to plain text.
type MarkdownWriter struct {
	TextWriter
}

func (m *MarkdownWriter) Report(w io.Writer, r *aggregate.Report) error {
	ew := &errWriter{w: w}
	t := r.Totals

	ew.printf("# Outlier Attention Report: %s\n\n", r.Standard)
	ew.printf("*Generated %s*\n\n", r.GeneratedAt.Format("2006-01-02 15:04 UTC"))

	ew.printf("| Status | Count |\n")
	ew.printf("|--------|-------|\n")
	ew.printf("| Outliers | %d |\n", t.Outliers)
	ew.printf("| Analyzed | %d |\n", t.Analyzed)
	ew.printf("| Awaiting analysis | %d |\n", t.AwaitingAnalysis)
	ew.printf("| Fully reviewed | %d |\n", t.FullyReviewed)
	ew.printf("| Partially reviewed | %d |\n", t.Partial)
	ew.printf("| Pending review | %d |\n\n", t.PendingReview)

	if t.Outliers == 0 {
		ew.println("No outliers. :white_check_mark:")
		return ew.err
	}

	if len(r.Recommendations) > 0 {
		ew.printf("## Recommendations\n\n")
		for _, rec := range []analysis.Recommendation{
			analysis.RecommendReject, analysis.RecommendNeedsReview,
			analysis.RecommendAcceptWithNotes, analysis.RecommendAccept,
		} {
			if n := r.Recommendations[rec]; n > 0 {
				ew.printf("- %s %s: %d\n", recommendationIcon(rec), rec, n)
			}
		}
		ew.println("")
	}

	ew.printf("## Ranked outliers\n\n")
	ew.printf("| Score | Guideline | Batch | Flags | Recommendation | Review |\n")
	ew.printf("|------:|-----------|------:|-------|----------------|--------|\n")
	for _, it := range r.Items {
		rec := "-"
		if it.Analyzed {
			rec = recommendationIcon(it.Recommendation) + " " + string(it.Recommendation)
		}
		ew.printf("| %d | %s | %d | %s | %s | %s |\n",
			it.Score, it.GuidelineID, it.Batch, mdFlags(it.ActiveFlags), rec, it.Status)
	}
	ew.println("")

	if len(r.ByFlag) > 0 {
		ew.printf("## By flag\n\n")
		for _, g := range r.ByFlag {
			ew.printf("<details>\n<summary>%s (%d)</summary>\n\n", g.Flag, len(g.Items))
			for _, it := range g.Items {
				ew.printf("- **%s** (batch %d, score %d)", it.GuidelineID, it.Batch, it.Score)
				if it.Summary != "" {
					ew.printf(": %s", oneLine(it.Summary))
				}
				ew.println("")
			}
			ew.printf("\n</details>\n\n")
		}
	}

	if len(r.MultiDimension) > 0 {
		ew.printf("## Multi-dimension outliers\n\n")
		for _, md := range r.MultiDimension {
			ew.printf("- **%s** (batch %d): %d flags, %s\n", md.GuidelineID, md.Batch, md.FlagCount, mdFlags(md.Flags))
		}
		ew.println("")
	}

	if len(r.FlagDistribution) > 0 {
		keys := make([]string, 0, len(r.FlagDistribution))
		for k := range r.FlagDistribution {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ew.printf("## Flag count distribution\n\n")
		for _, k := range keys {
			ew.printf("- %s: %d\n", strings.ReplaceAll(k, "_", " "), r.FlagDistribution[k])
		}
		ew.println("")
	}

	if len(r.Batches) > 0 {
		ew.printf("## Batches\n\n")
		ew.printf("| Batch | Name | Outliers | Analyzed | Reviewed |\n")
		ew.printf("|------:|------|---------:|---------:|---------:|\n")
		for _, b := range r.Batches {
			ew.printf("| %d | %s | %d | %d | %d |\n", b.BatchID, b.Name, b.Outliers, b.Analyzed, b.Reviewed)
		}
		ew.println("")
	}

	if sp := r.Systematic; sp != nil && (len(sp.Removed) > 0 || len(sp.Added) > 0) {
		ew.printf("## Systematic patterns\n\n")
		for _, p := range sp.Removed {
			ew.printf("- removed `%s` from %d guidelines (batches %s)\n", p.FLSID, p.Count, batchList(p.Batches))
		}
		for _, p := range sp.Added {
			ew.printf("- added `%s` to %d guidelines (batches %s)\n", p.FLSID, p.Count, batchList(p.Batches))
		}
		ew.println("")
	}
	return ew.err
}

func (m *MarkdownWriter) Pending(w io.Writer, l aggregate.PendingListing) error {
	ew := &errWriter{w: w}
	ew.printf("## Pending outliers\n\n")
	ew.printf("Needs analysis: %d, needs review: %d, reviewed: %d\n\n", l.NeedsAnalysis, l.NeedsReview, l.Reviewed)
	if len(l.Items) == 0 {
		ew.println("Nothing pending.")
		return ew.err
	}
	ew.printf("| Guideline | Batch | Flags | Analysis | Review |\n")
	ew.printf("|-----------|------:|-------|----------|--------|\n")
	for _, it := range l.Items {
		ew.printf("| %s | %d | %s | %s | %s |\n",
			it.GuidelineID, it.Batch, mdFlags(it.ActiveFlags), check(it.HasAnalysis), check(it.HasReview))
	}
	return ew.err
}

func mdFlags(flags []compare.Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = "`" + string(f) + "`"
	}
	return strings.Join(parts, " ")
}

func check(b bool) string {
	if b {
		return ":white_check_mark:"
	}
	return ""
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, 160)
}

func recommendationIcon(r analysis.Recommendation) string {
	switch r {
	case analysis.RecommendReject:
		return ":red_circle:"
	case analysis.RecommendNeedsReview:
		return ":orange_circle:"
	case analysis.RecommendAcceptWithNotes:
		return ":yellow_circle:"
	case analysis.RecommendAccept:
		return ":green_circle:"
	default:
		return ":white_circle:"
	}
}

package standard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Standard is a supported coding standard.
type Standard int

const (
	MisraC Standard = iota
	MisraCpp
	CertC
	CertCpp
)

type layout struct {
	cli         string
	internal    string
	definitions string
}

var layouts = map[Standard]layout{
	MisraC:   {cli: "misra-c", internal: "misra_c", definitions: "misra_c_2025.json"},
	MisraCpp: {cli: "misra-cpp", internal: "misra_cpp", definitions: "misra_cpp_2023.json"},
	CertC:    {cli: "cert-c", internal: "cert_c", definitions: "cert_c.json"},
	CertCpp:  {cli: "cert-cpp", internal: "cert_cpp", definitions: "cert_cpp.json"},
}

// All returns every supported standard.
func All() []Standard {
	return []Standard{MisraC, MisraCpp, CertC, CertCpp}
}

// Parse accepts either the CLI spelling ("misra-c") or the internal one
// ("misra_c").
func Parse(s string) (Standard, error) {
	k := strings.ToLower(strings.TrimSpace(s))
	for _, std := range All() {
		l := layouts[std]
		if k == l.cli || k == l.internal {
			return std, nil
		}
	}
	return 0, fmt.Errorf("unknown standard %q: must be one of misra-c, misra-cpp, cert-c, cert-cpp", s)
}

// String returns the CLI spelling.
func (s Standard) String() string {
	if l, ok := layouts[s]; ok {
		return l.cli
	}
	return fmt.Sprintf("Standard(%d)", int(s))
}

// Internal returns the name used in file and directory names.
func (s Standard) Internal() string { return layouts[s].internal }

// DefinitionsFile returns the standard definitions filename.
func (s Standard) DefinitionsFile() string { return layouts[s].definitions }

// Layout resolves artifact paths for one standard under a project root.
type Layout struct {
	Root     string
	Standard Standard
}

// NewLayout returns the layout of std rooted at root.
func NewLayout(root string, std Standard) Layout {
	return Layout{Root: root, Standard: std}
}

func (l Layout) mappingDir() string {
	return filepath.Join(l.Root, "coding-standards-fls-mapping")
}

// MappingFile is the baseline mapping.
func (l Layout) MappingFile() string {
	return filepath.Join(l.mappingDir(), "mappings", l.Standard.Internal()+"_to_fls.json")
}

// DefinitionsFile is the standard definitions catalogue.
func (l Layout) DefinitionsFile() string {
	return filepath.Join(l.mappingDir(), "standards", l.Standard.DefinitionsFile())
}

// ADD6File is the ADD-6 reference table.
func (l Layout) ADD6File() string {
	return filepath.Join(l.mappingDir(), "add6", l.Standard.Internal()+"_add6.json")
}

// BatchesFile holds the batch definitions.
func (l Layout) BatchesFile() string {
	return filepath.Join(l.mappingDir(), "batches", l.Standard.Internal()+"_batches.yaml")
}

// FLSDir holds the FLS chapter files.
func (l Layout) FLSDir() string {
	return filepath.Join(l.Root, "embeddings", "fls")
}

func (l Layout) verificationDir() string {
	return filepath.Join(l.Root, "cache", "verification", l.Standard.Internal())
}

func (l Layout) analysisDir() string {
	return filepath.Join(l.Root, "cache", "analysis", l.Standard.Internal())
}

// DecisionsDir is where workers write per-guideline decision files.
func (l Layout) DecisionsDir(batch int) string {
	return filepath.Join(l.verificationDir(), fmt.Sprintf("batch%d_decisions", batch))
}

// BatchReportFile is the consolidated report for one session of a batch.
func (l Layout) BatchReportFile(batch, session int) string {
	return filepath.Join(l.verificationDir(), fmt.Sprintf("batch%d_session%d.json", batch, session))
}

// BatchReportGlob matches every session report of a batch.
func (l Layout) BatchReportGlob(batch int) string {
	return filepath.Join(l.verificationDir(), fmt.Sprintf("batch%d_session*.json", batch))
}

// ComparisonRoot holds comparison data for every batch.
func (l Layout) ComparisonRoot() string {
	return filepath.Join(l.analysisDir(), "comparison_data")
}

// ComparisonDir holds per-guideline comparison data for a batch.
func (l Layout) ComparisonDir(batch int) string {
	return filepath.Join(l.ComparisonRoot(), fmt.Sprintf("batch%d", batch))
}

// BatchSummaryFile holds a batch's summary statistics.
func (l Layout) BatchSummaryFile(batch int) string {
	return filepath.Join(l.ComparisonRoot(), fmt.Sprintf("batch%d_summary.json", batch))
}

// CrossBatchSummaryFile holds the systematic pattern summary.
func (l Layout) CrossBatchSummaryFile() string {
	return filepath.Join(l.ComparisonRoot(), "cross_batch_summary.json")
}

// OutlierDir holds one outlier analysis file per flagged guideline.
func (l Layout) OutlierDir() string {
	return filepath.Join(l.analysisDir(), "outlier_analysis")
}

// ReviewStateFile holds bulk rules and the review summary.
func (l Layout) ReviewStateFile() string {
	return filepath.Join(l.analysisDir(), "review_state.json")
}

// ReportsDir holds generated reports.
func (l Layout) ReportsDir() string {
	return filepath.Join(l.analysisDir(), "reports")
}

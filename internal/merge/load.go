package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/schema"
)

// DefaultGlob matches decision files in a decisions directory.
const DefaultGlob = "*.json"

// Decision is a structurally valid decision file.
type Decision struct {
	File   string
	Record schema.DecisionRecord
}

// Loaded holds the decisions that may be merged and every issue found.
type Loaded struct {
	Decisions []Decision
	Issues    []Issue
	Files     int
}

// LoadDir reads every decision file in dir matching glob. Structural
// problems exclude the file. Consistency problems are warnings unless
// strict, in which case they exclude it too. A guideline claimed by more
// than one file yields one issue naming every file, and none of them is
// kept. When def is non-nil, guidelines outside the batch are excluded.
func LoadDir(dir, glob string, def *batch.Definition, strict bool) (Loaded, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	names, err := doublestar.Glob(os.DirFS(dir), glob)
	if err != nil {
		return Loaded{}, fmt.Errorf("listing decision files: %w", err)
	}
	if len(names) == 0 {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("decisions directory %s: %w", dir, err)
		}
	}
	sort.Strings(names)

	consistency := SeverityWarning
	if strict {
		consistency = SeverityError
	}

	type candidate struct {
		Decision
		keep bool
	}
	out := Loaded{Files: len(names)}
	byID := map[string][]candidate{}
	var order []string
	for _, name := range names {
		rec, issues := loadFile(filepath.Join(dir, name), name)
		out.Issues = append(out.Issues, issues...)
		if rec == nil {
			continue
		}

		keep := true
		if want := schema.GuidelineFilename(rec.GuidelineID); filepath.Base(name) != want {
			out.Issues = append(out.Issues, Issue{
				File:     name,
				Path:     "guideline_id",
				Message:  fmt.Sprintf("filename does not match guideline %s (expected %s)", rec.GuidelineID, want),
				Kind:     KindConsistency,
				Severity: consistency,
			})
			keep = !strict
		}
		if def != nil && !def.Contains(rec.GuidelineID) {
			out.Issues = append(out.Issues, Issue{
				File:     name,
				Path:     "guideline_id",
				Message:  fmt.Sprintf("%s is not in batch %d", rec.GuidelineID, def.ID),
				Kind:     KindConsistency,
				Severity: consistency,
			})
			keep = false
		}
		if _, seen := byID[rec.GuidelineID]; !seen {
			order = append(order, rec.GuidelineID)
		}
		byID[rec.GuidelineID] = append(byID[rec.GuidelineID], candidate{Decision{File: name, Record: *rec}, keep})
	}

	for _, id := range order {
		files := byID[id]
		if len(files) > 1 {
			names := make([]string, len(files))
			for i, d := range files {
				names[i] = d.File
			}
			out.Issues = append(out.Issues, Issue{
				File:     names[0],
				Path:     "guideline_id",
				Message:  fmt.Sprintf("duplicate guideline %s claimed by %s", id, strings.Join(names, ", ")),
				Kind:     KindDuplicate,
				Severity: SeverityError,
			})
			continue
		}
		if files[0].keep {
			out.Decisions = append(out.Decisions, files[0].Decision)
		}
	}
	sortIssues(out.Issues)
	return out, nil
}

// loadFile runs the structural checks on one file and returns the decoded
// record when they all pass.
func loadFile(path, name string) (*schema.DecisionRecord, []Issue) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Issue{structural(name, "", err.Error())}
	}
	if err := schema.CheckDecisionFile(data); err != nil {
		return nil, fieldIssues(name, err)
	}
	rec, err := schema.DecodeDecision(data)
	if err != nil {
		return nil, []Issue{structural(name, "", err.Error())}
	}
	if err := schema.ValidateDecision(&rec); err != nil {
		return nil, fieldIssues(name, err)
	}
	return &rec, nil
}

func structural(file, path, msg string) Issue {
	return Issue{File: file, Path: path, Message: msg, Kind: KindStructural, Severity: SeverityError}
}

func fieldIssues(file string, err error) []Issue {
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return []Issue{structural(file, "", err.Error())}
	}
	issues := make([]Issue, len(verr.Fields))
	for i, f := range verr.Fields {
		issues[i] = structural(file, f.Path, f.Message)
	}
	return issues
}

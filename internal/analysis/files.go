package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/standard"
	"github.com/dshills/flsverify/internal/store"
)

// ErrExists is returned by Save when an analysis exists and force is off.
var ErrExists = errors.New("outlier analysis already exists")

// Path returns the analysis file of a guideline.
func Path(layout standard.Layout, guidelineID string) string {
	return filepath.Join(layout.OutlierDir(), schema.GuidelineFilename(guidelineID))
}

// Save writes a. An existing file is only replaced when force is set.
func Save(layout standard.Layout, a *OutlierAnalysis, force bool) error {
	path := Path(layout, a.GuidelineID)
	if !force && store.Exists(path) {
		return fmt.Errorf("%s: %w (use --force to overwrite)", a.GuidelineID, ErrExists)
	}
	return store.WriteJSON(path, a)
}

// Load reads the analysis of one guideline. A missing file yields an error
// matching os.ErrNotExist that says how to create it.
func Load(layout standard.Layout, guidelineID string) (*OutlierAnalysis, error) {
	var a OutlierAnalysis
	if err := store.ReadJSON(Path(layout, guidelineID), &a); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			id := schema.CanonicalGuidelineID(guidelineID)
			return nil, fmt.Errorf("no analysis for %s: %w (run `flsverify analyze %q` first)", id, err, id)
		}
		return nil, fmt.Errorf("loading analysis for %s: %w", guidelineID, err)
	}
	return &a, nil
}

// LoadAll reads every analysis file, sorted by guideline id.
func LoadAll(layout standard.Layout) ([]*OutlierAnalysis, error) {
	entries, err := os.ReadDir(layout.OutlierDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading outlier analyses: %w", err)
	}
	var out []*OutlierAnalysis
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var a OutlierAnalysis
		if err := store.ReadJSON(filepath.Join(layout.OutlierDir(), e.Name()), &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuidelineID < out[j].GuidelineID })
	return out, nil
}

package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/flsverify/internal/aggregate"
	"github.com/dshills/flsverify/internal/compare"
	"github.com/dshills/flsverify/internal/schema"
	"github.com/dshills/flsverify/internal/standard"
	"github.com/dshills/flsverify/internal/store"
)

// ErrNoComparison is returned when a guideline has no extracted record.
var ErrNoComparison = errors.New("no comparison data")

func writeJSON(path string, v any) error {
	if err := store.WriteJSON(path, v); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveBatch writes one record file per guideline and the batch summary, then
// removes record files of guidelines that were not part of res.
func SaveBatch(layout standard.Layout, res BatchResult) error {
	dir := layout.ComparisonDir(res.BatchID)
	keep := map[string]bool{}
	for _, r := range res.Records {
		name := schema.GuidelineFilename(r.GuidelineID)
		keep[name] = true
		if err := writeJSON(filepath.Join(dir, name), r); err != nil {
			return err
		}
	}
	if err := writeJSON(layout.BatchSummaryFile(res.BatchID), res.Summary); err != nil {
		return err
	}

	names, err := doublestar.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, n := range names {
		if keep[n] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pruning stale record %s: %w", n, err)
		}
	}
	return nil
}

// LoadRecords reads every extracted record of a batch, sorted by guideline.
func LoadRecords(layout standard.Layout, batchID int) ([]compare.Record, error) {
	dir := layout.ComparisonDir(batchID)
	names, err := doublestar.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(names)
	records := make([]compare.Record, 0, len(names))
	for _, n := range names {
		var r compare.Record
		if err := store.ReadJSON(filepath.Join(dir, n), &r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// ExtractedBatches returns the ids of every batch with a record directory.
func ExtractedBatches(layout standard.Layout) ([]int, error) {
	entries, err := os.ReadDir(layout.ComparisonRoot())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading comparison data: %w", err)
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "batch") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "batch")); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// LoadAllRecords reads the records of every extracted batch.
func LoadAllRecords(layout standard.Layout) (map[int][]compare.Record, error) {
	ids, err := ExtractedBatches(layout)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]compare.Record, len(ids))
	for _, id := range ids {
		recs, err := LoadRecords(layout, id)
		if err != nil {
			return nil, err
		}
		out[id] = recs
	}
	return out, nil
}

// Flatten returns the records of every batch in batch order.
func Flatten(records map[int][]compare.Record) []compare.Record {
	ids := make([]int, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []compare.Record
	for _, id := range ids {
		out = append(out, records[id]...)
	}
	return out
}

// LoadSummaries reads the batch summary of every batch in records.
func LoadSummaries(layout standard.Layout, records map[int][]compare.Record) (map[int]aggregate.BatchSummary, error) {
	out := make(map[int]aggregate.BatchSummary, len(records))
	for id := range records {
		var s aggregate.BatchSummary
		if err := store.ReadJSON(layout.BatchSummaryFile(id), &s); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}

// LoadRecord finds the extracted record of one guideline. When batchID is
// zero every extracted batch is searched.
func LoadRecord(layout standard.Layout, guidelineID string, batchID int) (compare.Record, error) {
	ids := []int{batchID}
	if batchID == 0 {
		var err error
		if ids, err = ExtractedBatches(layout); err != nil {
			return compare.Record{}, err
		}
	}
	name := schema.GuidelineFilename(guidelineID)
	for _, id := range ids {
		var r compare.Record
		err := store.ReadJSON(filepath.Join(layout.ComparisonDir(id), name), &r)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return compare.Record{}, err
		}
	}
	hint := "run `flsverify extract --batches N` first"
	if batchID != 0 {
		hint = fmt.Sprintf("run `flsverify extract --batches %d` first", batchID)
	}
	return compare.Record{}, fmt.Errorf("%s: %w (%s)", schema.CanonicalGuidelineID(guidelineID), ErrNoComparison, hint)
}

package batch

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dshills/flsverify/internal/schema"
)

// Definition is one batch: a fixed guideline set and the pattern its
// decisions are expected to follow.
type Definition struct {
	ID              int                    `yaml:"id" json:"batch_id"`
	Name            string                 `yaml:"name" json:"name"`
	ExpectedPattern schema.ExpectedPattern `yaml:"expected_pattern" json:"expected_pattern"`
	Guidelines      []string               `yaml:"guidelines" json:"guidelines"`
}

// Contains reports whether the batch includes a guideline.
func (d Definition) Contains(id string) bool {
	id = schema.CanonicalGuidelineID(id)
	for _, g := range d.Guidelines {
		if g == id {
			return true
		}
	}
	return false
}

// Set is every batch of one standard, ordered by id.
type Set struct {
	Standard string       `yaml:"standard"`
	Batches  []Definition `yaml:"batches"`
}

// LoadDefinitions reads and validates a batch definition file.
func LoadDefinitions(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading batch definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes batch definitions from YAML. Guideline ids are
// canonicalized and every problem is reported together.
func ParseDefinitions(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing batch definitions: %w", err)
	}

	var errs []error
	ids := map[int]bool{}
	owner := map[string]int{}
	for i := range s.Batches {
		b := &s.Batches[i]
		if b.ID <= 0 {
			errs = append(errs, fmt.Errorf("batches[%d]: id must be positive", i))
		} else if ids[b.ID] {
			errs = append(errs, fmt.Errorf("batches[%d]: duplicate batch id %d", i, b.ID))
		}
		ids[b.ID] = true
		if err := b.ExpectedPattern.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("batch %d: %w", b.ID, err))
		}
		for j, g := range b.Guidelines {
			g = schema.CanonicalGuidelineID(g)
			b.Guidelines[j] = g
			if prev, ok := owner[g]; ok && prev != b.ID {
				errs = append(errs, fmt.Errorf("batch %d: %s already belongs to batch %d", b.ID, g, prev))
			}
			owner[g] = b.ID
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(s.Batches, func(i, j int) bool { return s.Batches[i].ID < s.Batches[j].ID })
	return &s, nil
}

// Get returns the batch with the given id.
func (s *Set) Get(id int) (Definition, bool) {
	for _, b := range s.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return Definition{}, false
}

// BatchOf returns the batch a guideline belongs to.
func (s *Set) BatchOf(guidelineID string) (int, bool) {
	for _, b := range s.Batches {
		if b.Contains(guidelineID) {
			return b.ID, true
		}
	}
	return 0, false
}

// IDs returns every batch id in order.
func (s *Set) IDs() []int {
	ids := make([]int, len(s.Batches))
	for i, b := range s.Batches {
		ids[i] = b.ID
	}
	return ids
}

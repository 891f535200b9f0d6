package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/flsverify/internal/batch"
	"github.com/dshills/flsverify/internal/cache"
	"github.com/dshills/flsverify/internal/standard"
	"github.com/dshills/flsverify/internal/store"
)

// Project is the read-only reference data of one standard. Nothing in this
// package mutates it.
type Project struct {
	Layout   standard.Layout
	Mappings *store.Mappings
	ADD6     *store.ADD6
	FLS      *store.FLS
	Catalog  *store.Catalog
	Batches  *batch.Set
}

// Open loads the mapping, batch definitions, ADD-6 table, guideline
// catalogue and FLS chapters of layout. The mapping and batch definitions
// are required; a missing ADD-6 table, catalogue or FLS directory only
// disables the checks and enrichment that depend on it.
func Open(layout standard.Layout, c *cache.Cache) (*Project, error) {
	mappings, err := store.LoadMappings(layout.MappingFile())
	if err != nil {
		return nil, err
	}
	batches, err := batch.LoadDefinitions(layout.BatchesFile())
	if err != nil {
		return nil, err
	}

	p := &Project{Layout: layout, Mappings: mappings, Batches: batches}

	p.ADD6, err = store.LoadADD6(layout.ADD6File())
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("no ADD-6 reference data; divergence flags disabled", slog.String("path", layout.ADD6File()))
		p.ADD6, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Catalog, err = store.LoadCatalog(layout.DefinitionsFile())
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no standard definitions; catalogue checks disabled", slog.String("path", layout.DefinitionsFile()))
		p.Catalog, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.FLS, err = store.LoadFLS(layout.FLSDir(), c)
	if err != nil {
		return nil, fmt.Errorf("loading FLS content: %w", err)
	}

	slog.Debug("opened project",
		slog.String("standard", layout.Standard.String()),
		slog.Int("mapped", mappings.Len()),
		slog.Int("add6", p.ADD6.Len()),
		slog.Int("fls_items", p.FLS.Len()),
		slog.Int("batches", len(batches.Batches)))
	return p, nil
}

// Definition returns the definition of batch id.
func (p *Project) Definition(id int) (batch.Definition, error) {
	def, ok := p.Batches.Get(id)
	if !ok {
		return batch.Definition{}, fmt.Errorf("batch %d is not defined in %s", id, p.Layout.BatchesFile())
	}
	return def, nil
}

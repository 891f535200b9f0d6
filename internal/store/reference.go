package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/flsverify/internal/schema"
)

// Mappings is the baseline mapping of one standard, keyed by guideline id.
type Mappings struct {
	Standard string
	entries  map[string]schema.MappingEntry
}

type mappingFile struct {
	Standard string            `json:"standard"`
	Mappings []json.RawMessage `json:"mappings"`
}

// LoadMappings reads and normalizes a mapping file.
func LoadMappings(path string) (*Mappings, error) {
	var f mappingFile
	if err := ReadJSON(path, &f); err != nil {
		return nil, fmt.Errorf("loading mapping: %w", err)
	}
	m := &Mappings{Standard: f.Standard, entries: make(map[string]schema.MappingEntry, len(f.Mappings))}
	for i, raw := range f.Mappings {
		entry, err := schema.DecodeMapping(raw)
		if err != nil {
			return nil, fmt.Errorf("mapping entry %d: %w", i, err)
		}
		m.entries[entry.GuidelineID] = entry
	}
	slog.Debug("loaded mapping", slog.String("path", path), slog.Int("guidelines", len(m.entries)))
	return m, nil
}

// NewMappings builds a Mappings value from entries.
func NewMappings(entries ...schema.MappingEntry) *Mappings {
	m := &Mappings{entries: make(map[string]schema.MappingEntry, len(entries))}
	for _, e := range entries {
		e.GuidelineID = schema.CanonicalGuidelineID(e.GuidelineID)
		m.entries[e.GuidelineID] = e
	}
	return m
}

// Get returns a copy of the entry for a guideline.
func (m *Mappings) Get(id string) (schema.MappingEntry, bool) {
	e, ok := m.entries[schema.CanonicalGuidelineID(id)]
	return e, ok
}

// Len returns the number of guidelines.
func (m *Mappings) Len() int { return len(m.entries) }

// ADD6 is the ADD-6 reference table.
type ADD6 struct {
	rows map[string]schema.ADD6Row
}

type add6File struct {
	Guidelines json.RawMessage `json:"guidelines"`
}

// LoadADD6 reads the ADD-6 table. The guidelines member may be either an
// object keyed by guideline id or a list of rows.
func LoadADD6(path string) (*ADD6, error) {
	var f add6File
	if err := ReadJSON(path, &f); err != nil {
		return nil, fmt.Errorf("loading ADD-6 data: %w", err)
	}
	a := &ADD6{rows: map[string]schema.ADD6Row{}}
	if len(f.Guidelines) == 0 {
		return a, nil
	}

	var keyed map[string]schema.ADD6Row
	if err := json.Unmarshal(f.Guidelines, &keyed); err == nil {
		for id, row := range keyed {
			row.GuidelineID = schema.CanonicalGuidelineID(id)
			a.rows[row.GuidelineID] = row
		}
		return a, nil
	}
	var list []schema.ADD6Row
	if err := json.Unmarshal(f.Guidelines, &list); err != nil {
		return nil, fmt.Errorf("parsing ADD-6 guidelines in %s: %w", path, err)
	}
	for _, row := range list {
		row.GuidelineID = schema.CanonicalGuidelineID(row.GuidelineID)
		a.rows[row.GuidelineID] = row
	}
	return a, nil
}

// NewADD6 builds a table from rows.
func NewADD6(rows ...schema.ADD6Row) *ADD6 {
	a := &ADD6{rows: map[string]schema.ADD6Row{}}
	for _, r := range rows {
		r.GuidelineID = schema.CanonicalGuidelineID(r.GuidelineID)
		a.rows[r.GuidelineID] = r
	}
	return a
}

// Get returns the row for a guideline. A nil table has no rows.
func (a *ADD6) Get(id string) (*schema.ADD6Row, bool) {
	if a == nil {
		return nil, false
	}
	r, ok := a.rows[schema.CanonicalGuidelineID(id)]
	if !ok {
		return nil, false
	}
	return &r, true
}

// Len returns the number of rows.
func (a *ADD6) Len() int {
	if a == nil {
		return 0
	}
	return len(a.rows)
}

// Catalog is the standard's guideline catalogue.
type Catalog struct {
	guidelines map[string]schema.Guideline
}

type catalogFile struct {
	Categories []struct {
		Name       string `json:"name"`
		Guidelines []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Type  string `json:"guideline_type"`
		} `json:"guidelines"`
	} `json:"categories"`
}

// LoadCatalog reads a standard definitions file.
func LoadCatalog(path string) (*Catalog, error) {
	var f catalogFile
	if err := ReadJSON(path, &f); err != nil {
		return nil, fmt.Errorf("loading standard definitions: %w", err)
	}
	c := &Catalog{guidelines: map[string]schema.Guideline{}}
	for _, cat := range f.Categories {
		for _, g := range cat.Guidelines {
			parsed := schema.ParseGuideline(g.ID)
			parsed.Title = g.Title
			parsed.Category = cat.Name
			if g.Type == string(schema.TypeDirective) {
				parsed.Type = schema.TypeDirective
			}
			c.guidelines[parsed.ID] = parsed
		}
	}
	return c, nil
}

// Get returns a guideline by id. A nil catalog falls back to parsing the id.
func (c *Catalog) Get(id string) (schema.Guideline, bool) {
	if c == nil {
		return schema.ParseGuideline(id), false
	}
	g, ok := c.guidelines[schema.CanonicalGuidelineID(id)]
	if !ok {
		return schema.ParseGuideline(id), false
	}
	return g, true
}

// IDs returns every guideline id sorted.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.guidelines))
	for id := range c.guidelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

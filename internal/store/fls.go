package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dshills/flsverify/internal/cache"
)

var categoryNames = map[int]string{
	0:  "section",
	-1: "general",
	-2: "legality_rules",
	-3: "dynamic_semantics",
	-4: "undefined_behavior",
	-5: "implementation_requirements",
	-6: "implementation_permissions",
	-7: "examples",
	-8: "syntax",
}

// CategoryName returns the rubric name of an FLS category code.
func CategoryName(code int) string {
	if n, ok := categoryNames[code]; ok {
		return n
	}
	return "unknown_" + strconv.Itoa(code)
}

// Content is the display metadata of one FLS section or paragraph.
type Content struct {
	FLSID        string `json:"fls_id"`
	Kind         string `json:"kind"`
	Title        string `json:"title,omitempty"`
	Text         string `json:"text,omitempty"`
	Chapter      int    `json:"chapter"`
	Category     int    `json:"category"`
	CategoryName string `json:"category_name"`
	SectionFLSID string `json:"section_fls_id,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
}

// FLSIndex maps every section and paragraph id to its content.
type FLSIndex struct {
	Items map[string]Content `json:"items"`
}

type chapterFile struct {
	Chapter  *int   `json:"chapter"`
	Title    string `json:"title"`
	FLSID    string `json:"fls_id"`
	Sections []struct {
		FLSID       string `json:"fls_id"`
		Title       string `json:"title"`
		Category    int    `json:"category"`
		ParentFLSID string `json:"parent_fls_id"`
		Rubrics     map[string]struct {
			Paragraphs map[string]string `json:"paragraphs"`
		} `json:"rubrics"`
	} `json:"sections"`
}

// FLS is the FLS content store. It is read only.
type FLS struct {
	index FLSIndex
}

// LoadFLS indexes every chapter_*.json file in dir. When c is enabled the
// index is cached under a fingerprint of the chapter files. Unparsable
// chapters are logged and skipped.
func LoadFLS(dir string, c *cache.Cache) (*FLS, error) {
	names, err := doublestar.Glob(os.DirFS(dir), "chapter_*.json")
	if err != nil {
		return nil, fmt.Errorf("listing FLS chapters: %w", err)
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}

	var key string
	if c != nil && c.Enabled() {
		fp, err := cache.FingerprintFiles("fls-index-v1", paths)
		if err != nil {
			return nil, err
		}
		key = fp
		if data, ok := c.Get(key); ok {
			var idx FLSIndex
			if err := json.Unmarshal(data, &idx); err == nil {
				slog.Debug("FLS index cache hit", slog.Int("items", len(idx.Items)))
				return &FLS{index: idx}, nil
			}
		}
	}

	idx := FLSIndex{Items: map[string]Content{}}
	for _, p := range paths {
		var ch chapterFile
		if err := ReadJSON(p, &ch); err != nil || ch.Chapter == nil {
			slog.Warn("skipping FLS chapter", slog.String("path", p), slog.Any("error", err))
			continue
		}
		indexChapter(&idx, ch)
	}

	if key != "" {
		data, err := json.Marshal(idx)
		if err == nil {
			if err := c.Put(key, data); err != nil {
				slog.Warn("caching FLS index failed", slog.Any("error", err))
			}
		}
	}
	slog.Debug("indexed FLS chapters", slog.Int("chapters", len(paths)), slog.Int("items", len(idx.Items)))
	return &FLS{index: idx}, nil
}

func indexChapter(idx *FLSIndex, ch chapterFile) {
	for _, sec := range ch.Sections {
		if sec.FLSID == "" {
			continue
		}
		idx.Items[sec.FLSID] = Content{
			FLSID:        sec.FLSID,
			Kind:         "section",
			Title:        sec.Title,
			Chapter:      *ch.Chapter,
			Category:     sec.Category,
			CategoryName: CategoryName(sec.Category),
			SectionFLSID: sec.ParentFLSID,
		}
		for key, rubric := range sec.Rubrics {
			code, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			for pid, text := range rubric.Paragraphs {
				idx.Items[pid] = Content{
					FLSID:        pid,
					Kind:         "paragraph",
					Text:         text,
					Chapter:      *ch.Chapter,
					Category:     code,
					CategoryName: CategoryName(code),
					SectionFLSID: sec.FLSID,
					SectionTitle: sec.Title,
				}
			}
		}
	}
}

// Lookup returns the content for an fls_id.
func (s *FLS) Lookup(id string) (Content, bool) {
	if s == nil {
		return Content{}, false
	}
	c, ok := s.index.Items[id]
	return c, ok
}

// SectionOf returns the section containing a paragraph. A section id
// resolves to itself.
func (s *FLS) SectionOf(id string) (string, bool) {
	c, ok := s.Lookup(id)
	if !ok {
		return "", false
	}
	if c.Kind == "section" {
		return c.FLSID, true
	}
	return c.SectionFLSID, c.SectionFLSID != ""
}

// Len returns the number of indexed items.
func (s *FLS) Len() int {
	if s == nil {
		return 0
	}
	return len(s.index.Items)
}

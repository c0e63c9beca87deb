package listing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/haggle-go/internal/logger"
	"github.com/dayuer/haggle-go/internal/pricing"
)

// Category is one row of the category price table.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Min      int64    `yaml:"min" json:"min"`
	Max      int64    `yaml:"max" json:"max"`
	// Estimate is the typical asking price used for synthetic listings.
	Estimate int64 `yaml:"estimate" json:"estimate"`
}

// price returns the estimate clamped into the category range and the global
// price bounds.
func (c Category) price() int64 {
	p := c.Estimate
	if p == 0 {
		p = (c.Min + c.Max) / 2
	}
	if c.Min > 0 && p < c.Min {
		p = c.Min
	}
	if c.Max > 0 && p > c.Max {
		p = c.Max
	}
	if p < pricing.MinPrice {
		p = pricing.MinPrice
	}
	if p > pricing.MaxPrice {
		p = pricing.MaxPrice
	}
	return p
}

// CategoryTable maps slug keywords to categories.
type CategoryTable struct {
	Categories []Category `yaml:"categories"`
	Default    Category   `yaml:"default"`
}

// DefaultCategories is the built-in table.
func DefaultCategories() *CategoryTable {
	return &CategoryTable{
		Categories: []Category{
			{Name: "Mobile Phones", Keywords: []string{"phone", "phones", "mobile", "mobiles", "iphone", "samsung", "oneplus", "redmi", "pixel", "vivo", "oppo"}, Min: 5_000, Max: 150_000, Estimate: 15_000},
			{Name: "Laptops & Computers", Keywords: []string{"laptop", "laptops", "macbook", "computer", "computers", "notebook", "thinkpad", "desktop"}, Min: 15_000, Max: 300_000, Estimate: 35_000},
			{Name: "Cars", Keywords: []string{"car", "cars", "sedan", "suv", "hatchback", "maruti", "hyundai", "swift"}, Min: 100_000, Max: 5_000_000, Estimate: 300_000},
			{Name: "Motorcycles", Keywords: []string{"bike", "bikes", "motorcycle", "motorcycles", "scooter", "scooty", "activa", "royal-enfield", "pulsar"}, Min: 20_000, Max: 200_000, Estimate: 80_000},
			{Name: "Furniture", Keywords: []string{"furniture", "sofa", "bed", "table", "chair", "wardrobe", "almirah"}, Min: 1_000, Max: 150_000, Estimate: 25_000},
			{Name: "Gaming", Keywords: []string{"playstation", "ps4", "ps5", "xbox", "nintendo", "gaming", "console"}, Min: 5_000, Max: 80_000, Estimate: 30_000},
			{Name: "Electronics", Keywords: []string{"tv", "television", "camera", "speaker", "headphones", "refrigerator", "fridge", "electronics"}, Min: 2_000, Max: 100_000, Estimate: 20_000},
		},
		Default: Category{Name: "General", Min: 1_000, Max: 500_000, Estimate: 50_000},
	}
}

// Match returns the first category whose keyword appears as a word of slug.
func (t *CategoryTable) Match(slug string) Category {
	padded := "-" + strings.ToLower(slug) + "-"
	for _, c := range t.Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(padded, "-"+strings.ToLower(kw)+"-") {
				return c
			}
		}
	}
	return t.Default
}

// Named returns the category called name, or the default.
func (t *CategoryTable) Named(name string) Category {
	for _, c := range t.Categories {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return t.Default
}

// LoadCategoryFile reads a YAML category table.
func LoadCategoryFile(path string) (*CategoryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read category file %s", path)
	}
	var t CategoryTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(err, "parse category file %s", path)
	}
	if len(t.Categories) == 0 {
		return nil, errors.Errorf("category file %s has no categories", path)
	}
	if t.Default.Name == "" {
		t.Default = DefaultCategories().Default
	}
	return &t, nil
}

// CategoryStore holds the active table and swaps it atomically on reload.
type CategoryStore struct {
	table atomic.Pointer[CategoryTable]
}

// NewCategoryStore creates a store seeded with t, or the defaults when t is nil.
func NewCategoryStore(t *CategoryTable) *CategoryStore {
	if t == nil {
		t = DefaultCategories()
	}
	s := &CategoryStore{}
	s.table.Store(t)
	return s
}

// Table returns the active table.
func (s *CategoryStore) Table() *CategoryTable {
	return s.table.Load()
}

// Watch reloads the table whenever path changes, until ctx is done. A file
// that fails to parse leaves the previous table active.
func (s *CategoryStore) Watch(ctx context.Context, path string, log *logger.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	// Watch the directory so editors that replace the file are seen too.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return errors.Wrapf(err, "watch %s", path)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				t, err := LoadCategoryFile(path)
				if err != nil {
					log.Warn("category table reload failed", "path", path, "error", err)
					continue
				}
				s.table.Store(t)
				log.Info("category table reloaded", "path", path, "categories", len(t.Categories))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("category watcher error", "error", err)
			}
		}
	}()
	return nil
}

// titleFromSlug turns "used-iphone-13-pro" into "Used Iphone Pro".
func titleFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_' || r == '+' || unicode.IsSpace(r)
	})
	var out []string
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return -1
			}
			return r
		}, w)
		if len([]rune(w)) <= 2 {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		out = append(out, string(r))
	}
	if len(out) == 0 {
		return "Marketplace Product"
	}
	return strings.Join(out, " ")
}

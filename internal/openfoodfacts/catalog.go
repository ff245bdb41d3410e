package openfoodfacts

import (
	_ "embed"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

// Catalog is the fixed list of categories the site imports, and how to
// query Open Food Facts for each of them.
type Catalog struct {
	BaseURL    string   `yaml:"base_url"`
	PageSize   int      `yaml:"page_size"`
	Categories []string `yaml:"categories"`
}

// DefaultCatalog parses the embedded categories.yaml.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(categoriesYAML)
	if err != nil {
		panic(fmt.Sprintf("openfoodfacts: parsing embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog reads a catalog from YAML and checks it is usable.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("openfoodfacts: decoding catalog: %w", err)
	}
	if c.BaseURL == "" {
		return Catalog{}, fmt.Errorf("openfoodfacts: catalog has no base_url")
	}
	if c.PageSize <= 0 {
		return Catalog{}, fmt.Errorf("openfoodfacts: catalog page_size must be positive, got %d", c.PageSize)
	}
	if len(c.Categories) == 0 {
		return Catalog{}, fmt.Errorf("openfoodfacts: catalog has no categories")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c, nil
}

// Names returns a copy of the category names, in catalog order.
func (c Catalog) Names() []string {
	return slices.Clone(c.Categories)
}

// Contains reports whether name is one of the catalog categories.
func (c Catalog) Contains(name string) bool {
	return slices.Contains(c.Categories, name)
}

// SearchURL is the Open Food Facts search returning up to PageSize products
// of the named category, as JSON. It returns "" for a name outside the
// catalog.
func (c Catalog) SearchURL(name string) string {
	if !c.Contains(name) {
		return ""
	}
	return fmt.Sprintf(
		"%s/cgi/search.pl?action=process&tagtype_0=categories&tag_contains_0=contains&tag_0=%s&page_size=%d&json=1",
		c.BaseURL, url.QueryEscape(name), c.PageSize,
	)
}

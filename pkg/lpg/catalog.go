package lpg

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/duynguyendang/mbe/pkg/common/errors"
)

// Catalog projection names.
const (
	ProjectionGeneralization      = "Generalization"
	ProjectionFeatureTyping       = "Feature Typing"
	ProjectionBanded              = "Banded"
	ProjectionPartFeaturing       = "Part Featuring"
	ProjectionExpressionFeaturing = "Expression Featuring"
	ProjectionExpressionInferred  = "Expression Inferred"
	ProjectionRedefinition        = "Redefinition"
	ProjectionPackageContainment  = "Package Containment"
)

//go:embed projections.yaml
var defaultCatalogYAML []byte

// Recipe is one named projection.
type Recipe struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Params      `yaml:",inline" json:"params"`
}

// Catalog maps projection names to recipes.
type Catalog struct {
	recipes map[string]Recipe
	order   []string
}

type catalogFile struct {
	Projections []Recipe `yaml:"projections"`
}

// LoadCatalog parses a YAML projection catalog.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: projection catalog: %v", errors.ErrInvalidInput, err)
	}
	c := &Catalog{recipes: make(map[string]Recipe, len(f.Projections))}
	for _, r := range f.Projections {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: projection without a name", errors.ErrInvalidInput)
		}
		if _, dup := c.recipes[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate projection %q", errors.ErrInvalidInput, r.Name)
		}
		c.recipes[r.Name] = r
		c.order = append(c.order, r.Name)
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Names returns the projection names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Recipes returns the recipes in catalog order.
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.recipes[n])
	}
	return out
}

// Get returns the recipe named name. Unknown names fail with ErrNotFound
// listing the available names, closest first.
func (c *Catalog) Get(name string) (Recipe, error) {
	if r, ok := c.recipes[name]; ok {
		return r, nil
	}
	return Recipe{}, fmt.Errorf("%w: projection %q (available: %s)",
		errors.ErrNotFound, name, strings.Join(c.Suggest(name), ", "))
}

// Suggest orders the catalog names by edit distance to name.
func (c *Catalog) Suggest(name string) []string {
	names := c.Names()
	lower := strings.ToLower(name)
	dist := make(map[string]int, len(names))
	for _, n := range names {
		dist[n] = levenshtein.Distance(lower, strings.ToLower(n), nil)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return dist[names[i]] < dist[names[j]]
	})
	return names
}

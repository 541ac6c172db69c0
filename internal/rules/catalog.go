package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for catalog operations.
var (
	// ErrRuleNotFound is returned when a rule id is not in the catalog.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule indicates two definitions share an id. Fatal at load.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrInvalidRule indicates a definition failed validation. Fatal at load.
	ErrInvalidRule = errors.New("invalid rule definition")
)

// Catalog is the immutable, validated set of all available rules.
// Lookup is by id; All returns rules in stable id order so that selection
// and planning never depend on definition order.
type Catalog struct {
	byID    map[string]Rule
	ordered []Rule
}

// NewCatalog validates the definitions and builds a catalog.
// Fails fast on duplicate ids, empty ids, and unknown categories.
func NewCatalog(defs []Rule) (*Catalog, error) {
	byID := make(map[string]Rule, len(defs))
	for _, r := range defs {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: empty id (title %q)", ErrInvalidRule, r.Title)
		}
		if !r.Category.Valid() {
			return nil, fmt.Errorf("%w: rule %q has unknown category %q", ErrInvalidRule, r.ID, r.Category)
		}
		if _, exists := byID[r.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, r.ID)
		}
		byID[r.ID] = r
	}

	ordered := make([]Rule, 0, len(byID))
	for _, r := range byID {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	return &Catalog{byID: byID, ordered: ordered}, nil
}

// LoadFile reads rule definitions from a YAML file and builds a catalog.
// An empty path yields the built-in default definitions.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(DefaultDefinitions())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file %s: %w", path, err)
	}

	var defs []Rule
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", path, err)
	}

	return NewCatalog(defs)
}

// Get returns the rule with the given id, or ErrRuleNotFound.
func (c *Catalog) Get(id string) (Rule, error) {
	r, ok := c.byID[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	return r, nil
}

// Has reports whether the catalog contains the given rule id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// All returns every rule in stable id order.
func (c *Catalog) All() []Rule {
	out := make([]Rule, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Mandatory returns the mandatory rules in stable id order.
func (c *Catalog) Mandatory() []Rule {
	var out []Rule
	for _, r := range c.ordered {
		if r.Mandatory {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

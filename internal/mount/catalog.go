package mount

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/OCAP2/parachute/internal/config"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is the set of mount variants known to the server.
type Catalog struct {
	types       []Type
	byName      map[string]int
	totalWeight int
}

type catalogFile struct {
	Types []Type `yaml:"types"`
}

// DefaultCatalog parses the catalog shipped with the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// CatalogFor loads the catalog named by cfg, or the default catalog when no
// file is configured.
func CatalogFor(cfg config.MountConfig) (*Catalog, error) {
	if cfg.CatalogFile == "" {
		return DefaultCatalog()
	}
	return LoadCatalogFile(cfg.CatalogFile)
}

// LoadCatalogFile parses a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mount catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog parses and validates a YAML catalog. Invalid catalogs wrap
// config.ErrInvalidConfig.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to parse mount catalog: %w", config.ErrInvalidConfig, err)
	}
	return NewCatalog(file.Types...)
}

// NewCatalog builds a catalog from types, filling in the default scale.
func NewCatalog(types ...Type) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(types))}
	for i, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: mount type #%d has no name", config.ErrInvalidConfig, i)
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate mount type %q", config.ErrInvalidConfig, t.Name)
		}
		if t.Model == "" {
			return nil, fmt.Errorf("%w: mount type %q has no model", config.ErrInvalidConfig, t.Name)
		}
		if t.Weight < 0 {
			return nil, fmt.Errorf("%w: mount type %q has negative weight", config.ErrInvalidConfig, t.Name)
		}
		if t.Scale == 0 {
			t.Scale = 1
		}
		c.byName[t.Name] = len(c.types)
		c.types = append(c.types, t)
		c.totalWeight += t.Weight
	}
	return c, nil
}

// Lookup returns the type registered under name.
func (c *Catalog) Lookup(name string) (Type, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Type{}, false
	}
	return c.types[i], true
}

// Types returns every type in catalog order.
func (c *Catalog) Types() []Type {
	out := make([]Type, len(c.types))
	copy(out, c.types)
	return out
}

// Models returns the distinct model identifiers of the catalog.
func (c *Catalog) Models() []string {
	seen := make(map[string]bool, len(c.types))
	var out []string
	for _, t := range c.types {
		if !seen[t.Model] {
			seen[t.Model] = true
			out = append(out, t.Model)
		}
	}
	return out
}

// Pick chooses a type at random, proportionally to weight.
func (c *Catalog) Pick(rng *rand.Rand) (Type, error) {
	if c.totalWeight == 0 {
		return Type{}, fmt.Errorf("%w: catalog has no weighted types", ErrUnknownType)
	}
	n := rng.IntN(c.totalWeight)
	for _, t := range c.types {
		if n < t.Weight {
			return t, nil
		}
		n -= t.Weight
	}
	// unreachable while totalWeight matches the slice
	return c.types[len(c.types)-1], nil
}

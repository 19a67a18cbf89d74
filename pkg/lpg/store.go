package lpg

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
)

// Config holds GraphStore settings.
type Config struct {
	// CacheSize bounds the number of memoized projections.
	CacheSize int
}

// DefaultConfig returns the default GraphStore configuration.
func DefaultConfig() Config {
	return Config{CacheSize: 128}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: CacheSize must be positive, got %d", errors.ErrInvalidInput, c.CacheSize)
	}
	return nil
}

// Store owns the base graph of a model and memoizes projections keyed by
// (graph version, normalized parameters).
type Store struct {
	mu      sync.RWMutex
	model   model.Store
	catalog *Catalog
	base    *Graph
	version uint64
	cache   *lru.Cache[string, *Graph]
}

// NewStore builds the base graph of m.
func NewStore(m model.Store, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *Graph](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create projection cache: %w", err)
	}
	s := &Store{
		model:   m,
		catalog: DefaultCatalog(),
		cache:   cache,
	}
	s.Rebuild()
	return s, nil
}

// WithCatalog replaces the projection catalog and purges the cache.
func (s *Store) WithCatalog(c *Catalog) *Store {
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
	s.cache.Purge()
	return s
}

// Attach rebuilds the graph whenever mem changes.
func (s *Store) Attach(mem *model.Memory) {
	mem.Subscribe(func(c model.Change) {
		slog.Debug("model changed, rebuilding graph", "ids", len(c.IDs))
		s.Rebuild()
	})
}

// Rebuild reconstructs the base graph, bumps the version and purges the
// projection cache.
func (s *Store) Rebuild() {
	g := Build(s.model.Elements())
	s.mu.Lock()
	s.base = g
	s.version++
	s.mu.Unlock()
	s.cache.Purge()
}

// Version increases on every rebuild.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Base returns the current base graph.
func (s *Store) Base() *Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Model returns the model the graph was built from.
func (s *Store) Model() model.Store {
	return s.model
}

// Catalog returns the projection catalog.
func (s *Store) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Adapt returns the memoized projection of the base graph for p. LookupMiss
// warnings travel with the graph, see Graph.Diagnostics.
func (s *Store) Adapt(p Params) *Graph {
	s.mu.RLock()
	base, version := s.base, s.version
	s.mu.RUnlock()

	key := fmt.Sprintf("%d|%s", version, p.Key())
	if g, ok := s.cache.Get(key); ok {
		return g
	}
	g := Adapt(base, p, s.model)
	s.cache.Add(key, g)
	return g
}

// GetProjection returns the catalog projection named name, optionally
// restricted to the given packages.
func (s *Store) GetProjection(name string, packages ...string) (*Graph, error) {
	r, err := s.Catalog().Get(name)
	if err != nil {
		return nil, err
	}
	p := r.Params
	if len(packages) > 0 {
		p = p.WithPackages(packages...)
	}
	return s.Adapt(p), nil
}

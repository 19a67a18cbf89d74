package manager

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/ingest"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/multiplicity"
	"github.com/duynguyendang/mbe/pkg/store"
)

// ProjectMetadata represents the project information exposed by the API.
type ProjectMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"` // "directory", "snapshot" or "memory"
}

const (
	MaxOpenModels  = 10
	ProjectListTTL = 1 * time.Minute
)

// Project is a loaded model with its graph store and resolver. Graphs and
// Resolver are shared by every request for the project.
type Project struct {
	ID       string
	Metadata *ingest.ProjectMetadata
	Model    *model.Memory
	Graphs   *lpg.Store
	Resolver *multiplicity.Resolver
	LoadedAt time.Time
}

// Options configures the per-project engine components.
type Options struct {
	Graphs       lpg.Config
	Multiplicity multiplicity.Config
}

// DefaultOptions returns the package defaults of each component.
func DefaultOptions() Options {
	return Options{Graphs: lpg.DefaultConfig(), Multiplicity: multiplicity.DefaultConfig()}
}

// ModelManager loads projects on demand and keeps the most recently used
// ones in an LRU. Projects come from sub-directories of baseDir, from the
// snapshot store, or from Register.
type ModelManager struct {
	baseDir   string
	snapshots *store.Store
	opts      Options

	projects *lru.Cache[string, *Project]
	pinned   map[string]*Project

	mu            sync.RWMutex
	cachedList    []ProjectMetadata
	lastListBuild time.Time
}

// NewModelManager creates a manager. baseDir may be empty and snapshots
// may be nil.
func NewModelManager(baseDir string, snapshots *store.Store, opts Options) *ModelManager {
	cache, _ := lru.New[string, *Project](MaxOpenModels)
	return &ModelManager{
		baseDir:   baseDir,
		snapshots: snapshots,
		opts:      opts,
		projects:  cache,
		pinned:    map[string]*Project{},
	}
}

// Register adds an in-memory model under id. Registered projects are never
// evicted.
func (mm *ModelManager) Register(id string, m *model.Memory, meta *ingest.ProjectMetadata) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing project ID", errors.ErrInvalidInput)
	}
	if meta == nil {
		meta = &ingest.ProjectMetadata{Name: id}
	}
	p, err := mm.build(id, m, meta)
	if err != nil {
		return nil, err
	}
	mm.mu.Lock()
	mm.pinned[id] = p
	mm.cachedList = nil
	mm.mu.Unlock()
	return p, nil
}

// GetProject retrieves a project by ID, loading it if necessary.
func (mm *ModelManager) GetProject(ctx context.Context, id string) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing project ID", errors.ErrInvalidInput)
	}
	mm.mu.RLock()
	p, ok := mm.pinned[id]
	mm.mu.RUnlock()
	if ok {
		return p, nil
	}
	// lru.Get updates recency
	if p, ok := mm.projects.Get(id); ok {
		return p, nil
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	// Double-check under lock
	if p, ok := mm.projects.Get(id); ok {
		return p, nil
	}

	p, err := mm.load(ctx, id)
	if err != nil {
		return nil, err
	}
	mm.projects.Add(id, p)
	return p, nil
}

func (mm *ModelManager) load(ctx context.Context, id string) (*Project, error) {
	if mm.snapshots != nil {
		elems, err := mm.snapshots.LoadElements(id)
		if err == nil {
			return mm.build(id, model.NewMemory(elems...), &ingest.ProjectMetadata{Name: id})
		}
		if !stderrors.Is(err, errors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", errors.ErrInternal, err)
		}
	}
	if mm.baseDir != "" {
		dir := filepath.Join(mm.baseDir, id)
		if _, err := os.Stat(dir); err == nil {
			lp, err := ingest.LoadDir(ctx, dir)
			if err != nil {
				return nil, fmt.Errorf("failed to load project %s: %w", id, err)
			}
			return mm.build(id, lp.Memory(), lp.Metadata)
		}
	}
	return nil, fmt.Errorf("%w: project %s", errors.ErrNotFound, id)
}

func (mm *ModelManager) build(id string, m *model.Memory, meta *ingest.ProjectMetadata) (*Project, error) {
	graphs, err := lpg.NewStore(m, mm.opts.Graphs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	graphs.Attach(m)
	resolver, err := multiplicity.NewResolver(graphs, mm.opts.Multiplicity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	return &Project{ID: id, Metadata: meta, Model: m, Graphs: graphs, Resolver: resolver, LoadedAt: time.Now()}, nil
}

// ListProjects returns a list of available projects.
func (mm *ModelManager) ListProjects() ([]ProjectMetadata, error) {
	mm.mu.RLock()
	if time.Since(mm.lastListBuild) < ProjectListTTL && mm.cachedList != nil {
		// Return copy to be safe
		list := make([]ProjectMetadata, len(mm.cachedList))
		copy(list, mm.cachedList)
		mm.mu.RUnlock()
		return list, nil
	}
	mm.mu.RUnlock()

	mm.mu.Lock()
	defer mm.mu.Unlock()

	// Double-check
	if time.Since(mm.lastListBuild) < ProjectListTTL && mm.cachedList != nil {
		list := make([]ProjectMetadata, len(mm.cachedList))
		copy(list, mm.cachedList)
		return list, nil
	}

	seen := map[string]bool{}
	var projects []ProjectMetadata
	for id, p := range mm.pinned {
		seen[id] = true
		projects = append(projects, ProjectMetadata{ID: id, Name: p.Metadata.Name, Description: p.Metadata.Description, Source: "memory"})
	}
	if mm.snapshots != nil {
		snaps, err := mm.snapshots.Projects()
		if err != nil {
			return nil, err
		}
		for _, s := range snaps {
			if seen[s.Project] {
				continue
			}
			seen[s.Project] = true
			projects = append(projects, ProjectMetadata{ID: s.Project, Name: s.Project, Source: "snapshot"})
		}
	}
	if mm.baseDir != "" {
		entries, err := os.ReadDir(mm.baseDir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			id := entry.Name()
			if !entry.IsDir() || seen[id] {
				continue
			}
			meta := ProjectMetadata{ID: id, Name: id, Source: "directory"}
			// Try to read project.yaml
			if pm, err := ingest.LoadProjectMetadata(filepath.Join(mm.baseDir, id, ingest.MetadataFile)); err == nil {
				if pm.Name != "" {
					meta.Name = pm.Name
				}
				meta.Description = pm.Description
			}
			projects = append(projects, meta)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })

	mm.cachedList = projects
	mm.lastListBuild = time.Now()

	return projects, nil
}

// CloseAll drops every loaded project.
func (mm *ModelManager) CloseAll() {
	mm.projects.Purge()
	mm.mu.Lock()
	mm.pinned = map[string]*Project{}
	mm.cachedList = nil
	mm.mu.Unlock()
}

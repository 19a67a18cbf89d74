package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/store"
)

const MaxWorkers = 8

// MetadataFile is the optional project descriptor read by LoadDir.
const MetadataFile = "project.yaml"

// Project is a loaded model directory.
type Project struct {
	Metadata *ProjectMetadata
	Elements []*model.Element
	Files    []string
}

// Memory returns a model store holding the project's elements.
func (p *Project) Memory() *model.Memory {
	return model.NewMemory(p.Elements...)
}

// LoadFiles decodes the JSON model files concurrently and concatenates
// their elements in the order of paths. An element id that appears again in
// a later file replaces the earlier definition in place.
func LoadFiles(ctx context.Context, paths []string) ([]*model.Element, error) {
	parts := make([][]*model.Element, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			elems, err := loadFile(path)
			if err != nil {
				return err
			}
			parts[i] = elems
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*model.Element
	index := map[string]int{}
	for i, elems := range parts {
		for _, e := range elems {
			if at, ok := index[e.ID]; ok {
				slog.Warn("duplicate element id, keeping the later definition", "id", e.ID, "file", paths[i])
				out[at] = e
				continue
			}
			index[e.ID] = len(out)
			out = append(out, e)
		}
	}
	slog.Debug("model files loaded", "files", len(paths), "elements", len(out))
	return out, nil
}

func loadFile(path string) ([]*model.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	elems, err := model.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return elems, nil
}

// LoadDir loads every *.json file under dir. When dir holds a project.yaml
// listing files, only those are loaded, in that order; otherwise files are
// loaded in lexical path order.
func LoadDir(ctx context.Context, dir string) (*Project, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrNotFound, err)
	}
	if !info.IsDir() {
		elems, err := LoadFiles(ctx, []string{dir})
		if err != nil {
			return nil, err
		}
		return &Project{Metadata: &ProjectMetadata{Name: projectName(dir)}, Elements: elems, Files: []string{dir}}, nil
	}

	meta := &ProjectMetadata{Name: filepath.Base(dir)}
	metaPath := filepath.Join(dir, MetadataFile)
	if _, err := os.Stat(metaPath); err == nil {
		if meta, err = LoadProjectMetadata(metaPath); err != nil {
			return nil, err
		}
		if meta.Name == "" {
			meta.Name = filepath.Base(dir)
		}
	}

	var files []string
	if len(meta.Files) > 0 {
		for _, f := range meta.Files {
			files = append(files, filepath.Join(dir, f))
		}
	} else if files, err = walk(dir); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no model files in %s", errors.ErrInvalidInput, dir)
	}

	elems, err := LoadFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	return &Project{Metadata: meta, Elements: elems, Files: files}, nil
}

func walk(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isSupportedFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Run loads dir and writes its elements to s under project. An empty
// project uses the name from project.yaml or the directory name.
func Run(ctx context.Context, s *store.Store, project, dir string) (*Project, error) {
	p, err := LoadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	if project == "" {
		project = p.Metadata.Name
	}
	if err := s.PutElements(project, p.Elements); err != nil {
		return nil, err
	}
	slog.Info("model imported", "project", project, "files", len(p.Files), "elements", len(p.Elements))
	return p, nil
}

func isSupportedFile(path string) bool {
	return filepath.Ext(path) == ".json"
}

func projectName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func workers() int {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}

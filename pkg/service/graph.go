package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/duynguyendang/mbe/internal/manager"
	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/datalog"
	"github.com/duynguyendang/mbe/pkg/export"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// ProjectManager interface abstraction
type ProjectManager interface {
	GetProject(ctx context.Context, projectID string) (*manager.Project, error)
	ListProjects() ([]manager.ProjectMetadata, error)
}

// GraphService handles projection, query and path operations.
type GraphService struct {
	manager ProjectManager
}

// NewGraphService creates a new GraphService.
func NewGraphService(manager ProjectManager) *GraphService {
	return &GraphService{manager: manager}
}

// ListProjects returns a list of available projects.
func (s *GraphService) ListProjects() ([]manager.ProjectMetadata, error) {
	return s.manager.ListProjects()
}

// ListProjections returns the catalog of a project, or the default catalog
// when projectID is empty.
func (s *GraphService) ListProjections(ctx context.Context, projectID string) ([]lpg.Recipe, error) {
	if projectID == "" {
		return lpg.DefaultCatalog().Recipes(), nil
	}
	p, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Graphs.Catalog().Recipes(), nil
}

// Projection returns the named projection, optionally restricted to
// packages. An empty name selects the base graph.
func (s *GraphService) Projection(ctx context.Context, projectID, name string, packages []string) (*lpg.Graph, error) {
	p, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return p.Graphs.Base(), nil
	}
	return p.Graphs.GetProjection(name, packages...)
}

// ExportProjection renders a projection as a D3 graph.
func (s *GraphService) ExportProjection(ctx context.Context, projectID, name string, packages []string) (*export.D3Graph, error) {
	g, err := s.Projection(ctx, projectID, name, packages)
	if err != nil {
		return nil, err
	}
	p, _ := s.getProject(ctx, projectID)
	return export.NewD3Transformer(p.Model).FromGraph(g), nil
}

// ExecuteQuery evaluates a query over a projection of a project.
func (s *GraphService) ExecuteQuery(ctx context.Context, projectID, projection, query string, limit int) (*datalog.Result, error) {
	g, err := s.Projection(ctx, projectID, projection, nil)
	if err != nil {
		return nil, err
	}
	return datalog.Query(g, query, limit)
}

// ExportQuery executes a query and transforms the results into a D3 graph.
func (s *GraphService) ExportQuery(ctx context.Context, projectID, projection, query string) (*export.D3Graph, error) {
	res, err := s.ExecuteQuery(ctx, projectID, projection, query, 0)
	if err != nil {
		return nil, err
	}
	p, _ := s.getProject(ctx, projectID)
	return export.NewD3Transformer(p.Model).Transform(query, res)
}

// RollupResult is the effective multiplicity of one feature.
type RollupResult struct {
	Feature       string `json:"feature"`
	Lower         int    `json:"lower"`
	Upper         int    `json:"upper"`
	DeclaredLower int    `json:"declaredLower"`
	DeclaredUpper int    `json:"declaredUpper"`
}

// Rollup computes the effective bounds of featureID.
func (s *GraphService) Rollup(ctx context.Context, projectID, featureID string) (*RollupResult, error) {
	p, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Model.Element(featureID); !ok {
		return nil, fmt.Errorf("%w: element %s", errors.ErrNotFound, featureID)
	}
	lo, err := p.Resolver.Rollup(featureID, model.Lower)
	if err != nil {
		return nil, err
	}
	hi, err := p.Resolver.Rollup(featureID, model.Upper)
	if err != nil {
		return nil, err
	}
	return &RollupResult{
		Feature:       featureID,
		Lower:         lo,
		Upper:         hi,
		DeclaredLower: p.Resolver.Declared(featureID, model.Lower),
		DeclaredUpper: p.Resolver.Declared(featureID, model.Upper),
	}, nil
}

// FindPath returns the union of the shortest paths between two elements
// of a projection, as a D3 graph. No path yields an empty graph.
func (s *GraphService) FindPath(ctx context.Context, projectID, projection, from, to string) (*export.D3Graph, error) {
	g, err := s.Projection(ctx, projectID, projection, nil)
	if err != nil {
		return nil, err
	}
	from, to = strings.Trim(from, "\""), strings.Trim(to, "\"")
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: both endpoints are required", errors.ErrInvalidInput)
	}
	p, _ := s.getProject(ctx, projectID)
	return export.NewD3Transformer(p.Model).FromGraph(lpg.PathGraph(g, from, to)), nil
}

// Neighborhood returns the elements within radius hops of center.
func (s *GraphService) Neighborhood(ctx context.Context, projectID, projection, center string, radius int) (*export.D3Graph, error) {
	if radius <= 0 {
		radius = 1
	}
	g, err := s.Projection(ctx, projectID, projection, nil)
	if err != nil {
		return nil, err
	}
	p, _ := s.getProject(ctx, projectID)
	return export.NewD3Transformer(p.Model).FromGraph(lpg.SpanningGraph(g, center, radius)), nil
}

// Summary describes the size and shape of a project's model.
type Summary struct {
	Project     string         `json:"project"`
	Name        string         `json:"name"`
	Elements    int            `json:"elements"`
	Nodes       int            `json:"nodes"`
	Edges       int            `json:"edges"`
	Metatypes   map[string]int `json:"metatypes"`
	Relations   map[string]int `json:"relations"`
	Roots       []string       `json:"roots"`
	Projections []string       `json:"projections"`
}

// GenerateSummary generates a project summary.
func (s *GraphService) GenerateSummary(ctx context.Context, projectID string) (*Summary, error) {
	p, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	base := p.Graphs.Base()
	nodeLabels, edgeLabels := base.Labels()

	ownership, err := p.Graphs.GetProjection(lpg.ProjectionPackageContainment)
	if err != nil {
		return nil, err
	}
	var roots []string
	for _, i := range ownership.Roots() {
		roots = append(roots, ownership.ID(i))
	}
	sort.Strings(roots)

	return &Summary{
		Project:     projectID,
		Name:        p.Metadata.Name,
		Elements:    len(p.Model.Elements()),
		Nodes:       base.NodeCount(),
		Edges:       base.EdgeCount(),
		Metatypes:   nodeLabels,
		Relations:   edgeLabels,
		Roots:       roots,
		Projections: p.Graphs.Catalog().Names(),
	}, nil
}

// Helper to get a project with error mapping
func (s *GraphService) getProject(ctx context.Context, projectID string) (*manager.Project, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: missing project ID", errors.ErrInvalidInput)
	}
	p, err := s.manager.GetProject(ctx, projectID)
	if err != nil {
		if errors.IsKnown(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return p, nil
}

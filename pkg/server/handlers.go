package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/service"
)

// handleProjects returns a list of available projects.
func (s *Server) handleProjects(c *gin.Context) {
	projects, err := s.graphService.ListProjects()
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// handleProjections lists the projection catalog, of a project when
// ?project= is given.
func (s *Server) handleProjections(c *gin.Context) {
	recipes, err := s.graphService.ListProjections(c.Request.Context(), c.Query("project"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// handleProjection returns a named projection as a D3 graph.
// GET /v1/projection?project=X&name=Banded&package=P&package=Q
func (s *Server) handleProjection(c *gin.Context) {
	projectID := c.Query("project")
	if projectID == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing project ID", nil))
		return
	}
	graph, err := s.graphService.ExportProjection(c.Request.Context(), projectID, c.Query("name"), c.QueryArray("package"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handleInterpret builds a population for a project.
func (s *Server) handleInterpret(c *gin.Context) {
	var req struct {
		Project string `json:"project"`
		service.InterpretRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}
	if req.Project == "" {
		req.Project = c.Query("project")
	}
	if req.Project == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing project ID", nil))
		return
	}

	run, err := s.interpretService.Interpret(c.Request.Context(), req.Project, req.InterpretRequest)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleQuery evaluates a query over a projection and returns the rows,
// or a D3 graph of the matched edges unless ?raw=true.
func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		Query      string `json:"query"`
		Projection string `json:"projection"`
		Limit      int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid request body", err))
		return
	}

	// If query is empty, return empty graph to prevent frontend crashes
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusOK, gin.H{"nodes": []any{}, "links": []any{}})
		return
	}

	projectID := c.Query("project")
	if req.Projection == "" {
		req.Projection = c.Query("projection")
	}

	if c.Query("raw") == "true" {
		res, err := s.graphService.ExecuteQuery(c.Request.Context(), projectID, req.Projection, req.Query, req.Limit)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	graph, err := s.graphService.ExportQuery(c.Request.Context(), projectID, req.Projection, req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handlePath returns the shortest paths between two elements of a
// projection.
// GET /v1/path?project=X&projection=Banded&source=a&target=b
func (s *Server) handlePath(c *gin.Context) {
	projectID := c.Query("project")
	source := c.Query("source")
	target := c.Query("target")

	if projectID == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing project ID", nil))
		return
	}
	if source == "" || target == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing source/target parameters", nil))
		return
	}

	graph, err := s.graphService.FindPath(c.Request.Context(), projectID, c.Query("projection"), source, target)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

// handleRollup returns the effective multiplicity of a feature.
func (s *Server) handleRollup(c *gin.Context) {
	projectID := c.Query("project")
	feature := c.Query("feature")
	if projectID == "" || feature == "" {
		handleError(c, errors.NewAppError(http.StatusBadRequest, "Missing project or feature parameter", nil))
		return
	}

	res, err := s.graphService.Rollup(c.Request.Context(), projectID, feature)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleSummary describes a project, or the neighborhood of ?center=
// within ?radius= hops of the Banded projection.
func (s *Server) handleSummary(c *gin.Context) {
	projectID := c.Query("project")
	if center := c.Query("center"); center != "" {
		radius, err := strconv.Atoi(c.DefaultQuery("radius", "1"))
		if err != nil {
			handleError(c, errors.NewAppError(http.StatusBadRequest, "Invalid radius", err))
			return
		}
		graph, err := s.graphService.Neighborhood(c.Request.Context(), projectID, c.DefaultQuery("projection", lpg.ProjectionBanded), center, radius)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, graph)
		return
	}

	summary, err := s.graphService.GenerateSummary(c.Request.Context(), projectID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleError helper
func handleError(c *gin.Context, err error) {
	appErr := errors.MapError(err)
	body := gin.H{"error": appErr.Message}
	if appErr.Err != nil {
		body["detail"] = appErr.Err.Error()
	}
	c.JSON(appErr.Code, body)
}

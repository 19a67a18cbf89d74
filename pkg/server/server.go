package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duynguyendang/mbe/pkg/service"
)

// Server holds the state for the REST API server.
type Server struct {
	graphService     *service.GraphService
	interpretService *service.InterpretationService
	router           *gin.Engine
}

// NewServer creates a new Server instance.
func NewServer(graphs *service.GraphService, interpretations *service.InterpretationService) *Server {
	r := gin.Default()
	s := &Server{
		graphService:     graphs,
		interpretService: interpretations,
		router:           r,
	}
	s.setupRoutes()
	return s
}

// Run starts the server on the specified address.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router, mostly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	v1 := s.router.Group("/v1")
	v1.GET("/projects", s.handleProjects)
	v1.GET("/projections", s.handleProjections)
	v1.GET("/projection", s.handleProjection)
	v1.POST("/interpret", s.handleInterpret)
	v1.POST("/query", s.handleQuery)
	v1.GET("/path", s.handlePath)
	v1.GET("/rollup", s.handleRollup)
	v1.GET("/summary", s.handleSummary)
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

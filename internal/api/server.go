// Package api serves a read-only dashboard over the reconciliation run
// history. It never triggers remote calls; syncs run from the CLI.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mkuiper/donorsync/internal/infrastructure/storage"
)

// Server is the HTTP API over the run-history database.
type Server struct {
	storage *storage.Storage
	logger  *slog.Logger
}

// NewServer creates a new API server.
func NewServer(store *storage.Storage, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		storage: store,
		logger:  logger,
	}
}

// Router builds the gin router with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	}))

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", s.getHealth)
		apiGroup.GET("/stats", s.getStats)
		apiGroup.GET("/runs", s.getRuns)
		apiGroup.GET("/runs/:id", s.getRun)
	}

	return router
}

// Run starts the server on the given port.
func (s *Server) Run(port string) error {
	s.logger.Info("starting dashboard API", "port", port)
	return s.Router().Run(":" + port)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.storage.GetStats()
	if err != nil {
		s.logger.Error("failed to fetch stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, _ := strconv.Atoi(limitStr)
	if limit <= 0 {
		limit = 20
	}

	runs, err := s.storage.RecentRuns(limit)
	if err != nil {
		s.logger.Error("failed to fetch runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

// runDetail is a run together with its per-donor outcomes.
type runDetail struct {
	*storage.Run
	Donors []*storage.DonorOutcome `json:"donors"`
}

func (s *Server) getRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	run, err := s.storage.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	donors, err := s.storage.DonorOutcomesByRun(runID)
	if err != nil {
		s.logger.Error("failed to fetch donor outcomes", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch donor outcomes"})
		return
	}
	if donors == nil {
		donors = []*storage.DonorOutcome{}
	}

	c.JSON(http.StatusOK, runDetail{Run: run, Donors: donors})
}

package api

import (
	"errors"
	"net/http"

	"halwakitchen/internal/auth"
	"halwakitchen/internal/batch"
	"halwakitchen/internal/catalog"
	"halwakitchen/internal/live"
	"halwakitchen/internal/models"
	"halwakitchen/internal/monitoring"
	"halwakitchen/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// Server wires the engine services onto HTTP.
type Server struct {
	router    *gin.Engine
	catalog   *catalog.Service
	batches   *batch.Service
	validator *validation.Service
	metrics   *monitoring.Collector
	hub       *live.Hub
	jwtSecret string
}

// NewServer creates the API server and registers all routes.
func NewServer(cat *catalog.Service, batches *batch.Service, validator *validation.Service,
	metrics *monitoring.Collector, hub *live.Hub, jwtSecret string) *Server {
	s := &Server{
		router:    gin.Default(),
		catalog:   cat,
		batches:   batches,
		validator: validator,
		metrics:   metrics,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
	s.setupRoutes()
	return s
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Best-effort stopwatch event feed for reporting consumers.
	s.router.GET("/ws", s.hub.Handle)

	v1 := s.router.Group("/api/v1")
	v1.Use(auth.Middleware(s.jwtSecret))
	{
		// Process type registry
		v1.POST("/process-types", s.createProcessType)
		v1.GET("/process-types", s.listProcessTypes)
		v1.GET("/process-types/:id", s.getProcessType)
		v1.PUT("/process-types/:id", s.updateProcessType)
		v1.DELETE("/process-types/:id", s.deleteProcessType)

		// Product template catalog
		v1.POST("/product-templates", s.createProductTemplate)
		v1.GET("/product-templates", s.listProductTemplates)
		v1.GET("/product-templates/:id", s.getProductTemplate)
		v1.PUT("/product-templates/:id", s.updateProductTemplate)
		v1.DELETE("/product-templates/:id", s.deleteProductTemplate)

		// Template step mappings
		v1.GET("/product-templates/:id/steps", s.listSteps)
		v1.POST("/product-templates/:id/steps", s.createStep)
		v1.PUT("/product-templates/:id/steps", s.upsertStep)
		v1.POST("/product-templates/:id/steps/reorder", s.reorderSteps)
		v1.DELETE("/product-templates/:id/steps/:stepID", s.deleteStep)

		// Batch lifecycle
		v1.POST("/batches", s.createBatch)
		v1.GET("/batches", s.listBatches)
		v1.GET("/batches/:id", s.getBatch)
		v1.DELETE("/batches/:id", s.deleteBatch)
		v1.GET("/batches/:id/steps", s.listBatchSteps)
		v1.POST("/batches/:id/finish", s.finishBatch)
		v1.POST("/batches/:id/validate", s.validateBatch)

		// Stopwatch
		v1.POST("/steps/:id/start", s.startStep)
		v1.POST("/steps/:id/stop", s.stopStep)
	}
}

// fail maps engine errors onto HTTP statuses with gin.H error bodies.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrAuthenticationRequired):
		status = http.StatusUnauthorized
	case gorm.IsRecordNotFoundError(err) || errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrCrossProductMismatch),
		errors.Is(err, models.ErrProcessTypeInactive):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrDuplicateMapping),
		errors.Is(err, models.ErrStepAlreadyStarted),
		errors.Is(err, models.ErrStepAlreadyStopped),
		errors.Is(err, models.ErrStepNotStarted),
		errors.Is(err, models.ErrAlreadyValidated),
		errors.Is(err, models.ErrBatchNotInProgress),
		errors.Is(err, models.ErrBatchNotCompleted):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

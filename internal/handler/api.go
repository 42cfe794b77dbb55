package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fannotate/internal/codebook"
	"fannotate/internal/llm"
	"fannotate/internal/models"
	"fannotate/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests.
type Handler struct {
	annotator *service.Annotator
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(annotator *service.Annotator, logger *zap.Logger) *Handler {
	return &Handler{
		annotator: annotator,
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// Codebook
		api.GET("/codebook", h.GetCodebook)
		api.POST("/codebook/attributes", h.AddAttribute)
		api.POST("/codebook/attributes/:name/categories", h.AddCategory)
		api.DELETE("/codebook/attributes/:name", h.RemoveAttribute)
		api.POST("/codebook/upload", h.UploadCodebook)
		api.GET("/codebook/download", h.DownloadCodebook)

		// Dataset and review
		api.POST("/dataset", h.LoadDataset)
		api.GET("/rows", h.GetRows)
		api.GET("/rows/:id", h.GetRow)
		api.PUT("/rows/:id/review", h.Review)

		// Engine settings
		api.GET("/settings/llm", h.GetSettings)
		api.PUT("/settings/llm", h.ApplySettings)

		// Auto-fill
		api.POST("/autofill", h.Autofill)
		api.GET("/jobs/:id", h.GetJobStatus)

		// Agreement analysis
		api.GET("/agreement/:attribute", h.GetAgreement)

		// Export
		api.GET("/export/csv", h.ExportCSV)
		api.GET("/export/json", h.ExportJSON)
	}

	r.GET("/health", h.HealthCheck)
}

func schemaStatus(err error) int {
	switch {
	case errors.Is(err, codebook.ErrAttributeNotFound):
		return http.StatusNotFound
	case errors.Is(err, codebook.ErrDuplicateAttribute),
		errors.Is(err, codebook.ErrDuplicateCategory),
		errors.Is(err, codebook.ErrEmptyField):
		return http.StatusConflict
	case errors.Is(err, service.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// GetCodebook returns the current codebook.
func (h *Handler) GetCodebook(c *gin.Context) {
	cb, err := h.annotator.Codebook()
	if err != nil {
		h.logger.Error("Failed to load codebook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load codebook"})
		return
	}
	c.JSON(http.StatusOK, cb)
}

// AddAttribute adds a new attribute to the codebook.
func (h *Handler) AddAttribute(c *gin.Context) {
	var req models.AttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cb, err := h.annotator.CodebookStore().AddAttribute(
		req.Name, req.Description, req.Type, req.InstructionStart, req.InstructionEnd)
	if err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Successfully added attribute: " + req.Name,
		"codebook": cb,
	})
}

// AddCategory adds a category to an existing attribute.
func (h *Handler) AddCategory(c *gin.Context) {
	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attributeName := c.Param("name")
	cb, err := h.annotator.CodebookStore().AddCategory(attributeName, req.Category, req.Description, req.Icon)
	if err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Successfully added category '" + req.Category + "'",
		"codebook": cb,
	})
}

// RemoveAttribute deletes an attribute and rewrites the codebook file.
func (h *Handler) RemoveAttribute(c *gin.Context) {
	name := c.Param("name")
	cb, err := h.annotator.CodebookStore().RemoveAttribute(name)
	if err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Successfully removed attribute: " + name,
		"codebook": cb,
	})
}

// UploadCodebook validates and installs an uploaded codebook file.
func (h *Handler) UploadCodebook(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no codebook uploaded"})
		return
	}
	defer file.Close()

	cb, err := h.annotator.CodebookStore().Replace(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Codebook uploaded and loaded successfully",
		"codebook": cb,
	})
}

// DownloadCodebook serves the codebook JSON file.
func (h *Handler) DownloadCodebook(c *gin.Context) {
	store := h.annotator.CodebookStore()
	if !store.Exists() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no codebook to download"})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=codebook.json")
	c.File(store.Path())
}

// LoadDataset replaces the working dataset.
func (h *Handler) LoadDataset(c *gin.Context) {
	var req models.DatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.annotator.LoadDataset(req.Name, req.Texts); err != nil {
		h.logger.Error("Failed to load dataset", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dataset"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Dataset loaded successfully",
		"rows":    len(req.Texts),
	})
}

// GetRows returns the working dataset.
func (h *Handler) GetRows(c *gin.Context) {
	rows, err := h.annotator.Rows()
	if err != nil {
		h.logger.Error("Failed to get rows", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get rows"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":  rows,
		"total": len(rows),
	})
}

// GetRow returns one row.
func (h *Handler) GetRow(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row id"})
		return
	}
	row, err := h.annotator.Row(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

// Review records a human annotation for one row.
func (h *Handler) Review(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row id"})
		return
	}

	var req models.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.annotator.Review(id, req.Attribute, req.Value); err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Saved " + req.Value + " for " + req.Attribute,
	})
}

// GetSettings returns the current engine configuration.
func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.annotator.Settings())
}

// ApplySettings replaces the engine configuration wholesale.
func (h *Handler) ApplySettings(c *gin.Context) {
	var cfg llm.EngineConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.annotator.ApplySettings(cfg)
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully"})
}

// Autofill starts a batch annotation job.
func (h *Handler) Autofill(c *gin.Context) {
	var req models.AutofillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.annotator.Autofill(req.Attribute)
	if err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  models.JobPending,
		"message": "Auto-fill started. Check /api/v1/jobs/" + jobID + " for status",
	})
}

// GetJobStatus returns batch job progress.
func (h *Handler) GetJobStatus(c *gin.Context) {
	job, err := h.annotator.JobStatus(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetAgreement returns agreement metrics for one attribute.
func (h *Handler) GetAgreement(c *gin.Context) {
	metrics, err := h.annotator.Agreement(c.Request.Context(), c.Param("attribute"))
	if err != nil {
		c.JSON(schemaStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// ExportCSV exports the working table as CSV.
func (h *Handler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=annotations.csv")

	if err := h.annotator.ExportCSV(c.Writer); err != nil {
		h.logger.Error("Failed to export CSV", zap.Error(err))
	}
}

// ExportJSON exports the working table as JSON.
func (h *Handler) ExportJSON(c *gin.Context) {
	rows, err := h.annotator.Rows()
	if err != nil {
		h.logger.Error("Failed to export JSON", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=annotations.json")

	encoder := json.NewEncoder(c.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		h.logger.Error("Failed to export JSON", zap.Error(err))
	}
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "fannotate",
		"version": "1.0.0",
	})
}

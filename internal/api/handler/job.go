package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quernlabs/quern/internal/domain"
	"github.com/quernlabs/quern/internal/logger"
	"github.com/quernlabs/quern/internal/service"
)

// JobHandler handles build submission and job ledger endpoints.
type JobHandler struct {
	orchestrator *service.Orchestrator
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - orchestrator: build orchestrator instance.
//
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(orchestrator *service.Orchestrator) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
	}
}

// BuildEngineRequest represents the build submission API request.
type BuildEngineRequest struct {
	DocumentRef string `json:"document_ref" binding:"required"`
	EngineName  string `json:"engine_name" binding:"required"`
	LLMType     string `json:"llm_type"`
	OwnerID     string `json:"owner_id" binding:"required"`
	IsPublic    bool   `json:"is_public"`
}

// BuildEngineResponse returns the handle for an accepted build job.
type BuildEngineResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// BuildEngine handles POST /api/v1/engines. It accepts the build, returns the
// job handle immediately, and leaves the work to run in the background; the
// job endpoints are how clients follow progress.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) BuildEngine(c *gin.Context) {
	ctx := c.Request.Context()

	var req BuildEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid build request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	job, err := h.orchestrator.Submit(ctx, &service.BuildRequest{
		DocumentRef: req.DocumentRef,
		EngineName:  req.EngineName,
		LLMType:     req.LLMType,
		OwnerID:     req.OwnerID,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, BuildEngineResponse{
		JobID:  job.ID,
		Status: "accepted",
	})
}

// GetJob handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job ID is required"})
		return
	}

	job, err := h.orchestrator.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel. Cancellation is
// cooperative: the response confirms the request was recorded, and the job
// reaches a terminal state when its worker observes the flag.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job ID is required"})
		return
	}

	if err := h.orchestrator.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  id,
		"message": "Cancellation requested",
	})
}

// ListJobs handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *JobHandler) ListJobs(c *gin.Context) {
	status := domain.JobStatus(c.Query("status"))
	jobType := domain.JobType(c.Query("type"))

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.orchestrator.ListJobs(c.Request.Context(), status, jobType, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

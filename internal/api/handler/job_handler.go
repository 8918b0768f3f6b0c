package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/repository"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/service"
)

// JobHandler serves the job API of the backend contract.
type JobHandler struct {
	repo   *repository.JobRepository
	runner *service.Runner
	logger *logger.Logger
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - repo: job store.
//   - runner: simulated pipeline runner.
//   - log: logger instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(repo *repository.JobRepository, runner *service.Runner, log *logger.Logger) *JobHandler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &JobHandler{repo: repo, runner: runner, logger: log}
}

// CreateJobRequest represents the job submission body.
type CreateJobRequest struct {
	ScriptID string `json:"script_id" binding:"required"`
	JobType  string `json:"job_type"`
	RowLimit *int64 `json:"row_limit"`
}

// PreviewRequest represents the preview body.
type PreviewRequest struct {
	ScriptIDs []string `json:"script_ids" binding:"required,min=1"`
	RowLimit  *int64   `json:"row_limit"`
}

// ListJobs handles GET /jobs with offset/limit paging, most recent first.
func (h *JobHandler) ListJobs(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// CreateJob handles POST /jobs. One job runs at a time.
func (h *JobHandler) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid job request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.runner.Busy() {
		c.JSON(http.StatusConflict, gin.H{"error": "a job is already running"})
		return
	}

	kind := domain.JobKind(req.JobType)
	switch kind {
	case domain.JobKindPreview, domain.JobKindSingle, domain.JobKindCombined:
	case "":
		kind = domain.JobKindSingle
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job_type: " + req.JobType})
		return
	}

	job, err := h.runner.StartJob(ctx, req.ScriptID, kind, req.RowLimit)
	if err != nil {
		logger.CtxError(ctx, "Failed to start job: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Job started: job_id=%s, script_id=%s, kind=%s", job.ID, req.ScriptID, kind)
	c.JSON(http.StatusCreated, job)
}

// CancelJob handles POST /jobs/:id/cancel. It only flags the job; the
// runner observes the flag at the next batch boundary, and observers see
// the cancelled status through their normal poll.
func (h *JobHandler) CancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	job, err := h.repo.GetByID(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if job.Status.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
		return
	}

	if err := h.repo.SetStatus(ctx, jobID, domain.JobStatusCancelled); err != nil {
		logger.CtxError(ctx, "Failed to cancel job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}

	logger.CtxInfo(ctx, "Job cancellation requested: job_id=%s", jobID)
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// Preview handles POST /jobs/preview.
func (h *JobHandler) Preview(c *gin.Context) {
	ctx := c.Request.Context()

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid preview request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.runner.Preview(ctx, req.ScriptIDs, req.RowLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLog handles GET /jobs/:id/log, returning the full log file text.
func (h *JobHandler) GetLog(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	if _, err := h.repo.GetByID(ctx, jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	text, err := h.repo.LogText(ctx, jobID)
	if err != nil {
		logger.CtxError(ctx, "Failed to read log for job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read job log"})
		return
	}
	c.String(http.StatusOK, text)
}

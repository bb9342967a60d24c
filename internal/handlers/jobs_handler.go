package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/jobs"
	"pennywise/internal/logger"
	"pennywise/internal/period"
)

// JobRunner runs a batch job by name.
type JobRunner interface {
	Run(ctx context.Context, name string, now time.Time) (jobs.RunResult, error)
}

// JobsHandler lets an external scheduler trigger the batch jobs.
type JobsHandler struct {
	runner JobRunner
	clock  period.Clock
}

// NewJobsHandler creates a new JobsHandler. Runs without a date use the
// clock's current time.
func NewJobsHandler(runner JobRunner, clock period.Clock) *JobsHandler {
	return &JobsHandler{runner: runner, clock: clock}
}

// RunJobRequest optionally overrides the date the job runs for.
type RunJobRequest struct {
	Date *string `json:"date" example:"2025-03-01"`
}

// RunJob runs one batch job synchronously.
// @Summary     Run a batch job
// @Description Process due subscriptions or snapshot active budgets (pipeline endpoint). Item failures are reported in the result, not as an error status.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string        true  "Pipeline API key"
// @Param       name      path     string        true  "Job name (subscriptions, budget-allocations)"
// @Param       request   body     RunJobRequest false "Run date"
// @Success     200       {object} jobs.RunResult "Run summary"
// @Failure     400       {object} ErrorResponse  "Invalid input"
// @Failure     401       {object} ErrorResponse  "Invalid API key"
// @Failure     404       {object} ErrorResponse  "Unknown job"
// @Failure     503       {object} ErrorResponse  "Pipeline not configured"
// @Router      /pipeline/jobs/{name} [post]
func (h *JobsHandler) RunJob(c *gin.Context) {
	var req RunJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}
	date, err := parseDateField(req.Date, "date")
	if err != nil {
		respondWithError(c, err)
		return
	}
	now := h.clock.Now()
	if date != nil {
		now = *date
	}

	name := c.Param("name")
	result, err := h.runner.Run(c.Request.Context(), name, now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	logger.Get().Infow("job triggered",
		"job", name,
		"processed", result.Processed,
		"failed", result.Failed,
		"client_ip", c.ClientIP(),
	)
	c.JSON(http.StatusOK, gin.H{"result": result})
}

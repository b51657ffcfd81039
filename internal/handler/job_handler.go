package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

type jobService interface {
	List(ctx context.Context, userID string) ([]dto.JobResponse, error)
	Get(ctx context.Context, userID, jobID string) (*dto.JobResponse, error)
	Create(ctx context.Context, userID string, payload dto.JobPayload) (*dto.JobResponse, error)
	Update(ctx context.Context, userID, jobID string, payload dto.JobPayload) (*dto.JobResponse, error)
	Delete(ctx context.Context, userID, jobID string) (*dto.DeleteJobResponse, error)
}

// JobHandler exposes CRUD over the caller's jobs.
type JobHandler struct {
	service jobService
}

// NewJobHandler builds a job handler.
func NewJobHandler(service jobService) *JobHandler {
	return &JobHandler{service: service}
}

// List godoc
// @Summary List active jobs with their rule trees
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobs, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// Get godoc
// @Summary Get a job
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /jobs/{jobId} [get]
func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	job, err := h.service.Get(c.Request.Context(), userID, c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Create godoc
// @Summary Create a job
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.JobPayload true "Job payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var payload dto.JobPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	job, err := h.service.Create(c.Request.Context(), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Update godoc
// @Summary Replace a job
// @Description The job id comes from the path or, on PUT /jobs, from the body.
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "Job ID"
// @Param payload body dto.JobPayload true "Job payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /jobs/{jobId} [put]
func (h *JobHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var payload dto.JobPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	job, err := h.service.Update(c.Request.Context(), userID, c.Param("jobId"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Delete godoc
// @Summary Soft delete a job
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /jobs/{jobId} [delete]
func (h *JobHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	result, err := h.service.Delete(c.Request.Context(), userID, c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	"github.com/noah-isme/inbox-rules-api/internal/service"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

type logService interface {
	List(ctx context.Context, userID string, query dto.JobLogQuery) ([]models.JobLog, *models.Pagination, error)
	Export(ctx context.Context, userID string, query dto.JobLogQuery) (*service.ExportFile, error)
}

// LogHandler serves the caller's run history.
type LogHandler struct {
	service logService
}

// NewLogHandler builds a log handler.
func NewLogHandler(service logService) *LogHandler {
	return &LogHandler{service: service}
}

// List godoc
// @Summary List job runs
// @Tags Runs
// @Produce json
// @Security BearerAuth
// @Param job_id query string false "Job ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var query dto.JobLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	logs, pagination, err := h.service.List(c.Request.Context(), userID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// Export godoc
// @Summary Export job runs
// @Tags Runs
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param job_id query string false "Job ID"
// @Success 200 {file} file
// @Router /logs/export [get]
func (h *LogHandler) Export(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var query dto.JobLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), userID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

type runService interface {
	RunForUser(ctx context.Context, userID string) ([]dto.JobRunLog, error)
}

// RunHandler triggers job execution for a mailbox.
type RunHandler struct {
	service runService
}

// NewRunHandler builds a run handler.
func NewRunHandler(service runService) *RunHandler {
	return &RunHandler{service: service}
}

// Run godoc
// @Summary Run every active job of a user
// @Tags Runs
// @Produce json
// @Param X-Trigger-Key header string true "Trigger key"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /run/{userId} [post]
func (h *RunHandler) Run(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "user id is required"))
		return
	}
	logs, err := h.service.RunForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RunResponse{UserID: userID, Logs: logs}, nil)
}

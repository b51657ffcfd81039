package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

type gmailAuthService interface {
	AuthURL(ctx context.Context, userID string) (*dto.GmailAuthURLResponse, error)
	Connect(ctx context.Context, userID string, req dto.GmailTokenRequest) (*dto.GmailTokenResponse, error)
}

// GmailAuthHandler drives the mailbox consent flow.
type GmailAuthHandler struct {
	service gmailAuthService
}

// NewGmailAuthHandler builds a Gmail auth handler.
func NewGmailAuthHandler(service gmailAuthService) *GmailAuthHandler {
	return &GmailAuthHandler{service: service}
}

// AuthURL godoc
// @Summary Get the Gmail consent URL
// @Tags Gmail
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /auth/gmail/url [get]
func (h *GmailAuthHandler) AuthURL(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	resp, err := h.service.AuthURL(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Token godoc
// @Summary Exchange an authorization code
// @Tags Gmail
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GmailTokenRequest true "Authorization code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/gmail/token [post]
func (h *GmailAuthHandler) Token(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.GmailTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}
	resp, err := h.service.Connect(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

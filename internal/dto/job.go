package dto

import (
	"time"

	"github.com/noah-isme/inbox-rules-api/internal/models"
)

// JobPayload is the body accepted by job create and update.
type JobPayload struct {
	ID     string             `json:"id,omitempty" validate:"omitempty,uuid"`
	Name   string             `json:"name" validate:"required,max=200"`
	Action models.JobAction   `json:"action" validate:"required,oneof=archive"`
	Rules  []*models.RuleNode `json:"rules" validate:"required"`
}

// JobResponse is a job together with its nested rule tree.
type JobResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Name      string             `json:"name"`
	Action    models.JobAction   `json:"action"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Rules     []*models.RuleNode `json:"rules"`
}

// NewJobResponse pairs a job header with its nested rules.
func NewJobResponse(job models.Job, rules []*models.RuleNode) JobResponse {
	if rules == nil {
		rules = []*models.RuleNode{}
	}
	return JobResponse{
		ID:        job.ID,
		UserID:    job.UserID,
		Name:      job.Name,
		Action:    job.Action,
		IsActive:  job.IsActive,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Rules:     rules,
	}
}

// DeleteJobResponse acknowledges a soft delete.
type DeleteJobResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

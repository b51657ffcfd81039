package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	"github.com/noah-isme/inbox-rules-api/internal/repository"
	"github.com/noah-isme/inbox-rules-api/internal/ruletree"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/logger"
)

type jobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, userID, id string) (*models.Job, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Job, error)
	ExistsByName(ctx context.Context, userID, name, excludeID string) (bool, error)
	Replace(ctx context.Context, job *models.Job) error
}

type jobRuleRepository interface {
	Create(ctx context.Context, rule *models.JobRule) error
	Replace(ctx context.Context, rule *models.JobRule) error
	ListByJob(ctx context.Context, userID, jobID string) ([]models.JobRule, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.JobRule, error)
	FindOwners(ctx context.Context, ids []string) (map[string]string, error)
}

type jobCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// JobServiceConfig tunes job listing behaviour.
type JobServiceConfig struct {
	CacheTTL time.Duration
}

// JobService manages jobs and their rule trees.
//
// Multi-record writes are issued one at a time without a transaction. A
// failure part way through an update leaves the records written so far in
// place and returns an error.
type JobService struct {
	jobs      jobRepository
	rules     jobRuleRepository
	cache     jobCache
	validator *validator.Validate
	logger    *zap.Logger
	cfg       JobServiceConfig
	newID     func() string
}

// NewJobService constructs a JobService. cache may be nil.
func NewJobService(jobs jobRepository, rules jobRuleRepository, cache jobCache, validate *validator.Validate, logger *zap.Logger, cfg JobServiceConfig) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &JobService{
		jobs:      jobs,
		rules:     rules,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

func jobsCacheKey(userID string) string {
	return "jobs:" + userID
}

// List returns the user's active jobs with their rule trees.
func (s *JobService) List(ctx context.Context, userID string) ([]dto.JobResponse, error) {
	key := jobsCacheKey(userID)
	if s.cache != nil {
		var cached []dto.JobResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	jobs, err := s.jobs.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jobs")
	}
	records, err := s.rules.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list job rules")
	}
	byJob := make(map[string][]models.JobRule, len(jobs))
	for _, r := range records {
		byJob[r.JobID] = append(byJob[r.JobID], r)
	}

	result := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		tree, err := s.nest(ctx, job.ID, byJob[job.ID])
		if err != nil {
			return nil, err
		}
		result = append(result, dto.NewJobResponse(job, tree))
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, result, s.cfg.CacheTTL)
	}
	return result, nil
}

// Get returns one active job with its rule tree.
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*dto.JobResponse, error) {
	job, err := s.activeJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	records, err := s.rules.ListByJob(ctx, userID, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job rules")
	}
	tree, err := s.nest(ctx, jobID, records)
	if err != nil {
		return nil, err
	}
	resp := dto.NewJobResponse(*job, tree)
	return &resp, nil
}

// Create validates and stores a new job with its rule tree.
func (s *JobService) Create(ctx context.Context, userID string, payload dto.JobPayload) (*dto.JobResponse, error) {
	name, root, err := s.validatePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, userID, name, ""); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:       s.newID(),
		UserID:   userID,
		Name:     name,
		Action:   payload.Action,
		IsActive: true,
	}
	records := ruletree.Flatten(root, userID, job.ID, s.newID)
	if err := s.ensureOwnedIDs(ctx, job.ID, records); err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create job")
	}
	defer s.invalidate(ctx, userID)

	for i := range records {
		if err := s.rules.Create(ctx, &records[i]); err != nil {
			return nil, s.writeError(ctx, job.ID, "create", err)
		}
	}

	logger.FromContext(ctx, s.logger).Info("job created",
		zap.String("user_id", userID), zap.String("job_id", job.ID), zap.Int("rules", len(records)))
	return s.Get(ctx, userID, job.ID)
}

// Update replaces a job's name, action and rule tree. jobID may be empty when
// payload carries the id; if both are set they must match.
func (s *JobService) Update(ctx context.Context, userID, jobID string, payload dto.JobPayload) (*dto.JobResponse, error) {
	switch {
	case jobID == "" && payload.ID == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "job id is required")
	case jobID == "":
		jobID = payload.ID
	case payload.ID != "" && payload.ID != jobID:
		return nil, appErrors.Clone(appErrors.ErrValidation, "job id in path and body differ")
	}

	name, root, err := s.validatePayload(payload)
	if err != nil {
		return nil, err
	}
	job, err := s.activeJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, userID, name, jobID); err != nil {
		return nil, err
	}

	incoming := ruletree.Flatten(root, userID, jobID, s.newID)
	if err := s.ensureOwnedIDs(ctx, jobID, incoming); err != nil {
		return nil, err
	}
	existing, err := s.rules.ListByJob(ctx, userID, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job rules")
	}
	delta := ruletree.Reconcile(existing, incoming)

	job.Name = name
	job.Action = payload.Action
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job")
	}
	defer s.invalidate(ctx, userID)

	if err := s.applyDelta(ctx, jobID, delta); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("job updated",
		zap.String("user_id", userID), zap.String("job_id", jobID),
		zap.Int("created", len(delta.ToCreate)), zap.Int("updated", len(delta.ToUpdate)), zap.Int("deactivated", len(delta.ToDeactivate)))
	return s.Get(ctx, userID, jobID)
}

// Delete soft-deletes a job and every one of its rule records.
func (s *JobService) Delete(ctx context.Context, userID, jobID string) (*dto.DeleteJobResponse, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "job id is required")
	}
	job, err := s.activeJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	existing, err := s.rules.ListByJob(ctx, userID, jobID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job rules")
	}

	job.IsActive = false
	if err := s.jobs.Replace(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete job")
	}
	defer s.invalidate(ctx, userID)

	if err := s.applyDelta(ctx, jobID, ruletree.Reconcile(existing, nil)); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("job deleted", zap.String("user_id", userID), zap.String("job_id", jobID))
	return &dto.DeleteJobResponse{ID: jobID, Deleted: true}, nil
}

func (s *JobService) validatePayload(payload dto.JobPayload) (string, *models.RuleNode, error) {
	if err := s.validator.Struct(payload); err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job payload")
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "job name is required")
	}
	if err := ruletree.Validate(payload.Rules); err != nil {
		return "", nil, translateTreeError(err)
	}
	return name, payload.Rules[0], nil
}

func (s *JobService) ensureUniqueName(ctx context.Context, userID, name, excludeID string) error {
	exists, err := s.jobs.ExistsByName(ctx, userID, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check job name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a job named %q already exists", name))
	}
	return nil
}

// ensureOwnedIDs rejects rule ids that already belong to a different job.
func (s *JobService) ensureOwnedIDs(ctx context.Context, jobID string, records []models.JobRule) error {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	owners, err := s.rules.FindOwners(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check rule ids")
	}
	for _, id := range ids {
		if owner, ok := owners[id]; ok && owner != jobID {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("rule %s belongs to another job", id))
		}
	}
	return nil
}

func (s *JobService) activeJob(ctx context.Context, userID, jobID string) (*models.Job, error) {
	// jobs.id is a uuid column; anything else cannot match a row.
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	job, err := s.jobs.Get(ctx, userID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	if !job.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	return job, nil
}

func (s *JobService) applyDelta(ctx context.Context, jobID string, delta ruletree.Delta) error {
	for i := range delta.ToCreate {
		if err := s.rules.Create(ctx, &delta.ToCreate[i]); err != nil {
			return s.writeError(ctx, jobID, "create", err)
		}
	}
	for i := range delta.ToUpdate {
		if err := s.rules.Replace(ctx, &delta.ToUpdate[i]); err != nil {
			return s.writeError(ctx, jobID, "replace", err)
		}
	}
	for i := range delta.ToDeactivate {
		if err := s.rules.Replace(ctx, &delta.ToDeactivate[i]); err != nil {
			return s.writeError(ctx, jobID, "deactivate", err)
		}
	}
	return nil
}

func (s *JobService) writeError(ctx context.Context, jobID, step string, err error) error {
	logger.FromContext(ctx, s.logger).Warn("rule write failed, job left partially written",
		zap.String("job_id", jobID), zap.String("step", step), zap.Error(err))
	if repository.IsUniqueViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rule id belongs to another job")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write job rules")
}

func (s *JobService) nest(ctx context.Context, jobID string, records []models.JobRule) ([]*models.RuleNode, error) {
	tree, err := ruletree.Nest(records)
	if err != nil {
		var corrupt *ruletree.CorruptionError
		if errors.As(err, &corrupt) {
			corrupt.JobID = jobID
			logger.FromContext(ctx, s.logger).Error("stored rule tree is corrupt", zap.String("job_id", jobID), zap.Error(corrupt))
			return nil, appErrors.Wrap(corrupt, appErrors.ErrRuleTreeCorrupt.Code, appErrors.ErrRuleTreeCorrupt.Status, appErrors.ErrRuleTreeCorrupt.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build rule tree")
	}
	return tree, nil
}

func (s *JobService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, jobsCacheKey(userID))
}

func translateTreeError(err error) error {
	var invalid *ruletree.ValidationError
	if errors.As(err, &invalid) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, invalid.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule tree")
}

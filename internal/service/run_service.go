package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	"github.com/noah-isme/inbox-rules-api/internal/ruletree"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/logger"
)

// MailSession is an authenticated view of one user's mailbox.
type MailSession interface {
	// Search returns one page of message ids matching query and the token of
	// the next page, empty on the last page.
	Search(ctx context.Context, query, pageToken string) ([]string, string, error)
	ApplyAction(ctx context.Context, ids []string, action models.JobAction) error
}

// SessionFunc opens a MailSession for a user.
type SessionFunc func(ctx context.Context, userID string) (MailSession, error)

type jobLister interface {
	List(ctx context.Context, userID string) ([]dto.JobResponse, error)
}

type jobLogWriter interface {
	Create(ctx context.Context, entry *models.JobLog) error
}

type runMetrics interface {
	RecordJobRun(outcome string)
	RecordMessagesAffected(action string, count int)
}

// maxSearchPages bounds pagination so a misbehaving provider cannot loop forever.
const maxSearchPages = 1000

// RunService executes a user's active jobs against their mailbox.
type RunService struct {
	jobs     jobLister
	logs     jobLogWriter
	sessions SessionFunc
	metrics  runMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunService constructs a RunService. metrics may be nil.
func NewRunService(jobs jobLister, logs jobLogWriter, sessions SessionFunc, metrics runMetrics, logger *zap.Logger) *RunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunService{jobs: jobs, logs: logs, sessions: sessions, metrics: metrics, logger: logger, now: time.Now}
}

// RunForUser runs every active job of userID in list order and returns one
// log per job. The first failing job aborts the run; logs of jobs that
// finished before it are already persisted.
func (s *RunService) RunForUser(ctx context.Context, userID string) ([]dto.JobRunLog, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("user_id", userID))

	jobs, err := s.jobs.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := make([]dto.JobRunLog, 0, len(jobs))
	if len(jobs) == 0 {
		log.Info("no active jobs to run")
		return results, nil
	}

	session, err := s.sessions(ctx, userID)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrMailUnavailable.Code, appErrors.ErrMailUnavailable.Status, "failed to open mailbox session")
	}

	for _, job := range jobs {
		entry, err := s.runJob(ctx, session, userID, job)
		if err != nil {
			s.recordRun("failed")
			log.Warn("job run failed", zap.String("job_id", job.ID), zap.Error(err))
			return results, err
		}
		s.recordRun("success")
		log.Info("job run finished", zap.String("job_id", job.ID), zap.Int("affected", entry.AffectedCount))
		results = append(results, *entry)
	}
	return results, nil
}

func (s *RunService) runJob(ctx context.Context, session MailSession, userID string, job dto.JobResponse) (*dto.JobRunLog, error) {
	if len(job.Rules) != 1 {
		return nil, appErrors.Wrap(&ruletree.CorruptionError{JobID: job.ID, Reason: "job has no single root rule"},
			appErrors.ErrRuleTreeCorrupt.Code, appErrors.ErrRuleTreeCorrupt.Status, appErrors.ErrRuleTreeCorrupt.Message)
	}
	expr := ruletree.Compile(job.Rules[0])
	query := ruletree.SearchQuery(expr)

	ids, err := s.collect(ctx, session, query)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		if err := session.ApplyAction(ctx, ids, job.Action); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrMailUnavailable.Code, appErrors.ErrMailUnavailable.Status, "failed to apply job action")
		}
		if s.metrics != nil {
			s.metrics.RecordMessagesAffected(string(job.Action), len(ids))
		}
	}

	runAt := s.now().UTC()
	entry := &models.JobLog{
		UserID:         userID,
		JobID:          job.ID,
		JobName:        job.Name,
		RunAt:          runAt,
		AffectedCount:  len(ids),
		CompiledFilter: query,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record job run")
	}
	return &dto.JobRunLog{
		Date:           runAt,
		JobName:        job.Name,
		AffectedCount:  len(ids),
		CompiledFilter: query,
	}, nil
}

func (s *RunService) collect(ctx context.Context, session MailSession, query string) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for page := 0; page < maxSearchPages; page++ {
		batch, next, err := session.Search(ctx, query, pageToken)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrMailUnavailable.Code, appErrors.ErrMailUnavailable.Status, "mailbox search failed")
		}
		ids = append(ids, batch...)
		if next == "" {
			return ids, nil
		}
		pageToken = next
	}
	s.logger.Warn("mailbox search truncated", zap.String("query", query), zap.Int("pages", maxSearchPages))
	return ids, nil
}

func (s *RunService) recordRun(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordJobRun(outcome)
	}
}

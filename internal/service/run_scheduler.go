package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	"github.com/noah-isme/inbox-rules-api/pkg/jobs"
)

type mailUserLister interface {
	ListActive(ctx context.Context) ([]models.MailUser, error)
}

type userRunner interface {
	RunForUser(ctx context.Context, userID string) ([]dto.JobRunLog, error)
}

// RunSchedulerConfig tunes the periodic sweep.
type RunSchedulerConfig struct {
	Interval   time.Duration
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// RunScheduler periodically queues a run for every connected mailbox.
type RunScheduler struct {
	users   mailUserLister
	runner  userRunner
	queue   *jobs.Queue
	metrics runMetrics
	logger  *zap.Logger
	cfg     RunSchedulerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunScheduler constructs the scheduler. metrics may be nil.
func NewRunScheduler(users mailUserLister, runner userRunner, cfg RunSchedulerConfig, metrics runMetrics, logger *zap.Logger) *RunScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	s := &RunScheduler{users: users, runner: runner, metrics: metrics, logger: logger, cfg: cfg}
	s.queue = jobs.NewQueue("mailbox-runs", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDead: func(task jobs.Task, err error) {
			if s.metrics != nil {
				s.metrics.RecordJobRun("abandoned")
			}
		},
	})
	return s
}

// Start launches the worker pool and the sweep ticker. The first sweep
// runs immediately.
func (s *RunScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.queue.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("mailbox sweep failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.logger.Info("run scheduler started", zap.Duration("interval", s.cfg.Interval))
}

// Stop halts the ticker and waits for in-flight runs to return.
func (s *RunScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

// Sweep queues one run per active mail user and returns how many were
// queued. Users whose previous run is still pending are skipped.
func (s *RunScheduler) Sweep(ctx context.Context) (int, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, u := range users {
		err := s.queue.Enqueue(jobs.Task{ID: uuid.NewString(), Key: u.ID})
		switch {
		case err == nil:
			queued++
		case errors.Is(err, jobs.ErrDuplicate):
			s.logger.Debug("run already pending", zap.String("user_id", u.ID))
		default:
			return queued, err
		}
	}
	s.logger.Info("mailbox sweep queued", zap.Int("users", len(users)), zap.Int("queued", queued))
	return queued, nil
}

func (s *RunScheduler) handle(ctx context.Context, task jobs.Task) error {
	logs, err := s.runner.RunForUser(ctx, task.Key)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled run finished", zap.String("user_id", task.Key), zap.Int("jobs", len(logs)))
	return nil
}

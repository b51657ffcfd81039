package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/export"
)

const (
	defaultLogPageSize = 20
	maxExportRows      = 5000
)

type jobLogRepository interface {
	List(ctx context.Context, filter models.JobLogFilter) ([]models.JobLog, int, error)
}

type renderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered run history download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// LogService reads and exports run history.
type LogService struct {
	repo      jobLogRepository
	renderers map[string]renderer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLogService constructs a LogService with CSV and PDF renderers.
func NewLogService(repo jobLogRepository, validate *validator.Validate, logger *zap.Logger) *LogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LogService{
		repo: repo,
		renderers: map[string]renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns one page of the user's run history, newest first.
func (s *LogService) List(ctx context.Context, userID string, query dto.JobLogQuery) ([]models.JobLog, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid log query")
	}
	filter := filterFromQuery(userID, query)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultLogPageSize
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list job logs")
	}
	if logs == nil {
		logs = []models.JobLog{}
	}
	return logs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders the user's run history in the requested format.
func (s *LogService) Export(ctx context.Context, userID string, query dto.JobLogQuery) (*ExportFile, error) {
	if query.Format == "" {
		query.Format = "csv"
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	r, ok := s.renderers[query.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", query.Format))
	}

	filter := filterFromQuery(userID, query)
	filter.Page = 1
	filter.PageSize = maxExportRows
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job logs")
	}
	if total > len(logs) {
		s.logger.Warn("run history export truncated", zap.String("user_id", userID), zap.Int("total", total), zap.Int("exported", len(logs)))
	}

	data, err := r.Render(logDataset(logs), "Inbox rule runs")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("job-runs-%s.%s", s.now().UTC().Format("20060102-150405"), query.Format),
		ContentType: r.ContentType(),
		Data:        data,
	}, nil
}

func filterFromQuery(userID string, query dto.JobLogQuery) models.JobLogFilter {
	return models.JobLogFilter{
		UserID:   userID,
		JobID:    query.JobID,
		From:     query.From,
		To:       query.To,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
}

func logDataset(logs []models.JobLog) export.Dataset {
	rows := make([]map[string]string, len(logs))
	for i, l := range logs {
		rows[i] = map[string]string{
			"run_at":          l.RunAt.UTC().Format(time.RFC3339),
			"job_name":        l.JobName,
			"affected_count":  strconv.Itoa(l.AffectedCount),
			"compiled_filter": l.CompiledFilter,
		}
	}
	return export.Dataset{
		Columns: []export.Column{
			{Key: "run_at", Title: "Date", Weight: 1.5},
			{Key: "job_name", Title: "Job", Weight: 1.5},
			{Key: "affected_count", Title: "Affected", Weight: 0.8},
			{Key: "compiled_filter", Title: "Filter", Weight: 4},
		},
		Rows: rows,
	}
}

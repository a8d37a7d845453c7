// Package tracker records parts that need manual attention, together with
// the attempt log and classification history that explain why.
package tracker

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
	"github.com/ttsmith21/sheetmetal-engine/internal/logging"
	"github.com/ttsmith21/sheetmetal-engine/internal/store"
)

// Tracker accepts problem parts.
type Tracker interface {
	Register(ctx context.Context, p domain.Problem) (domain.Problem, error)
}

// SQLTracker is the SQLite-backed Tracker. It also serves as the
// conversion attempt sink and the classification history.
type SQLTracker struct {
	DB     *sql.DB
	Logger *zap.Logger

	problems        store.ProblemRepo
	attempts        store.AttemptRepo
	classifications store.ClassificationRepo
	now             func() time.Time
}

// New creates a tracker over an open database.
func New(db *sql.DB, logger *zap.Logger) *SQLTracker {
	return &SQLTracker{DB: db, Logger: logging.OrNop(logger), now: time.Now}
}

// Register stores p, assigning an ID and timestamp when missing.
func (t *SQLTracker) Register(ctx context.Context, p domain.Problem) (domain.Problem, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = t.clock().Unix()
	}
	if err := t.problems.Record(ctx, t.DB, p); err != nil {
		return p, domain.WrapEngineError(domain.ErrStoreWrite.Code, "register problem", err)
	}
	logging.OrNop(t.Logger).Info("problem registered",
		zap.String("problem_id", p.ID),
		zap.String("run_id", p.RunID),
		zap.String("file", p.FilePath),
		zap.String("category", p.Category),
		zap.String("reason", p.Reason),
	)
	return p, nil
}

// AppendAttempt writes one strategy attempt to the attempt log.
func (t *SQLTracker) AppendAttempt(ctx context.Context, rec domain.AttemptRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = t.clock().Unix()
	}
	return t.attempts.Append(ctx, t.DB, rec)
}

// SaveClassification persists the outcome of classifying a part.
func (t *SQLTracker) SaveClassification(ctx context.Context, cc *domain.ConversionContext, res domain.ClassificationResult) error {
	rec := domain.ClassificationRecord{
		RunID:         cc.RunID,
		FilePath:      cc.FilePath,
		Configuration: cc.Configuration,
		Pile:          res.Pile,
		Thickness:     res.Thickness.Thickness,
		Coverage:      res.Thickness.Coverage,
		Reason:        res.Reason,
		CreatedAt:     t.clock().Unix(),
	}
	if _, err := t.classifications.Save(ctx, t.DB, rec); err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "save classification", err)
	}
	return nil
}

// RecentProblems returns up to limit problems, newest first.
func (t *SQLTracker) RecentProblems(ctx context.Context, limit int) ([]domain.Problem, error) {
	if limit <= 0 {
		limit = 50
	}
	problems, err := t.problems.ListRecent(ctx, t.DB, limit)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list problems", err)
	}
	return problems, nil
}

// ProblemsForFile returns every problem registered for a file, oldest first.
func (t *SQLTracker) ProblemsForFile(ctx context.Context, filePath string) ([]domain.Problem, error) {
	problems, err := t.problems.ListByFile(ctx, t.DB, filePath)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list problems by file", err)
	}
	return problems, nil
}

// Attempts returns the attempt log of one run in sequence order.
func (t *SQLTracker) Attempts(ctx context.Context, runID string) ([]domain.AttemptRecord, error) {
	recs, err := t.attempts.ListByRun(ctx, t.DB, runID)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list attempts", err)
	}
	return recs, nil
}

// LatestClassification returns the newest classification of a file, or nil.
func (t *SQLTracker) LatestClassification(ctx context.Context, filePath, configuration string) (*domain.ClassificationRecord, error) {
	rec, err := t.classifications.Latest(ctx, t.DB, filePath, configuration)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "latest classification", err)
	}
	return rec, nil
}

func (t *SQLTracker) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// AttemptRepo handles persistence for conversion attempt records.
type AttemptRepo struct{}

// Append inserts an attempt. A repeated (run_id, seq_no) returns an error
// matching domain.ErrDuplicateSeq.
func (r *AttemptRepo) Append(ctx context.Context, db *sql.DB, rec domain.AttemptRecord) error {
	const q = `INSERT INTO conversion_attempts (run_id, seq_no, strategy, outcome, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.RunID,
		rec.SeqNo,
		string(rec.Strategy),
		rec.Outcome,
		rec.Detail,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapEngineError(domain.ErrDuplicateSeq.Code,
				fmt.Sprintf("run %s seq %d", rec.RunID, rec.SeqNo), err)
		}
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// ListByRun returns the attempts of a run ordered by sequence number.
func (r *AttemptRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.AttemptRecord, error) {
	const q = `SELECT id, run_id, seq_no, strategy, outcome, detail, created_at
FROM conversion_attempts
WHERE run_id = ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.AttemptRecord
	for rows.Next() {
		var a domain.AttemptRecord
		var strategy string
		if err := rows.Scan(&a.ID, &a.RunID, &a.SeqNo, &strategy, &a.Outcome, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Strategy = domain.StrategyKind(strategy)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

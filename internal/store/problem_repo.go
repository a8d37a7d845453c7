package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// ProblemRepo handles persistence for Problem records.
type ProblemRepo struct{}

// Record inserts a problem.
func (r *ProblemRepo) Record(ctx context.Context, db *sql.DB, p domain.Problem) error {
	const q = `INSERT INTO problems (id, run_id, file_path, configuration, category, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		p.ID,
		p.RunID,
		p.FilePath,
		p.Configuration,
		p.Category,
		p.Reason,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record problem: %w", err)
	}
	return nil
}

// ListRecent returns up to limit problems, newest first.
func (r *ProblemRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.Problem, error) {
	const q = `SELECT id, run_id, file_path, configuration, category, reason, created_at
FROM problems
ORDER BY created_at DESC, rowid DESC
LIMIT ?`
	return r.query(ctx, db, q, limit)
}

// ListByFile returns the problems recorded for a file, oldest first.
func (r *ProblemRepo) ListByFile(ctx context.Context, db *sql.DB, filePath string) ([]domain.Problem, error) {
	const q = `SELECT id, run_id, file_path, configuration, category, reason, created_at
FROM problems
WHERE file_path = ?
ORDER BY created_at ASC, rowid ASC`
	return r.query(ctx, db, q, filePath)
}

func (r *ProblemRepo) query(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.Problem, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	var problems []domain.Problem
	for rows.Next() {
		var p domain.Problem
		if err := rows.Scan(&p.ID, &p.RunID, &p.FilePath, &p.Configuration,
			&p.Category, &p.Reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

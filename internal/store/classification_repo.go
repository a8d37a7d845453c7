package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ttsmith21/sheetmetal-engine/internal/domain"
)

// ClassificationRepo handles persistence for classification results.
type ClassificationRepo struct{}

// Save inserts a classification and returns its row id.
func (r *ClassificationRepo) Save(ctx context.Context, db *sql.DB, rec domain.ClassificationRecord) (int64, error) {
	const q = `INSERT INTO classifications (run_id, file_path, configuration, pile, thickness, coverage, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, q,
		rec.RunID,
		rec.FilePath,
		rec.Configuration,
		string(rec.Pile),
		rec.Thickness,
		rec.Coverage,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("save classification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("classification id: %w", err)
	}
	return id, nil
}

// Latest returns the most recent classification of a file configuration.
// It returns (nil, nil) when none exists.
func (r *ClassificationRepo) Latest(ctx context.Context, db *sql.DB, filePath, configuration string) (*domain.ClassificationRecord, error) {
	const q = `SELECT id, run_id, file_path, configuration, pile, thickness, coverage, reason, created_at
FROM classifications
WHERE file_path = ? AND configuration = ?
ORDER BY id DESC
LIMIT 1`

	var c domain.ClassificationRecord
	var pile string
	err := db.QueryRowContext(ctx, q, filePath, configuration).Scan(
		&c.ID, &c.RunID, &c.FilePath, &c.Configuration, &pile,
		&c.Thickness, &c.Coverage, &c.Reason, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest classification: %w", err)
	}
	c.Pile = domain.PartPile(pile)
	return &c, nil
}

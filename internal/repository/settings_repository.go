package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/registree/internal/models"
)

const upsertSettingQuery = `INSERT INTO settings (key, value, updated_by, updated_at)
VALUES (:key, :value, :updated_by, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`

// SettingsRepository persists school-wide settings as key/value rows.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// List returns every saved setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	var rows []models.Setting
	if err := r.db.SelectContext(ctx, &rows, `SELECT key, value, updated_by, updated_at FROM settings ORDER BY key ASC`); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return rows, nil
}

// BulkUpsert writes all rows in one transaction.
func (r *SettingsRepository) BulkUpsert(ctx context.Context, rows []models.Setting) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, upsertSettingQuery, rows[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert setting %s: %w", rows[i].Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings tx: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/srms-dev/srms-api/internal/models"
)

const configColumns = `id, key, value, category, description, active, updated_by, created_at, updated_at`

// ConfigRepository stores keyed runtime configuration.
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository creates a new instance of ConfigRepository.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// FindByKey returns the configuration entry for a key.
func (r *ConfigRepository) FindByKey(ctx context.Context, key string) (*models.ConfigEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM configs WHERE key = $1`, configColumns)
	var entry models.ConfigEntry
	if err := r.db.GetContext(ctx, &entry, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find config by key: %w", err)
	}
	return &entry, nil
}

// Upsert writes a configuration entry, replacing any existing value for
// the key.
func (r *ConfigRepository) Upsert(ctx context.Context, entry *models.ConfigEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	const query = `INSERT INTO configs (id, key, value, category, description, active, updated_by, created_at, updated_at)
        VALUES (:id, :key, :value, :category, :description, :active, :updated_by, :created_at, :updated_at)
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            category = EXCLUDED.category,
            description = EXCLUDED.description,
            active = EXCLUDED.active,
            updated_by = EXCLUDED.updated_by,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}
	return nil
}

// SeedIfMissing inserts a configuration entry only when the key is not
// already present, so boot seeding never clobbers operator edits.
func (r *ConfigRepository) SeedIfMissing(ctx context.Context, entry *models.ConfigEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	const query = `INSERT INTO configs (id, key, value, category, description, active, updated_by, created_at, updated_at)
        VALUES (:id, :key, :value, :category, :description, :active, :updated_by, :created_at, :updated_at)
        ON CONFLICT (key) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("seed config: %w", err)
	}
	return nil
}

// List returns configuration entries, optionally scoped to a category.
func (r *ConfigRepository) List(ctx context.Context, category string) ([]models.ConfigEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM configs`, configColumns)
	var args []interface{}
	if category != "" {
		query += " WHERE category = $1"
		args = append(args, category)
	}
	query += " ORDER BY key ASC"

	var entries []models.ConfigEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	return entries, nil
}

// Delete removes a configuration entry by key.
func (r *ConfigRepository) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM configs WHERE key = $1`
	res, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

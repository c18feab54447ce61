package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type configRepository struct {
	s *Store
}

// Get читает параметр через tx (если передан), чтобы видеть состояние той же транзакции.
func (r *configRepository) Get(ctx context.Context, tx domain.Tx, name string) (domain.ConfigEntry, error) {
	q, err := r.s.querier(tx)
	if err != nil {
		return domain.ConfigEntry{}, err
	}

	entry, err := scanConfig(q.QueryRowContext(ctx, `
		SELECT name, value, data_type, status, description, updated_at
		FROM configs
		WHERE name = $1
	`, strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ConfigEntry{}, domain.ErrConfigNotFound
		}
		return domain.ConfigEntry{}, translateError("select config", err)
	}
	return entry, nil
}

func (r *configRepository) List(ctx context.Context) ([]domain.ConfigEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT name, value, data_type, status, description, updated_at
		FROM configs
		ORDER BY name
	`)
	if err != nil {
		return nil, translateError("list configs", err)
	}
	defer rows.Close()

	result := make([]domain.ConfigEntry, 0)
	for rows.Next() {
		entry, err := scanConfig(rows)
		if err != nil {
			return nil, translateError("scan config", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate configs", err)
	}
	return result, nil
}

// Upsert проверяет приводимость значения к типу и сохраняет параметр.
func (r *configRepository) Upsert(ctx context.Context, entry domain.ConfigEntry) (domain.ConfigEntry, error) {
	entry.Name = strings.TrimSpace(entry.Name)
	if err := entry.Validate(); err != nil {
		return domain.ConfigEntry{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.s.db.QueryRowContext(ctx, `
		INSERT INTO configs (name, value, data_type, status, description, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (name) DO UPDATE
		SET value = EXCLUDED.value,
		    data_type = EXCLUDED.data_type,
		    status = EXCLUDED.status,
		    description = EXCLUDED.description,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, entry.Name, entry.Value, string(entry.DataType), entry.Status, entry.Description).Scan(&entry.UpdatedAt)
	if err != nil {
		return domain.ConfigEntry{}, translateError("upsert config", err)
	}
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

func scanConfig(row rowScanner) (domain.ConfigEntry, error) {
	var (
		entry    domain.ConfigEntry
		dataType string
	)
	if err := row.Scan(&entry.Name, &entry.Value, &dataType, &entry.Status, &entry.Description, &entry.UpdatedAt); err != nil {
		return domain.ConfigEntry{}, err
	}
	entry.DataType = domain.ConfigDataType(dataType)
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, nil
}

var _ domain.ConfigRepository = (*configRepository)(nil)

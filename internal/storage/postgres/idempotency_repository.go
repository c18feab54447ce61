package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

const selectIdempotencyColumns = `
	SELECT key, request_hash, user_id, method, route, state,
	       response_status, response_body, expires_at, created_at, updated_at
	FROM idempotency_keys`

type idempotencyRepository struct {
	s *Store
}

// Idempotency возвращает хранилище ключей идемпотентности.
func (s *Store) Idempotency() domain.IdempotencyRepository { return &idempotencyRepository{s: s} }

// Claim захватывает ключ одним INSERT. Запись с истёкшим expires_at перезаписывается,
// живая запись не меняется, и тогда RETURNING ничего не отдаёт.
func (r *idempotencyRepository) Claim(ctx context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	now := time.Now().UTC()
	claim, err := claim.Normalize(now, defaultIdempotencyTTL)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var createdAt time.Time
	err = r.s.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (
			key, request_hash, user_id, method, route, state, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    user_id = EXCLUDED.user_id,
		    method = EXCLUDED.method,
		    route = EXCLUDED.route,
		    state = EXCLUDED.state,
		    response_status = NULL,
		    response_body = NULL,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING created_at
	`, claim.Key, claim.RequestHash, claim.Scope.UserID, claim.Scope.Method, claim.Scope.Route,
		string(domain.IdempotencyInFlight), claim.ExpiresAt, now).Scan(&createdAt)

	switch {
	case err == nil:
		return domain.NewIdempotencyRecord(claim, createdAt.UTC()), nil
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := r.Get(ctx, claim.Key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("load claimed key: %w", getErr)
		}
		return existing, existing.Conflict(claim.RequestHash)
	default:
		return domain.IdempotencyRecord{}, translateError("claim idempotency key", err)
	}
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.s.db.QueryRowContext(ctx, selectIdempotencyColumns+` WHERE key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, translateError("get idempotency key", err)
	}
	if !record.State.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has state %q: %w", key, record.State, domain.ErrInternal)
	}
	return record, nil
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		record domain.IdempotencyRecord
		state  string
		status sql.NullInt64
		body   []byte
	)
	err := row.Scan(
		&record.Key,
		&record.RequestHash,
		&record.Scope.UserID,
		&record.Scope.Method,
		&record.Scope.Route,
		&state,
		&status,
		&body,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.State = domain.IdempotencyState(state)
	record.Response = domain.ReplayableResponse{StatusCode: int(status.Int64), Body: body}.Clone()
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func (r *idempotencyRepository) Settle(ctx context.Context, key string, resp domain.ReplayableResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET state = $2, response_status = $3, response_body = $4, updated_at = $5
		WHERE key = $1
	`, key, string(resp.State()), resp.StatusCode, resp.Body, time.Now().UTC())
	if err != nil {
		return translateError("settle idempotency key", err)
	}
	return requireAffected(res, domain.ErrIdempotencyKeyNotFound)
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND state = $2`,
		key, string(domain.IdempotencyInFlight))
	return translateError("release idempotency key", err)
}

// DeleteExpired удаляет не больше limit ключей, начиная с самых старых.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	if limit <= 0 {
		limit = 1000
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, translateError("delete expired idempotency keys", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translateError("idempotency rows affected", err)
	}
	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)

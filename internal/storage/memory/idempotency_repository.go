package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRepository держит ключи оформления заказов в памяти.
type IdempotencyRepository struct {
	mu   sync.Mutex
	keys map[string]domain.IdempotencyRecord
	now  func() time.Time
}

// NewIdempotencyRepository создаёт пустое хранилище ключей.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		keys: make(map[string]domain.IdempotencyRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Claim захватывает ключ. Просроченный ключ, который ещё не удалил cleanup worker, переиспользуется.
func (r *IdempotencyRepository) Claim(_ context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	now := r.now()
	claim, err := claim.Normalize(now, defaultIdempotencyTTL)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.keys[claim.Key]; ok && !existing.Expired(now) {
		return copyRecord(existing), existing.Conflict(claim.RequestHash)
	}

	record := domain.NewIdempotencyRecord(claim, now)
	r.keys[claim.Key] = record
	return copyRecord(record), nil
}

func (r *IdempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *IdempotencyRepository) Settle(_ context.Context, key string, resp domain.ReplayableResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.State = resp.State()
	record.Response = resp.Clone()
	record.UpdatedAt = r.now()
	r.keys[key] = record
	return nil
}

// Release удаляет ключ, только пока ответ не сохранён.
func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.keys[key]; ok && record.State == domain.IdempotencyInFlight {
		delete(r.keys, key)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.keys {
		if limit > 0 && removed >= limit {
			break
		}
		if record.Expired(before) {
			delete(r.keys, key)
			removed++
		}
	}
	return removed, nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	src.Response = src.Response.Clone()
	return src
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)

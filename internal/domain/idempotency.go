package domain

import (
	"net/http"
	"strings"
	"time"
)

// IdempotencyState — стадия обработки запроса под Idempotency-Key.
type IdempotencyState string

const (
	// IdempotencyInFlight — ключ захвачен, обработчик ещё работает.
	IdempotencyInFlight IdempotencyState = "in_flight"
	// IdempotencyCompleted — запрос выполнен, успешный ответ сохранён для повтора.
	IdempotencyCompleted IdempotencyState = "completed"
	// IdempotencyRejected — запрос отклонён с 4xx, отказ повторяется так же.
	IdempotencyRejected IdempotencyState = "rejected"
)

// Valid проверяет, что состояние известно.
func (s IdempotencyState) Valid() bool {
	switch s {
	case IdempotencyInFlight, IdempotencyCompleted, IdempotencyRejected:
		return true
	default:
		return false
	}
}

// Settled сообщает, что ответ уже сохранён и его можно повторить.
func (s IdempotencyState) Settled() bool {
	return s == IdempotencyCompleted || s == IdempotencyRejected
}

// IdempotencyScope — кто и на какой маршрут выпустил ключ.
type IdempotencyScope struct {
	UserID string
	Method string
	Route  string
}

// ReplayableResponse — HTTP-ответ, который отдаётся повторно по тому же ключу.
type ReplayableResponse struct {
	StatusCode int
	Body       []byte
}

// State определяет, в каком состоянии сохраняется ответ.
func (r ReplayableResponse) State() IdempotencyState {
	if r.StatusCode >= http.StatusBadRequest {
		return IdempotencyRejected
	}
	return IdempotencyCompleted
}

// Clone копирует тело, чтобы хранилище не делило буфер с вызывающим.
func (r ReplayableResponse) Clone() ReplayableResponse {
	r.Body = append([]byte(nil), r.Body...)
	return r
}

// IdempotencyClaim — попытка захватить ключ под конкретный запрос.
type IdempotencyClaim struct {
	Key         string
	RequestHash string
	Scope       IdempotencyScope
	ExpiresAt   time.Time
}

// Normalize обрезает пробелы и проверяет обязательные поля.
func (c IdempotencyClaim) Normalize(now time.Time, defaultTTL time.Duration) (IdempotencyClaim, error) {
	c.Key = strings.TrimSpace(c.Key)
	c.RequestHash = strings.TrimSpace(c.RequestHash)
	if c.Key == "" {
		return c, ErrIdempotencyKeyRequired
	}
	if c.RequestHash == "" {
		return c, ErrIdempotencyRequestHashRequired
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = now.Add(defaultTTL)
	}
	return c, nil
}

// IdempotencyRecord — сохранённое состояние ключа.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Scope       IdempotencyScope
	State       IdempotencyState
	Response    ReplayableResponse
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewIdempotencyRecord создаёт запись in_flight для захваченного ключа.
func NewIdempotencyRecord(claim IdempotencyClaim, now time.Time) IdempotencyRecord {
	return IdempotencyRecord{
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		Scope:       claim.Scope,
		State:       IdempotencyInFlight,
		ExpiresAt:   claim.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Expired сообщает, что ключ можно переиспользовать.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Conflict возвращает ошибку повторного захвата ключа запросом с хешем requestHash.
func (r IdempotencyRecord) Conflict(requestHash string) error {
	if r.RequestHash != requestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

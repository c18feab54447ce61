package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — сколько хранится ответ по ключу.
const DefaultTTL = 24 * time.Hour

var (
	// ErrRequestInProgress — запрос с тем же ключом ещё выполняется; клиент может повторить позже.
	ErrRequestInProgress = fmt.Errorf("request with the same idempotency key is already processing: %w", domain.ErrTransactionConflict)
	// ErrKeyReused — ключ уже использован с другим телом запроса.
	ErrKeyReused = fmt.Errorf("%w: %w", domain.ErrIdempotencyHashMismatch, domain.ErrValidation)
)

// Response — сохранённый HTTP-ответ.
type Response struct {
	StatusCode int
	Body       []byte
	// Transient — ответ не сохраняется, ключ освобождается для повтора (конфликт транзакции, 5xx).
	Transient bool
}

// Guard выполняет обработчик не более одного раза на ключ и повторяет сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

// NewGuard создаёт guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{repo: repo, ttl: ttl, logger: logger}
}

// RequestHash связывает ключ с пользователем, методом, маршрутом и телом запроса.
func RequestHash(scope domain.IdempotencyScope, body []byte) string {
	h := sha256.New()
	for _, part := range []string{scope.Method, scope.Route, scope.UserID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет handler под ключом key в пределах scope. replayed=true, если ответ взят из хранилища.
// Ответы 2xx и отказы 4xx сохраняются вместе со статусом и повторяются как есть.
// Временные сбои и 5xx освобождают ключ.
func (g *Guard) Do(ctx context.Context, key string, scope domain.IdempotencyScope, body []byte, handler func(context.Context) Response) (resp Response, replayed bool, err error) {
	if g == nil || g.repo == nil {
		return handler(ctx), false, nil
	}

	record, err := g.repo.Claim(ctx, domain.IdempotencyClaim{
		Key:         key,
		RequestHash: RequestHash(scope, body),
		Scope:       scope,
		ExpiresAt:   time.Now().UTC().Add(g.ttl),
	})
	if err != nil {
		resp, err := g.replay(err, record)
		return resp, err == nil, err
	}

	resp = handler(ctx)
	resp.Body = append([]byte(nil), resp.Body...)

	// Запись результата не должна зависеть от отмены клиентского запроса.
	storeCtx := context.WithoutCancel(ctx)
	if resp.Transient || resp.StatusCode >= http.StatusInternalServerError {
		err = g.repo.Release(storeCtx, record.Key)
	} else {
		err = g.repo.Settle(storeCtx, record.Key, domain.ReplayableResponse{StatusCode: resp.StatusCode, Body: resp.Body})
	}
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": record.Key,
			"route":           scope.Route,
		}).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func (g *Guard) replay(claimErr error, record domain.IdempotencyRecord) (Response, error) {
	switch {
	case errors.Is(claimErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, ErrKeyReused
	case errors.Is(claimErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.State.Settled() {
			return Response{}, ErrRequestInProgress
		}
		if record.Response.StatusCode == 0 {
			return Response{}, fmt.Errorf("idempotency record %s has no stored response: %w", record.Key, domain.ErrInternal)
		}
		return Response{StatusCode: record.Response.StatusCode, Body: record.Response.Body}, nil
	case errors.Is(claimErr, domain.ErrIdempotencyKeyRequired):
		return Response{}, claimErr
	default:
		g.logger.WithError(claimErr).Warn("failed to claim idempotency key")
		return Response{}, fmt.Errorf("claim idempotency key: %v: %w", claimErr, domain.ErrInternal)
	}
}

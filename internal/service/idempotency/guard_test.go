package idempotency

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var checkout = domain.IdempotencyScope{UserID: "user-1", Method: http.MethodPost, Route: "/api/v1/orders"}

func TestRequestHash(t *testing.T) {
	t.Parallel()

	body := []byte(`{"a":1}`)
	base := RequestHash(checkout, body)
	require.Len(t, base, 64)
	require.Equal(t, base, RequestHash(checkout, body))

	otherUser := checkout
	otherUser.UserID = "user-2"
	require.NotEqual(t, base, RequestHash(otherUser, body))
	require.NotEqual(t, base, RequestHash(checkout, []byte(`{"a":2}`)))
	require.NotEqual(t,
		RequestHash(domain.IdempotencyScope{Method: "ab", Route: "c"}, nil),
		RequestHash(domain.IdempotencyScope{Method: "a", Route: "bc"}, nil),
		"parts are separated",
	)
}

func TestGuard_ReplaysDoneResponse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)

	body := []byte(`{"lines":[]}`)
	var calls atomic.Int32
	handler := func(context.Context) Response {
		calls.Add(1)
		return Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"order-1"}`)}
	}

	first, replayed, err := guard.Do(ctx, "key-1", checkout, body, handler)
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, replayed, err := guard.Do(ctx, "key-1", checkout, body, handler)
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, calls.Load())
}

func TestGuard_ReplaysFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)
	failure := Response{StatusCode: http.StatusConflict, Body: []byte(`{"error":{"kind":"InsufficientStock"}}`)}

	_, _, err := guard.Do(ctx, "key-2", checkout, nil, func(context.Context) Response { return failure })
	require.NoError(t, err)

	resp, replayed, err := guard.Do(ctx, "key-2", checkout, nil, func(context.Context) Response {
		t.Fatal("handler must not run twice")
		return Response{}
	})
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, failure, resp)
}

func TestGuard_TransientFailureReleasesKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	guard := NewGuard(memory.NewIdempotencyRepository(), 0, nil)

	for _, resp := range []Response{
		{StatusCode: http.StatusConflict, Body: []byte(`{"error":{"kind":"TransactionConflict"}}`), Transient: true},
		{StatusCode: http.StatusInternalServerError},
	} {
		_, _, err := guard.Do(ctx, "key-3", checkout, nil, func(context.Context) Response { return resp })
		require.NoError(t, err)
	}

	resp, replayed, err := guard.Do(ctx, "key-3", checkout, nil, func(context.Context) Response {
		return Response{StatusCode: http.StatusCreated}
	})
	require.NoError(t, err)
	require.False(t, replayed, "handler runs again after a transient failure")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestGuard_Conflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, 0, nil)
	body := []byte(`{"lines":[{"product_id":"p-1","quantity":1}]}`)
	ok := func(context.Context) Response { return Response{StatusCode: http.StatusOK} }

	_, err := repo.Claim(ctx, domain.IdempotencyClaim{
		Key:         "busy",
		RequestHash: RequestHash(checkout, body),
		Scope:       checkout,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, _, err = guard.Do(ctx, "busy", checkout, body, ok)
	require.ErrorIs(t, err, ErrRequestInProgress)
	require.Equal(t, domain.KindTransactionConflict, domain.KindOf(err))

	_, _, err = guard.Do(ctx, "busy", checkout, []byte(`{}`), ok)
	require.ErrorIs(t, err, ErrKeyReused)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	// тот же ключ от другого пользователя тоже считается переиспользованием
	stranger := checkout
	stranger.UserID = "user-2"
	_, _, err = guard.Do(ctx, "busy", stranger, body, ok)
	require.ErrorIs(t, err, ErrKeyReused)

	_, _, err = guard.Do(ctx, "  ", checkout, body, ok)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestGuard_StoresScopeAndResponse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, time.Hour, nil)

	_, _, err := guard.Do(ctx, "order-7", checkout, nil, func(context.Context) Response {
		return Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"order-7"}`)}
	})
	require.NoError(t, err)

	record, err := repo.Get(ctx, "order-7")
	require.NoError(t, err)
	require.Equal(t, checkout, record.Scope)
	require.Equal(t, domain.IdempotencyCompleted, record.State)
	require.Equal(t, http.StatusCreated, record.Response.StatusCode)
	require.JSONEq(t, `{"id":"order-7"}`, string(record.Response.Body))
}

func TestGuard_NilRepositoryRunsHandler(t *testing.T) {
	t.Parallel()

	var guard *Guard
	resp, replayed, err := guard.Do(context.Background(), "k", checkout, nil, func(context.Context) Response {
		return Response{StatusCode: http.StatusAccepted}
	})
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

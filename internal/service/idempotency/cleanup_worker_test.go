package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)

func TestCleanupWorker_DeleteExpired_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{2, 2, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, 3, repo.calls())
}

func TestCleanupWorker_DeleteExpired_StopsAtMaxBatches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{2, 2, 2, 2, 2}}
	worker := NewCleanupWorker(repo, WithBatchSize(2), WithMaxBatches(3))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 6, deleted)
	require.Equal(t, 3, repo.calls())
}

func TestCleanupWorker_DeleteExpired_ErrorKeepsPartialCount(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{
		deleteResults: []int{10},
		deleteErrors:  []error{nil, errors.New("boom")},
	}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	require.EqualError(t, err, "boom")
	require.Equal(t, 10, deleted)
}

func TestCleanupWorker_DeleteExpired_ZeroBeforeUsesClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithClock(func() time.Time { return fixed }))

	_, err := worker.DeleteExpired(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, fixed, repo.lastBefore())
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestCleanupWorker_Run_DisabledWithoutRepo(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

type stubCleanupRepo struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
	before        time.Time
}

func (s *stubCleanupRepo) Claim(context.Context, domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Settle(context.Context, string, domain.ReplayableResponse) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) Release(context.Context, string) error {
	return nil
}

func (s *stubCleanupRepo) DeleteExpired(_ context.Context, before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.before = before

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCleanupRepo) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func TestCleanupWorker_DeleteExpired_MemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"k1", "k2", "k3"} {
		_, err := repo.Claim(ctx, domain.IdempotencyClaim{Key: key, RequestHash: "hash", ExpiresAt: now.Add(-time.Minute)})
		require.NoError(t, err)
	}
	_, err := repo.Claim(ctx, domain.IdempotencyClaim{Key: "alive", RequestHash: "hash", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	worker := NewCleanupWorker(repo, WithBatchSize(2))
	deleted, err := worker.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, err = repo.Get(ctx, "alive")
	require.NoError(t, err)
	_, err = repo.Get(ctx, "k1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.placed",
		Payload:       []byte(`{"orderId":"order-1"}`),
	}

	saved, err := repo.Enqueue(ctx, nil, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	second, err := repo.Enqueue(ctx, nil, domain.OutboxMessage{AggregateType: "order", AggregateID: "order-2"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != saved.ID || pending[1].ID != second.ID {
		t.Fatalf("expected messages in insertion order, got %+v", pending)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_EnqueueInTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Outbox()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := repo.Enqueue(ctx, tx, domain.OutboxMessage{AggregateType: "order"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if got := len(repo.AllPending()); got != 0 {
		t.Fatalf("message must not be visible before commit, got %d", got)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got := len(repo.AllPending()); got != 1 {
		t.Fatalf("expected 1 pending message after commit, got %d", got)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	saved, err := repo.Enqueue(ctx, nil, domain.OutboxMessage{AggregateType: "order"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if got := len(repo.AllPending()); got != 0 {
		t.Fatalf("sent message must leave backlog, got %d", got)
	}

	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository — in-memory transactional outbox поверх Store.
type OutboxRepository struct {
	s *Store
}

// Enqueue сохраняет событие со статусом `pending`. С tx сообщение появится после Commit.
func (r *OutboxRepository) Enqueue(_ context.Context, tx domain.Tx, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	if tx != nil {
		mt, err := r.s.txFrom(tx)
		if err != nil {
			return domain.OutboxMessage{}, err
		}
		mt.outbox = append(mt.outbox, msg)
		return msg, nil
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.putOutbox(msg, r.s.now())
	return msg, nil
}

// putOutbox вызывается под mu.
func (s *Store) putOutbox(msg domain.OutboxMessage, now time.Time) {
	s.outboxSeq++
	s.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		seq:       s.outboxSeq,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке добавления.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.s.mu.RLock()
	pending := make([]*outboxRecord, 0)
	for _, rec := range r.s.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.s.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.markStatus(id, outboxStatusFailed)
}

func (r *OutboxRepository) markStatus(id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.s.now()
	return nil
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.s.mu.RLock()
	n := len(r.s.outbox)
	r.s.mu.RUnlock()

	msgs, _ := r.PullPending(context.Background(), n+1)
	return msgs
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)

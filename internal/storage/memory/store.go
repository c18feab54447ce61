// Package memory реализует хранилище магазина в памяти процесса.
// Используется для локальной разработки, демо-режима и тестов.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stockKey struct {
	productID string
	color     string
}

// Store хранит все сущности магазина. Транзакции выполняются по одной:
// writer — семафор единственного пишущего, mu защищает сами данные.
type Store struct {
	writer chan struct{}

	mu        sync.RWMutex
	products  map[string]domain.Product
	stocks    map[stockKey]int
	configs   map[string]domain.ConfigEntry
	orders    map[string]domain.Order
	users     map[string]domain.User
	addresses map[string]domain.Address
	reviews   map[string]domain.Review
	outbox    map[string]*outboxRecord
	outboxSeq int64

	now func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		writer:    make(chan struct{}, 1),
		products:  make(map[string]domain.Product),
		stocks:    make(map[stockKey]int),
		configs:   make(map[string]domain.ConfigEntry),
		orders:    make(map[string]domain.Order),
		users:     make(map[string]domain.User),
		addresses: make(map[string]domain.Address),
		reviews:   make(map[string]domain.Review),
		outbox:    make(map[string]*outboxRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Begin открывает транзакцию. Ожидание предыдущей транзакции ограничено ctx.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &memTx{
		store:  s,
		ctx:    ctx,
		deltas: make(map[stockKey]int),
	}, nil
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for writer: %w: %w", ctx.Err(), domain.ErrTransactionConflict)
	}
}

func (s *Store) release() {
	<-s.writer
}

// withWriter выполняет изменение вне транзакции, но под тем же семафором.
func (s *Store) withWriter(ctx context.Context, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// txFrom проверяет, что дескриптор открыт этим хранилищем и ещё активен.
func (s *Store) txFrom(tx domain.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, domain.ErrForeignTx
	}
	if mt.done {
		return nil, domain.ErrTxDone
	}
	return mt, nil
}

// Ledger возвращает реестр остатков.
func (s *Store) Ledger() domain.InventoryLedger { return &ledger{s: s} }

// Orders возвращает репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{s: s} }

// Configs возвращает репозиторий параметров.
func (s *Store) Configs() domain.ConfigRepository { return &configRepository{s: s} }

// Catalog возвращает каталог товаров.
func (s *Store) Catalog() domain.CatalogRepository { return &catalogRepository{s: s} }

// Directory возвращает справочник пользователей и адресов.
func (s *Store) Directory() domain.DirectoryRepository { return &directoryRepository{s: s} }

// Stats возвращает агрегирующие запросы по заказам.
func (s *Store) Stats() domain.StatsRepository { return &statsRepository{s: s} }

// Outbox возвращает transactional outbox.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

// memTx накапливает изменения и применяет их разом при Commit.
type memTx struct {
	store  *Store
	ctx    context.Context
	deltas map[stockKey]int
	orders []domain.Order
	outbox []domain.OutboxMessage
	done   bool
}

// Commit применяет накопленные изменения. Отменённый ctx откатывает транзакцию.
func (t *memTx) Commit() error {
	if t.done {
		return domain.ErrTxDone
	}
	t.done = true
	defer t.store.release()

	if err := t.ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range t.orders {
		if _, exists := s.orders[order.ID]; exists {
			return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrTransactionConflict)
		}
	}
	for key, delta := range t.deltas {
		if s.stocks[key]+delta < 0 {
			return &domain.StockError{ProductID: key.productID, Color: key.color, Requested: -delta, Available: s.stocks[key]}
		}
	}

	for key, delta := range t.deltas {
		s.stocks[key] += delta
	}
	for _, order := range t.orders {
		s.orders[order.ID] = cloneOrder(order)
	}
	now := s.now()
	for _, msg := range t.outbox {
		s.putOutbox(msg, now)
	}
	return nil
}

// Rollback отбрасывает накопленные изменения.
func (t *memTx) Rollback() error {
	if t.done {
		return domain.ErrTxDone
	}
	t.done = true
	t.store.release()
	return nil
}

var _ domain.Transactor = (*Store)(nil)

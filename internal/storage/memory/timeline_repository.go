package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TimelineRepository — журнал заказов в памяти. События одного заказа лежат
// отсортированными по Occurred, равные метки сохраняют порядок записи.
type TimelineRepository struct {
	mu     sync.RWMutex
	orders map[string][]domain.TimelineEvent
}

func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{orders: make(map[string][]domain.TimelineEvent)}
}

func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	journal := r.orders[event.OrderID]
	at := sort.Search(len(journal), func(i int) bool {
		return journal[i].Occurred.After(event.Occurred)
	})
	journal = append(journal, domain.TimelineEvent{})
	copy(journal[at+1:], journal[at:])
	journal[at] = event
	r.orders[event.OrderID] = journal
	return nil
}

func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent{}, r.orders[orderID]...), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)

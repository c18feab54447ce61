package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository поверх Store.
type orderRepository struct {
	s *Store
}

// Create добавляет заказ в транзакцию. Заказ станет виден после Commit.
func (r *orderRepository) Create(_ context.Context, tx domain.Tx, order domain.Order) error {
	mt, err := r.s.txFrom(tx)
	if err != nil {
		return err
	}
	for _, staged := range mt.orders {
		if staged.ID == order.ID {
			return domain.ErrOrderVersionConflict
		}
	}
	mt.orders = append(mt.orders, cloneOrder(order))
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// List возвращает страницу заказов по фильтру.
func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	filter = filter.Normalize()
	search := strings.ToLower(filter.Search)

	r.s.mu.RLock()
	matched := make([]domain.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.ProcessStatus != "" && order.ProcessStatus != filter.ProcessStatus {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.TotalMax.Valid && order.Total.GreaterThan(filter.TotalMax.Decimal) {
			continue
		}
		if search != "" {
			user := r.s.users[order.UserID]
			if !strings.Contains(strings.ToLower(user.Name), search) &&
				!strings.Contains(strings.ToLower(user.Email), search) {
				continue
			}
		}
		matched = append(matched, order)
	}
	r.s.mu.RUnlock()

	sortOrders(matched, filter.Sort)

	page := domain.OrderPage{Total: len(matched), Page: filter.Page, Limit: filter.Limit}
	offset := filter.Offset()
	if offset >= len(matched) {
		page.Orders = []domain.Order{}
		return page, nil
	}
	end := offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Orders = make([]domain.Order, 0, end-offset)
	for _, order := range matched[offset:end] {
		page.Orders = append(page.Orders, cloneOrder(order))
	}
	return page, nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (r *orderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.s.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sortOrders(result, domain.OrderSortCreatedDesc)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Позиции заказа неизменяемы после оформления.
	order.Lines = current.Lines
	order.Version++
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func sortOrders(orders []domain.Order, by domain.OrderSort) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		switch by {
		case domain.OrderSortCreatedAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case domain.OrderSortTotalAsc:
			if !a.Total.Equal(b.Total) {
				return a.Total.LessThan(b.Total)
			}
		case domain.OrderSortTotalDesc:
			if !a.Total.Equal(b.Total) {
				return a.Total.GreaterThan(b.Total)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	})
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	return dst
}

var _ domain.OrderRepository = (*orderRepository)(nil)

package domain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	defaultOrderPageLimit = 20
	maxOrderPageLimit     = 100
)

// OrderSort — порядок выдачи списка заказов.
type OrderSort string

const (
	OrderSortCreatedAsc  OrderSort = "createdAt"
	OrderSortCreatedDesc OrderSort = "-createdAt"
	OrderSortTotalAsc    OrderSort = "total"
	OrderSortTotalDesc   OrderSort = "-total"
)

// Valid проверяет, что порядок сортировки поддерживается.
func (s OrderSort) Valid() bool {
	switch s {
	case OrderSortCreatedAsc, OrderSortCreatedDesc, OrderSortTotalAsc, OrderSortTotalDesc:
		return true
	default:
		return false
	}
}

// OrderFilter — фильтр административного списка заказов.
type OrderFilter struct {
	ProcessStatus ProcessStatus
	PaymentStatus PaymentStatus
	TotalMax      decimal.NullDecimal
	// Search ищет подстроку в имени или email покупателя без учёта регистра.
	Search string
	Page   int
	Limit  int
	Sort   OrderSort
}

// Normalize подставляет значения по умолчанию для страницы, лимита и сортировки.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultOrderPageLimit
	}
	if f.Limit > maxOrderPageLimit {
		f.Limit = maxOrderPageLimit
	}
	if !f.Sort.Valid() {
		f.Sort = OrderSortCreatedDesc
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset возвращает смещение для текущей страницы.
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// OrderPage — страница списка заказов.
type OrderPage struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ в рамках tx.
	Create(ctx context.Context, tx Tx, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает страницу заказов по фильтру.
	List(ctx context.Context, filter OrderFilter) (OrderPage, error)
	// ListByUser возвращает заказы пользователя, новые первыми; при limit <= 0 без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// Save применяет изменения статусов с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatsRange — диапазон выборки статистики, обе границы включительно.
type StatsRange struct {
	From time.Time
	To   time.Time
}

// Contains сообщает, попадает ли момент в диапазон.
func (r StatsRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// RevenueBucket — выручка завершённых заказов за календарный день (UTC).
type RevenueBucket struct {
	Date         time.Time
	TotalRevenue decimal.Decimal
	OrderCount   int
}

// PopularProduct — продажи товара за период.
type PopularProduct struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Image     string
	UnitsSold int
	Revenue   decimal.Decimal
}

// FunnelCounts — разбиение заказов периода по исходу.
type FunnelCounts struct {
	Uncompleted int
	Completed   int
	Failed      int
}

// Total возвращает общее число заказов в воронке.
func (f FunnelCounts) Total() int {
	return f.Uncompleted + f.Completed + f.Failed
}

// Add учитывает count заказов со статусом status.
func (f *FunnelCounts) Add(status ProcessStatus, count int) {
	switch status {
	case ProcessStatusPending, ProcessStatusProcessing, ProcessStatusShipped, ProcessStatusDelivered:
		f.Uncompleted += count
	case ProcessStatusCompleted:
		f.Completed += count
	default:
		f.Failed += count
	}
}

// SalesStats — результат агрегатора продаж.
type SalesStats struct {
	Range           StatsRange
	Revenue         []RevenueBucket
	PopularProducts []PopularProduct
	Funnel          FunnelCounts
}

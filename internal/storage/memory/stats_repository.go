package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type statsRepository struct {
	s *Store
}

// Revenue группирует выполненные заказы по дню создания (UTC).
func (r *statsRepository) Revenue(_ context.Context, rng domain.StatsRange) ([]domain.RevenueBucket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byDay := make(map[time.Time]*domain.RevenueBucket)
	for _, order := range r.s.orders {
		if order.ProcessStatus != domain.ProcessStatusCompleted || !rng.Contains(order.CreatedAt) {
			continue
		}
		created := order.CreatedAt.UTC()
		day := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)
		bucket, ok := byDay[day]
		if !ok {
			bucket = &domain.RevenueBucket{Date: day, TotalRevenue: decimal.Zero}
			byDay[day] = bucket
		}
		bucket.TotalRevenue = bucket.TotalRevenue.Add(order.Total)
		bucket.OrderCount++
	}

	result := make([]domain.RevenueBucket, 0, len(byDay))
	for _, bucket := range byDay {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// TopProducts агрегирует позиции выполненных заказов по товару.
// Сортировка по возрастанию проданных единиц, при равенстве по идентификатору товара.
func (r *statsRepository) TopProducts(_ context.Context, rng domain.StatsRange, limit int) ([]domain.PopularProduct, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byProduct := make(map[string]*domain.PopularProduct)
	for _, order := range r.s.orders {
		if order.ProcessStatus != domain.ProcessStatusCompleted || !rng.Contains(order.CreatedAt) {
			continue
		}
		for _, line := range order.Lines {
			item, ok := byProduct[line.ProductID]
			if !ok {
				item = &domain.PopularProduct{
					ProductID: line.ProductID,
					Name:      line.Name,
					Price:     line.UnitPrice,
					Image:     line.Image,
					Revenue:   decimal.Zero,
				}
				byProduct[line.ProductID] = item
			}
			item.UnitsSold += line.Amount
			item.Revenue = item.Revenue.Add(line.LineTotal)
		}
	}

	result := make([]domain.PopularProduct, 0, len(byProduct))
	for _, item := range byProduct {
		if product, ok := r.s.products[item.ProductID]; ok {
			item.Name = product.Name
			item.Price = product.Price
			item.Image = product.Image
		}
		result = append(result, *item)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UnitsSold != result[j].UnitsSold {
			return result[i].UnitsSold < result[j].UnitsSold
		}
		return result[i].ProductID < result[j].ProductID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByProcessStatus считает заказы периода по статусу обработки.
func (r *statsRepository) CountByProcessStatus(_ context.Context, rng domain.StatsRange) (map[domain.ProcessStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[domain.ProcessStatus]int)
	for _, order := range r.s.orders {
		if rng.Contains(order.CreatedAt) {
			counts[order.ProcessStatus]++
		}
	}
	return counts, nil
}

var _ domain.StatsRepository = (*statsRepository)(nil)

package postgres

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type statsRepository struct {
	s *Store
}

// Revenue группирует выполненные заказы по календарному дню UTC.
func (r *statsRepository) Revenue(ctx context.Context, rng domain.StatsRange) ([]domain.RevenueBucket, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		       SUM(total),
		       COUNT(*)
		FROM orders
		WHERE process_status = 'completed'
		  AND created_at BETWEEN $1 AND $2
		GROUP BY day
		ORDER BY day ASC
	`, rng.From, rng.To)
	if err != nil {
		return nil, translateError("revenue query", err)
	}
	defer rows.Close()

	result := make([]domain.RevenueBucket, 0)
	for rows.Next() {
		var bucket domain.RevenueBucket
		if err := rows.Scan(&bucket.Date, &bucket.TotalRevenue, &bucket.OrderCount); err != nil {
			return nil, translateError("scan revenue bucket", err)
		}
		bucket.Date = bucket.Date.UTC()
		result = append(result, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate revenue buckets", err)
	}
	return result, nil
}

// TopProducts агрегирует позиции выполненных заказов. Данные товара берутся из каталога,
// а для удалённых товаров из снимка позиции. Порядок по возрастанию проданных единиц.
func (r *statsRepository) TopProducts(ctx context.Context, rng domain.StatsRange, limit int) ([]domain.PopularProduct, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT l.product_id,
		       COALESCE(p.name, MAX(l.name)),
		       COALESCE(p.price, MAX(l.unit_price)),
		       COALESCE(p.image, MAX(l.image)),
		       SUM(l.amount),
		       SUM(l.line_total)
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		LEFT JOIN products p ON p.id = l.product_id
		WHERE o.process_status = 'completed'
		  AND o.created_at BETWEEN $1 AND $2
		GROUP BY l.product_id, p.name, p.price, p.image
		ORDER BY SUM(l.amount) ASC, l.product_id ASC
		LIMIT $3
	`, rng.From, rng.To, limit)
	if err != nil {
		return nil, translateError("top products query", err)
	}
	defer rows.Close()

	result := make([]domain.PopularProduct, 0, limit)
	for rows.Next() {
		var item domain.PopularProduct
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Image, &item.UnitsSold, &item.Revenue); err != nil {
			return nil, translateError("scan top product", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate top products", err)
	}
	return result, nil
}

// CountByProcessStatus считает все заказы периода по статусу обработки.
func (r *statsRepository) CountByProcessStatus(ctx context.Context, rng domain.StatsRange) (map[domain.ProcessStatus]int, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT process_status, COUNT(*)
		FROM orders
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY process_status
	`, rng.From, rng.To)
	if err != nil {
		return nil, translateError("funnel query", err)
	}
	defer rows.Close()

	counts := make(map[domain.ProcessStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translateError("scan funnel row", err)
		}
		counts[domain.ProcessStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate funnel rows", err)
	}
	return counts, nil
}

var _ domain.StatsRepository = (*statsRepository)(nil)

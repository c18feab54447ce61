package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type ledger struct {
	s *Store
}

// Reserve списывает остаток в рамках транзакции. Списание хранится в tx до Commit.
func (l *ledger) Reserve(ctx context.Context, tx domain.Tx, productID, color string, amount int) (domain.ProductSnapshot, error) {
	if amount <= 0 {
		return domain.ProductSnapshot{}, fmt.Errorf("reserve %s/%s: %w", productID, color, domain.ErrAmountInvalid)
	}
	mt, err := l.s.txFrom(tx)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.ProductSnapshot{}, err
	}

	l.s.mu.RLock()
	product, ok := l.s.products[productID]
	key := stockKey{productID: productID, color: color}
	stock, hasColor := l.s.stocks[key]
	l.s.mu.RUnlock()

	if !ok {
		return domain.ProductSnapshot{}, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
	}
	if !hasColor {
		return domain.ProductSnapshot{}, fmt.Errorf("product %s color %s: %w", productID, color, domain.ErrColorNotFound)
	}

	available := stock + mt.deltas[key]
	if available < amount {
		return domain.ProductSnapshot{}, &domain.StockError{
			ProductID: productID,
			Color:     color,
			Requested: amount,
			Available: available,
		}
	}
	mt.deltas[key] -= amount

	return domain.ProductSnapshot{
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.Image,
		Price:     product.Price,
		Color:     color,
		StockLeft: available - amount,
	}, nil
}

// Stock возвращает зафиксированный остаток.
func (l *ledger) Stock(_ context.Context, productID, color string) (int, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	if _, ok := l.s.products[productID]; !ok {
		return 0, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
	}
	stock, ok := l.s.stocks[stockKey{productID: productID, color: color}]
	if !ok {
		return 0, fmt.Errorf("product %s color %s: %w", productID, color, domain.ErrColorNotFound)
	}
	return stock, nil
}

var _ domain.InventoryLedger = (*ledger)(nil)

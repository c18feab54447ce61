package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type ledger struct {
	s *Store
}

// Reserve блокирует строку остатка (product_id, color) до конца транзакции и списывает amount.
// Ожидание блокировки ограничено lock_timeout транзакции.
func (l *ledger) Reserve(ctx context.Context, tx domain.Tx, productID, color string, amount int) (domain.ProductSnapshot, error) {
	if amount <= 0 {
		return domain.ProductSnapshot{}, fmt.Errorf("reserve %s/%s: %w", productID, color, domain.ErrAmountInvalid)
	}
	pt, err := l.s.txFrom(tx)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	q := pt.tx

	snapshot := domain.ProductSnapshot{ProductID: productID, Color: color}
	err = q.QueryRowContext(ctx, `
		SELECT name, image, price
		FROM products
		WHERE id = $1
		FOR SHARE
	`, productID).Scan(&snapshot.Name, &snapshot.Image, &snapshot.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductSnapshot{}, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
		}
		return domain.ProductSnapshot{}, translateError("select product", err)
	}

	var stock int
	err = q.QueryRowContext(ctx, `
		SELECT stock
		FROM product_color_stocks
		WHERE product_id = $1 AND color = $2
		FOR UPDATE
	`, productID, color).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductSnapshot{}, fmt.Errorf("product %s color %s: %w", productID, color, domain.ErrColorNotFound)
		}
		return domain.ProductSnapshot{}, translateError("lock stock row", err)
	}
	if stock < amount {
		return domain.ProductSnapshot{}, &domain.StockError{ProductID: productID, Color: color, Requested: amount, Available: stock}
	}

	res, err := q.ExecContext(ctx, `
		UPDATE product_color_stocks
		SET stock = stock - $3
		WHERE product_id = $1 AND color = $2 AND stock >= $3
	`, productID, color, amount)
	if err != nil {
		return domain.ProductSnapshot{}, translateError("decrement stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.ProductSnapshot{}, translateError("decrement stock rows affected", err)
	}
	if affected == 0 {
		return domain.ProductSnapshot{}, &domain.StockError{ProductID: productID, Color: color, Requested: amount, Available: stock}
	}

	snapshot.StockLeft = stock - amount
	return snapshot, nil
}

// Stock возвращает зафиксированный остаток.
func (l *ledger) Stock(ctx context.Context, productID, color string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stock  sql.NullInt64
		exists bool
	)
	err := l.s.db.QueryRowContext(ctx, `
		SELECT TRUE, s.stock
		FROM products p
		LEFT JOIN product_color_stocks s ON s.product_id = p.id AND s.color = $2
		WHERE p.id = $1
	`, productID, color).Scan(&exists, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("product %s: %w", productID, domain.ErrProductNotFound)
		}
		return 0, translateError("select stock", err)
	}
	if !stock.Valid {
		return 0, fmt.Errorf("product %s color %s: %w", productID, color, domain.ErrColorNotFound)
	}
	return int(stock.Int64), nil
}

var _ domain.InventoryLedger = (*ledger)(nil)

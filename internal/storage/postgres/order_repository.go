package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `o.id, o.user_id, o.address_id, o.subtotal, o.shipping_fee, o.total,
	o.payment_method, o.payment_status, o.process_status, o.version, o.created_at, o.updated_at`

type orderRepository struct {
	s *Store
}

// Create вставляет заказ и его позиции в рамках tx.
func (r *orderRepository) Create(ctx context.Context, tx domain.Tx, order domain.Order) error {
	pt, err := r.s.txFrom(tx)
	if err != nil {
		return err
	}
	q := pt.tx

	_, err = q.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, address_id, subtotal, shipping_fee, total,
			payment_method, payment_status, process_status, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		order.ID, order.UserID, order.AddressID, order.Subtotal, order.ShippingFee, order.Total,
		string(order.PaymentMethod), string(order.PaymentStatus), string(order.ProcessStatus),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return translateError("insert order", err)
	}

	for i, line := range order.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_lines (
				order_id, position, product_id, color, amount, unit_price, line_total, name, image
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			order.ID, i, line.ProductID, line.Color, line.Amount,
			line.UnitPrice, line.LineTotal, line.Name, line.Image,
		); err != nil {
			return translateError("insert order line", err)
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, translateError("select order", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

// List строит запрос по фильтру; поиск идёт по имени и email покупателя.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter = filter.Normalize()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProcessStatus != "" {
		conds = append(conds, "o.process_status = "+arg(string(filter.ProcessStatus)))
	}
	if filter.PaymentStatus != "" {
		conds = append(conds, "o.payment_status = "+arg(string(filter.PaymentStatus)))
	}
	if filter.TotalMax.Valid {
		conds = append(conds, "o.total <= "+arg(filter.TotalMax.Decimal))
	}
	if filter.Search != "" {
		p := arg("%" + escapeLike(filter.Search) + "%")
		conds = append(conds, "(u.name ILIKE "+p+" OR u.email ILIKE "+p+")")
	}

	from := ` FROM orders o LEFT JOIN users u ON u.id = o.user_id`
	if len(conds) > 0 {
		from += " WHERE " + strings.Join(conds, " AND ")
	}

	page := domain.OrderPage{Page: filter.Page, Limit: filter.Limit, Orders: []domain.Order{}}
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&page.Total); err != nil {
		return domain.OrderPage{}, translateError("count orders", err)
	}
	if page.Total == 0 {
		return page, nil
	}

	query := `SELECT ` + orderColumns + from +
		` ORDER BY ` + orderBy(filter.Sort) +
		` LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset())

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return domain.OrderPage{}, err
	}
	page.Orders = orders
	return page, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`
	if limit > 0 {
		return r.queryOrders(ctx, query+" LIMIT $2", userID, limit)
	}
	return r.queryOrders(ctx, query, userID)
}

// Save обновляет статусы с проверкой версии. Позиции заказа не меняются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    process_status = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`,
		string(order.PaymentStatus),
		string(order.ProcessStatus),
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return translateError("update order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return translateError("rows affected", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return translateError("check order exists", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, translateError("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate order rows", err)
	}

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT product_id, color, amount, unit_price, line_total, name, image
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, translateError("load order lines", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ProductID, &line.Color, &line.Amount,
			&line.UnitPrice, &line.LineTotal, &line.Name, &line.Image,
		); err != nil {
			return nil, translateError("scan order line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate order lines", err)
	}

	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                 domain.Order
		paymentMethod, paymentStatus, process string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.AddressID,
		&order.Subtotal, &order.ShippingFee, &order.Total,
		&paymentMethod, &paymentStatus, &process,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.ProcessStatus = domain.ProcessStatus(process)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func orderBy(sort domain.OrderSort) string {
	switch sort {
	case domain.OrderSortCreatedAsc:
		return "o.created_at ASC, o.id DESC"
	case domain.OrderSortTotalAsc:
		return "o.total ASC, o.id DESC"
	case domain.OrderSortTotalDesc:
		return "o.total DESC, o.id DESC"
	default:
		return "o.created_at DESC, o.id DESC"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ domain.OrderRepository = (*orderRepository)(nil)

package postgres

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type timelineRepository struct {
	s *Store
}

// Timeline возвращает журнал событий заказов.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{s: s} }

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, from_status, to_status, payment_status, reason, occurred)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.OrderID, string(event.Type), string(event.From), string(event.To), string(event.Payment),
		event.Reason, event.Occurred)
	return translateError("append timeline event", err)
}

// List отдаёт журнал в порядке событий; при равном времени побеждает порядок вставки.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.db.QueryContext(ctx, `
		SELECT order_id, type, from_status, to_status, payment_status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id
	`, orderID)
	if err != nil {
		return nil, translateError("list timeline events", err)
	}
	defer rows.Close()

	journal := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event                  domain.TimelineEvent
			typ, from, to, payment string
		)
		if err := rows.Scan(&event.OrderID, &typ, &from, &to, &payment, &event.Reason, &event.Occurred); err != nil {
			return nil, translateError("scan timeline event", err)
		}
		event.Type = domain.TimelineEventType(typ)
		event.From = domain.ProcessStatus(from)
		event.To = domain.ProcessStatus(to)
		event.Payment = domain.PaymentStatus(payment)
		event.Occurred = event.Occurred.UTC()
		journal = append(journal, event)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("iterate timeline events", err)
	}
	return journal, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)

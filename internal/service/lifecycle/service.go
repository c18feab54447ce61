// Package lifecycle меняет статусы обработки и оплаты уже оформленных заказов.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	maxSaveAttempts = 3
	baseSaveDelay   = 10 * time.Millisecond
)

// Dependencies — зависимости сервиса. Всё, кроме Orders, необязательно.
type Dependencies struct {
	Orders   domain.OrderRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Events   kafka.EventPublisher
	Metrics  *metrics.OrderMetrics
	Logger   *log.Entry
	Now      func() time.Time
}

// Service применяет переходы статусов с optimistic locking.
type Service struct {
	deps   Dependencies
	logger *log.Entry
	tracer trace.Tracer
}

// NewService создаёт сервис переходов.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("lifecycle: order repository is required")
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	return &Service{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("storefront/lifecycle"),
	}, nil
}

// UpdateProcessStatus устанавливает статус обработки и пересчитывает статус оплаты.
// Любой известный статус может следовать за любым.
func (s *Service) UpdateProcessStatus(ctx context.Context, orderID string, next domain.ProcessStatus) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.UpdateProcessStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.process_status", string(next)),
	))
	defer span.End()

	if !next.Valid() {
		err := fmt.Errorf("process status %q: %w", next, domain.ErrInvalidStatusTransition)
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}

	var previous domain.ProcessStatus
	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		previous = o.ProcessStatus
		before := o.PaymentStatus
		if err := o.ApplyProcessStatus(next, s.deps.Now()); err != nil {
			return false, err
		}
		return previous != next || before != o.PaymentStatus, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	s.deps.Metrics.RecordStatusTransition(next)
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"from":           previous,
		"to":             next,
		"payment_status": order.PaymentStatus,
	}).Info("order status changed")

	s.appendTimeline(ctx, domain.StatusChangedEvent(order, previous, s.deps.Now()))
	s.emit(ctx, kafka.EventTypeOrderStatusChanged, order, map[string]any{"previous_status": string(previous)})
	return order, nil
}

// MarkPaid — идемпотентный сигнал об оплате: unpaid становится paid, повторный вызов ничего не меняет.
// Отменённый или возвращённый заказ оплатить нельзя.
func (s *Service) MarkPaid(ctx context.Context, orderID string) (domain.Order, error) {
	order, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		switch o.PaymentStatus {
		case domain.PaymentStatusPaid:
			return false, nil
		case domain.PaymentStatusUnpaid:
			o.PaymentStatus = domain.PaymentStatusPaid
			o.UpdatedAt = s.deps.Now()
			return true, nil
		default:
			return false, fmt.Errorf("cannot mark %s order as paid: %w", o.PaymentStatus, domain.ErrInvalidStatusTransition)
		}
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return order, nil
	}

	s.deps.Metrics.RecordMarkedPaid()
	s.logger.WithField("order_id", order.ID).Info("order marked as paid")
	s.appendTimeline(ctx, domain.OrderPaidEvent(order, s.deps.Now()))
	s.emit(ctx, kafka.EventTypeOrderPaid, order, nil)
	return order, nil
}

// mutate применяет fn к свежей версии заказа и сохраняет её.
// При конфликте версий заказ перечитывается и fn применяется заново.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(*domain.Order) (bool, error)) (domain.Order, bool, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		order, err := s.deps.Orders.Get(ctx, orderID)
		if err != nil {
			return domain.Order{}, false, err
		}

		changed, err := fn(&order)
		if err != nil || !changed {
			return order, false, err
		}

		prevVersion := order.Version
		err = s.deps.Orders.Save(ctx, order)
		if err == nil {
			order.Version = prevVersion + 1
			return order, true, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxSaveAttempts-1 {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return domain.Order{}, false, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"attempt":  attempt + 1,
			"version":  prevVersion,
		}).Warn("version conflict detected, retrying")

		delay := baseSaveDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return domain.Order{}, false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return domain.Order{}, false, domain.ErrOrderVersionConflict
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.deps.Timeline == nil {
		return
	}
	if err := s.deps.Timeline.Append(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("failed to append timeline event")
		return
	}
	s.deps.Metrics.RecordTimelineEvent()
}

// emit кладёт событие в outbox. Если outbox не настроен или запись не удалась, событие
// публикуется напрямую через producer. Заказ уже сохранён, поэтому сбой доставки только логируется.
func (s *Service) emit(ctx context.Context, eventType kafka.EventType, order domain.Order, metadata map[string]any) {
	event := kafka.NewOrderEvent(eventType, order, metadata)
	entry := s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"event_type": eventType,
	})

	if s.deps.Outbox != nil {
		err := s.enqueue(ctx, eventType, order.ID, event)
		if err == nil {
			s.deps.Metrics.RecordOutboxEvent()
			return
		}
		entry.WithError(err).Warn("failed to enqueue outbox message")
	}

	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
		entry.WithError(err).Warn("failed to publish order event")
	}
}

func (s *Service) enqueue(ctx context.Context, eventType kafka.EventType, orderID string, event *kafka.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	_, err = s.deps.Outbox.Enqueue(context.WithoutCancel(ctx), nil, domain.OutboxMessage{
		AggregateType: kafka.AggregateOrder,
		AggregateID:   orderID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	return err
}

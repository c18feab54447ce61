package kafka

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeOrderPlaced        EventType = "order.placed"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderPaid          EventType = "order.paid"

	EventTypeOrderConfirmation EventType = "notification.order_confirmation"
)

// AggregateOrder — тип агрегата для outbox-сообщений заказа.
const AggregateOrder = "order"

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicNotifications   = "storefront.notifications"
	TopicDeadLetterQueue = "storefront.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — снимок заказа в событии жизненного цикла.
type OrderEvent struct {
	EventType     EventType       `json:"event_type"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	ProcessStatus string          `json:"process_status"`
	PaymentStatus string          `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Timestamp     time.Time       `json:"timestamp"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие по текущему состоянию заказа.
func NewOrderEvent(eventType EventType, order domain.Order, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		ProcessStatus: string(order.ProcessStatus),
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total,
		Timestamp:     time.Now().UTC(),
		Metadata:      metadata,
	}
}

// NotificationMessage — запрос на отправку письма о подтверждении заказа.
type NotificationMessage struct {
	EventType   EventType       `json:"event_type"`
	Recipient   string          `json:"recipient"`
	UserID      string          `json:"user_id"`
	OrderID     string          `json:"order_id"`
	Total       decimal.Decimal `json:"total"`
	RequestedAt time.Time       `json:"requested_at"`
}

// NewNotificationMessage упаковывает подтверждение для топика уведомлений.
func NewNotificationMessage(msg domain.OrderConfirmation) *NotificationMessage {
	return &NotificationMessage{
		EventType:   EventTypeOrderConfirmation,
		Recipient:   msg.Recipient,
		UserID:      msg.UserID,
		OrderID:     msg.OrderID,
		Total:       msg.Total,
		RequestedAt: time.Now().UTC(),
	}
}

// Confirmation возвращает доменное представление сообщения.
func (m NotificationMessage) Confirmation() domain.OrderConfirmation {
	return domain.OrderConfirmation{
		Recipient: m.Recipient,
		UserID:    m.UserID,
		OrderID:   m.OrderID,
		Total:     m.Total,
	}
}

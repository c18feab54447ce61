package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimelineEventType — шаг жизненного цикла заказа.
type TimelineEventType string

const (
	TimelineOrderPlaced        TimelineEventType = "OrderPlaced"
	TimelineOrderStatusChanged TimelineEventType = "OrderStatusChanged"
	TimelineOrderPaid          TimelineEventType = "OrderPaid"
	TimelineNotificationFailed TimelineEventType = "NotificationFailed"
)

func (t TimelineEventType) Valid() bool {
	switch t {
	case TimelineOrderPlaced, TimelineOrderStatusChanged, TimelineOrderPaid, TimelineNotificationFailed:
		return true
	}
	return false
}

// TimelineEvent — запись журнала заказа. From заполнен только у смены статуса,
// To и Payment фиксируют состояние заказа сразу после события.
type TimelineEvent struct {
	OrderID  string
	Type     TimelineEventType
	From     ProcessStatus
	To       ProcessStatus
	Payment  PaymentStatus
	Reason   string
	Occurred time.Time
}

// OrderPlacedEvent открывает журнал только что оформленного заказа.
func OrderPlacedEvent(order Order, at time.Time) TimelineEvent {
	return snapshotEvent(order, TimelineOrderPlaced, at)
}

// StatusChangedEvent фиксирует переход from -> order.ProcessStatus.
func StatusChangedEvent(order Order, from ProcessStatus, at time.Time) TimelineEvent {
	event := snapshotEvent(order, TimelineOrderStatusChanged, at)
	event.From = from
	event.Reason = fmt.Sprintf("%s -> %s", from, order.ProcessStatus)
	return event
}

func OrderPaidEvent(order Order, at time.Time) TimelineEvent {
	return snapshotEvent(order, TimelineOrderPaid, at)
}

// NotificationFailedEvent не меняет состояние заказа, поэтому статусы пустые.
func NotificationFailedEvent(orderID string, cause error, at time.Time) TimelineEvent {
	event := TimelineEvent{OrderID: orderID, Type: TimelineNotificationFailed, Occurred: at}
	if cause != nil {
		event.Reason = cause.Error()
	}
	return event
}

func snapshotEvent(order Order, typ TimelineEventType, at time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  order.ID,
		Type:     typ,
		To:       order.ProcessStatus,
		Payment:  order.PaymentStatus,
		Occurred: at,
	}
}

// Validate проверяет событие перед записью в журнал.
func (e TimelineEvent) Validate() error {
	if strings.TrimSpace(e.OrderID) == "" {
		return NewValidationError("order_id", "timeline event needs an order")
	}
	if !e.Type.Valid() {
		return NewValidationError("type", fmt.Sprintf("unknown timeline event %q", e.Type))
	}
	if e.Type == TimelineOrderStatusChanged && (!e.From.Valid() || !e.To.Valid()) {
		return NewValidationError("status", "status change needs both statuses")
	}
	return nil
}

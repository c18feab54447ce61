// Package notify доставляет подтверждения заказов: напрямую в лог, через топик Kafka
// или из consumer group в EmailSender.
package notify

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// LogNotifier пишет подтверждение в лог вместо отправки письма.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier, пишущий в logger.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.WithField("component", "notifier")
	}
	return &LogNotifier{logger: logger}
}

// OrderConfirmed логирует подтверждение.
func (n *LogNotifier) OrderConfirmed(ctx context.Context, msg domain.OrderConfirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.WithFields(log.Fields{
		"recipient": msg.Recipient,
		"user_id":   msg.UserID,
		"order_id":  msg.OrderID,
		"total":     msg.Total.StringFixed(2),
	}).Info("order confirmation")
	return nil
}

// KafkaNotifier ставит подтверждение в топик уведомлений; письмо отправляет consumer.
type KafkaNotifier struct {
	producer kafka.EventPublisher
	topic    string
}

// NewKafkaNotifier создаёт notifier поверх producer. Пустой topic заменяется на TopicNotifications.
func NewKafkaNotifier(producer kafka.EventPublisher, topic string) *KafkaNotifier {
	if topic == "" {
		topic = kafka.TopicNotifications
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

// OrderConfirmed публикует NotificationMessage с ключом по заказу.
func (n *KafkaNotifier) OrderConfirmed(ctx context.Context, msg domain.OrderConfirmation) error {
	if n.producer == nil {
		return errors.New("kafka notifier: producer is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.producer.PublishEvent(n.topic, msg.OrderID, kafka.NewNotificationMessage(msg)); err != nil {
		return fmt.Errorf("publish order confirmation: %w", err)
	}
	return nil
}

// GuardedNotifier пропускает вызовы через CircuitBreaker, чтобы не ждать таймаут недоступного канала.
type GuardedNotifier struct {
	next    domain.Notifier
	breaker *CircuitBreaker
}

// NewGuardedNotifier оборачивает next.
func NewGuardedNotifier(next domain.Notifier, breaker *CircuitBreaker) *GuardedNotifier {
	return &GuardedNotifier{next: next, breaker: breaker}
}

// OrderConfirmed вызывает next, если breaker замкнут.
func (n *GuardedNotifier) OrderConfirmed(ctx context.Context, msg domain.OrderConfirmation) error {
	return n.breaker.Execute("order_confirmed", func() error {
		return n.next.OrderConfirmed(ctx, msg)
	})
}

var (
	_ domain.Notifier = (*LogNotifier)(nil)
	_ domain.Notifier = (*KafkaNotifier)(nil)
	_ domain.Notifier = (*GuardedNotifier)(nil)
)

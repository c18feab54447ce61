package notify

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// EmailSender отправляет письмо о подтверждении заказа.
type EmailSender interface {
	SendOrderConfirmation(ctx context.Context, msg domain.OrderConfirmation) error
}

// LogEmailSender — заглушка почтового сервиса.
type LogEmailSender struct {
	logger *log.Entry
}

// NewLogEmailSender создаёт заглушку, пишущую письма в лог.
func NewLogEmailSender(logger *log.Entry) *LogEmailSender {
	if logger == nil {
		logger = log.WithField("component", "email")
	}
	return &LogEmailSender{logger: logger}
}

// SendOrderConfirmation логирует письмо.
func (s *LogEmailSender) SendOrderConfirmation(_ context.Context, msg domain.OrderConfirmation) error {
	s.logger.WithFields(log.Fields{
		"to":       msg.Recipient,
		"order_id": msg.OrderID,
		"total":    msg.Total.StringFixed(2),
	}).Info("order confirmation email sent")
	return nil
}

// NewConfirmationHandler возвращает обработчик топика уведомлений для kafka.Consumer.
// Ошибка разбора или отправки возвращается consumer, который повторит попытку или отправит сообщение в DLQ.
func NewConfirmationHandler(sender EmailSender) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		msg, err := kafka.ParseNotificationMessage(message)
		if err != nil {
			return err
		}
		confirmation := msg.Confirmation()
		if confirmation.Recipient == "" {
			return fmt.Errorf("order %s: %w", confirmation.OrderID, domain.NewValidationError("recipient", "is required"))
		}
		return sender.SendOrderConfirmation(ctx, confirmation)
	}
}

package app

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
)

const notificationConsumerGroup = "storefront-notifications"

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// initKafkaProducer создаёт producer, если brokers не пустой.
// Для пустого списка возвращает nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(list)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer, nil
}

// closeKafkaProducer закрывает producer, если он создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// startNotificationConsumer читает топик уведомлений и передаёт письма в sender.
// Сообщения, исчерпавшие попытки, уходят в DLQ через producer.
func startNotificationConsumer(ctx context.Context, brokers string, producer *kafka.Producer, sender notify.EmailSender, logger *log.Entry) (*kafka.Consumer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, errors.New("kafka brokers are required for notification consumer")
	}

	var dlq kafka.DeadLetterPublisher
	if producer != nil {
		dlq = producer
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: list,
		GroupID: notificationConsumerGroup,
		Topics:  []string{kafka.TopicNotifications},
	}, notify.NewConfirmationHandler(sender), dlq)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	logger.WithField("topic", kafka.TopicNotifications).Info("notification consumer started")
	return consumer, nil
}

func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}

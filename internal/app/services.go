package app

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/placement"
	"github.com/vladislavdragonenkov/storefront/internal/service/stats"
	"github.com/vladislavdragonenkov/storefront/internal/service/txn"
	"github.com/vladislavdragonenkov/storefront/internal/storage/rediscache"
)

const (
	notifyBreakerFailures = 5
	notifyBreakerReset    = 30 * time.Second
)

// services — собранные прикладные сервисы.
type services struct {
	placement *placement.Service
	lifecycle *lifecycle.Service
	stats     *stats.Aggregator
	guard     *idempotency.Guard
	redis     *redis.Client
}

// buildServices связывает репозитории, Kafka и кеш в сервисы. producer может быть nil.
func buildServices(cfg Config, deps *runtimeDeps, producer *kafka.Producer, m *metrics.OrderMetrics, logger *log.Entry) (*services, error) {
	if deps == nil {
		return nil, errors.New("runtime dependencies are required")
	}

	var events kafka.EventPublisher
	if producer != nil {
		events = producer
	}

	retry := txn.DefaultRetryConfig()
	if cfg.PlacementMaxAttempts > 0 {
		retry.MaxAttempts = cfg.PlacementMaxAttempts
	}

	placementSvc, err := placement.NewService(placement.Dependencies{
		Transactor:     deps.transactor,
		Ledger:         deps.ledger,
		Configs:        deps.configs,
		Orders:         deps.repo,
		Outbox:         deps.outboxRepo,
		Directory:      deps.directory,
		Timeline:       deps.timelineRepo,
		Payments:       payment.NewMockGateway(),
		Notifier:       createNotifier(cfg, events, logger),
		Metrics:        m,
		Logger:         logger.WithField("component", "placement"),
		Retry:          retry,
		NotifyTimeout:  cfg.NotifyTimeout,
		PaymentTimeout: cfg.PaymentTimeout,
	})
	if err != nil {
		return nil, err
	}

	lifecycleSvc, err := lifecycle.NewService(lifecycle.Dependencies{
		Orders:   deps.repo,
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
		Events:   events,
		Metrics:  m,
		Logger:   logger.WithField("component", "lifecycle"),
	})
	if err != nil {
		return nil, err
	}

	svc := &services{
		placement: placementSvc,
		lifecycle: lifecycleSvc,
		guard:     idempotency.NewGuard(deps.idempotencyRepo, idempotency.DefaultTTL, logger.WithField("component", "idempotency")),
	}

	statsOpts := []stats.Option{
		stats.WithMetrics(m),
		stats.WithLogger(logger.WithField("component", "stats")),
	}
	if cfg.RedisAddr != "" {
		svc.redis = rediscache.New(cfg.RedisAddr)
		statsOpts = append(statsOpts, stats.WithCache(rediscache.NewStatsCache(svc.redis), cfg.StatsCacheTTL))
		logger.WithField("addr", cfg.RedisAddr).Info("stats cache enabled")
	}
	svc.stats = stats.NewAggregator(deps.stats, statsOpts...)

	return svc, nil
}

// createNotifier выбирает канал подтверждений. Kafka без producer заменяется логом.
func createNotifier(cfg Config, events kafka.EventPublisher, logger *log.Entry) domain.Notifier {
	notifyLogger := logger.WithField("component", "notifier")

	var next domain.Notifier = notify.NewLogNotifier(notifyLogger)
	if cfg.NotifyMode == NotifyModeKafka {
		if events == nil {
			notifyLogger.Warn("kafka notify mode requires KAFKA_BROKERS, falling back to log notifier")
		} else {
			next = notify.NewKafkaNotifier(events, kafka.TopicNotifications)
		}
	}
	breaker := notify.NewCircuitBreaker(notifyBreakerFailures, notifyBreakerReset, notifyLogger)
	return notify.NewGuardedNotifier(next, breaker)
}

// logOutboxPublisher публикует outbox-события в лог, когда Kafka не настроена.
type logOutboxPublisher struct {
	logger *log.Entry
}

func (p logOutboxPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"aggregate_id": event.AggregateID,
		"event_type":   event.EventType,
	}).Info("outbox event")
	return nil
}

// outboxPublishers возвращает основной и DLQ паблишеры outbox worker.
func outboxPublishers(producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return logOutboxPublisher{logger: logger.WithField("component", "outbox-log")}, nil
	}
	return kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents), kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envHTTPAddr                    = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr                    = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr                 = "STOREFRONT_METRICS_ADDR"
	envStorageDriver               = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN                 = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envLockTimeout                 = "STOREFRONT_LOCK_TIMEOUT"
	envSeedDemoData                = "STOREFRONT_SEED_DEMO_DATA"
	envRedisAddr                   = "STOREFRONT_REDIS_ADDR"
	envStatsCacheTTL               = "STOREFRONT_STATS_CACHE_TTL"
	envKafkaBrokers                = "STOREFRONT_KAFKA_BROKERS"
	envNotifyMode                  = "STOREFRONT_NOTIFY_MODE"
	envNotifyConsumer              = "STOREFRONT_NOTIFY_CONSUMER"
	envNotifyTimeout               = "STOREFRONT_NOTIFY_TIMEOUT"
	envPaymentTimeout              = "STOREFRONT_PAYMENT_TIMEOUT"
	envOTLPEndpoint                = "STOREFRONT_OTLP_ENDPOINT"
	envOutboxPollInterval          = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envPlacementMaxAttempts        = "STOREFRONT_PLACEMENT_MAX_ATTEMPTS"
	envRequestTimeout              = "STOREFRONT_REQUEST_TIMEOUT"
	envLogLevel                    = "STOREFRONT_LOG_LEVEL"
	envLogFormat                   = "STOREFRONT_LOG_FORMAT"
)

type envLookup func(string) (string, bool)

// configWarning описывает переменную окружения, значение которой отброшено.
type configWarning struct {
	key   string
	value string
	err   error
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) error {
	format, _ := lookup(envLogFormat)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.SetLevel(log.InfoLevel)
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", envLogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не останавливают запуск: остаётся значение по умолчанию и предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	cfg := app.DefaultConfig()
	var warnings []configWarning

	str := func(key string, dst *string, normalize func(string) string) {
		value, ok := lookup(key)
		if !ok {
			return
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if normalize != nil {
			value = normalize(value)
		}
		*dst = value
	}
	boolean := func(key string, dst *bool) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := parseBool(value)
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: value, err: err})
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := parseInt(value, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: value, err: err})
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, positive bool) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		valid, rule := func(v time.Duration) bool { return v >= 0 }, "must be >= 0"
		if positive {
			valid, rule = func(v time.Duration) bool { return v > 0 }, "must be > 0"
		}
		parsed, err := parseDuration(value, valid, rule)
		if err != nil {
			warnings = append(warnings, configWarning{key: key, value: value, err: err})
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr, nil)
	str(envGRPCAddr, &cfg.GRPCAddr, nil)
	str(envMetricsAddr, &cfg.MetricsAddr, nil)
	str(envStorageDriver, &cfg.StorageDriver, strings.ToLower)
	str(envPostgresDSN, &cfg.PostgresDSN, nil)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	duration(envLockTimeout, &cfg.LockTimeout, false)
	boolean(envSeedDemoData, &cfg.SeedDemoData)

	str(envRedisAddr, &cfg.RedisAddr, nil)
	duration(envStatsCacheTTL, &cfg.StatsCacheTTL, false)

	str(envKafkaBrokers, &cfg.KafkaBrokers, nil)
	if value, ok := lookup(envNotifyMode); ok && strings.TrimSpace(value) != "" {
		mode := strings.ToLower(strings.TrimSpace(value))
		switch mode {
		case app.NotifyModeLog, app.NotifyModeKafka:
			cfg.NotifyMode = mode
		default:
			warnings = append(warnings, configWarning{
				key:   envNotifyMode,
				value: value,
				err:   fmt.Errorf("must be %q or %q", app.NotifyModeLog, app.NotifyModeKafka),
			})
		}
	}
	boolean(envNotifyConsumer, &cfg.NotifyConsumer)
	duration(envNotifyTimeout, &cfg.NotifyTimeout, true)
	duration(envPaymentTimeout, &cfg.PaymentTimeout, true)

	str(envOTLPEndpoint, &cfg.OTLPEndpoint, nil)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, true)
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, false)

	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, true)
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	integer(envPlacementMaxAttempts, &cfg.PlacementMaxAttempts)
	duration(envRequestTimeout, &cfg.RequestTimeout, true)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

// loadDotEnv подхватывает .env, если он есть. Уже заданные переменные не перезаписываются.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		log.WithError(err).Warn("не удалось прочитать .env")
	}
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("некорректный уровень логирования, используем info")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithFields(log.Fields{"env": w.key, "value": w.value}).WithError(w.err).
			Warn("некорректное значение переменной окружения, используем значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"notify_mode":    cfg.NotifyMode,
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}

package app

import "time"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Режимы отправки подтверждений заказа.
const (
	NotifyModeLog   = "log"
	NotifyModeKafka = "kafka"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	LockTimeout         time.Duration
	SeedDemoData        bool

	RedisAddr     string
	StatsCacheTTL time.Duration

	// KafkaBrokers — список брокеров через запятую. Пустой отключает Kafka.
	KafkaBrokers   string
	NotifyMode     string
	NotifyConsumer bool
	NotifyTimeout  time.Duration
	// PaymentTimeout ограничивает вызов платёжного шлюза внутри транзакции оформления.
	PaymentTimeout time.Duration

	OTLPEndpoint string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	PlacementMaxAttempts int
	RequestTimeout       time.Duration
}

// DefaultConfig возвращает настройки локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		LockTimeout:                 2 * time.Second,
		SeedDemoData:                true,
		StatsCacheTTL:               time.Minute,
		NotifyMode:                  NotifyModeLog,
		NotifyTimeout:               5 * time.Second,
		PaymentTimeout:              2 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		PlacementMaxAttempts:        3,
		RequestTimeout:              15 * time.Second,
	}
}

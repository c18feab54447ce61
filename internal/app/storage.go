package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// runtimeDeps — репозитории выбранного драйвера хранилища.
type runtimeDeps struct {
	transactor      domain.Transactor
	ledger          domain.InventoryLedger
	configs         domain.ConfigRepository
	catalog         domain.CatalogRepository
	directory       domain.DirectoryRepository
	stats           domain.StatsRepository
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDeps, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		return initMemoryDependencies(ctx, cfg, logger)
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDeps, error) {
	store := memory.NewStore()
	if cfg.SeedDemoData {
		if err := memory.SeedDemoData(ctx, store); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("memory storage seeded with demo data")
	}

	return &runtimeDeps{
		transactor:      store,
		ledger:          store.Ledger(),
		configs:         store.Configs(),
		catalog:         store.Catalog(),
		directory:       store.Directory(),
		stats:           store.Stats(),
		repo:            store.Orders(),
		outboxRepo:      store.Outbox(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  healthcheck.CheckFunc(func(context.Context) error { return nil }),
		closeFn:         func() error { return nil },
	}, nil
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDeps, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN,
		postgres.WithLockTimeout(cfg.LockTimeout),
		postgres.WithLogger(logger.WithField("component", "postgres")),
	)
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &runtimeDeps{
		transactor:      store,
		ledger:          store.Ledger(),
		configs:         store.Configs(),
		catalog:         store.Catalog(),
		directory:       store.Directory(),
		stats:           store.Stats(),
		repo:            store.Orders(),
		outboxRepo:      store.Outbox(),
		timelineRepo:    store.Timeline(),
		idempotencyRepo: store.Idempotency(),
		storageChecker:  healthcheck.PingChecker(store.DB()),
		closeFn:         store.Close,
	}, nil
}

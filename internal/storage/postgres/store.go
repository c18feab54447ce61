// Package postgres реализует хранилище магазина поверх PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultLockTimeout     = 2 * time.Second

	opTimeout = 5 * time.Second
)

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	log         *logrus.Entry
}

// Option настраивает Store.
type Option func(*Store)

// WithLockTimeout ограничивает ожидание блокировки строки внутри транзакции.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger задаёт логгер для миграций и служебных сообщений.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{
		db:          db,
		lockTimeout: defaultLockTimeout,
		log:         logrus.NewEntry(logrus.StandardLogger()).WithField("component", "postgres"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin открывает транзакцию READ COMMITTED с ограниченным ожиданием блокировок.
// Отмена ctx откатывает транзакцию на стороне database/sql.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, translateError("begin transaction", err)
	}

	// SET LOCAL не принимает параметры, значение формируется из целого числа миллисекунд.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
		_ = sqlTx.Rollback()
		return nil, translateError("set lock timeout", err)
	}

	return &pgTx{store: s, tx: sqlTx}, nil
}

// pgTx — дескриптор транзакции PostgreSQL.
type pgTx struct {
	store *Store
	tx    *sql.Tx
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return domain.ErrTxDone
		}
		return translateError("commit", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return domain.ErrTxDone
		}
		return translateError("rollback", err)
	}
	return nil
}

// txFrom проверяет, что дескриптор открыт этим хранилищем.
func (s *Store) txFrom(tx domain.Tx) (*pgTx, error) {
	pt, ok := tx.(*pgTx)
	if !ok || pt.store != s {
		return nil, domain.ErrForeignTx
	}
	return pt, nil
}

// querier возвращает транзакцию или пул, если tx == nil.
func (s *Store) querier(tx domain.Tx) (querier, error) {
	if tx == nil {
		return s.db, nil
	}
	pt, err := s.txFrom(tx)
	if err != nil {
		return nil, err
	}
	return pt.tx, nil
}

// inTx выполняет fn в собственной короткой транзакции хранилища.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(sqlTx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return translateError("commit", err)
	}
	return nil
}

// Ledger возвращает реестр остатков.
func (s *Store) Ledger() domain.InventoryLedger { return &ledger{s: s} }

// Orders возвращает репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{s: s} }

// Configs возвращает репозиторий параметров.
func (s *Store) Configs() domain.ConfigRepository { return &configRepository{s: s} }

// Catalog возвращает каталог товаров.
func (s *Store) Catalog() domain.CatalogRepository { return &catalogRepository{s: s} }

// Directory возвращает справочник пользователей и адресов.
func (s *Store) Directory() domain.DirectoryRepository { return &directoryRepository{s: s} }

// Stats возвращает агрегирующие запросы по заказам.
func (s *Store) Stats() domain.StatsRepository { return &statsRepository{s: s} }

// Outbox возвращает transactional outbox.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{s: s} }

var _ domain.Transactor = (*Store)(nil)

// Package idempotency повторяет ответы на запросы с одинаковым Idempotency-Key и чистит просроченные ключи.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// верхняя граница батчей за один прогон, остаток дочистит следующий тик
	defaultMaxBatchesPerRun = 100
)

var (
	idempotencyCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_runs_total",
		Help: "Total number of idempotency cleanup runs grouped by result.",
	}, []string{"result"})
	idempotencyCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_deleted_total",
		Help: "Total number of deleted expired idempotency records.",
	})
	idempotencyCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_idempotency_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки idempotency ключей.
type CleanupOptions struct {
	Logger     *log.Entry
	Interval   time.Duration
	BatchSize  int
	MaxBatches int
	Now        func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxBatches ограничивает число удалений за один прогон.
func WithMaxBatches(n int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.MaxBatches = n
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Now = now
	}
}

// CleanupWorker периодически удаляет просроченные idempotency записи.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	opts CleanupOptions
}

// NewCleanupWorker создает воркер очистки idempotency ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:   defaultCleanupInterval,
		BatchSize:  defaultCleanupBatchSize,
		MaxBatches: defaultMaxBatchesPerRun,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = defaultMaxBatchesPerRun
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &CleanupWorker{repo: repo, opts: opts}
}

// Run чистит ключи сразу и затем каждые Interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.opts.Logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	started := w.opts.Now().UTC()
	deleted, err := w.DeleteExpired(ctx, started)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		idempotencyCleanupRunsTotal.WithLabelValues("error").Inc()
		w.opts.Logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
		return
	}

	idempotencyCleanupRunsTotal.WithLabelValues("ok").Inc()
	idempotencyCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.opts.Logger.WithFields(log.Fields{
			"deleted":  deleted,
			"duration": time.Since(started).String(),
		}).Info("idempotency cleanup completed")
	}
}

// DeleteExpired удаляет записи с expires_at <= before порциями BatchSize,
// но не больше MaxBatches порций за вызов.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.opts.Now().UTC()
	}

	total := 0
	for batch := 0; batch < w.opts.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, before, w.opts.BatchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		idempotencyCleanupDeletedTotal.Add(float64(deleted))

		if deleted < w.opts.BatchSize {
			break
		}
	}
	return total, nil
}

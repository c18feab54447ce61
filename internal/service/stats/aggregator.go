// Package stats считает аналитику продаж за период: выручку по дням, популярные товары
// и воронку статусов. Только чтение, результаты можно кешировать.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// TopProductsLimit — сколько товаров попадает в список популярных.
	TopProductsLimit = 7
	// DefaultWindow — период по умолчанию, заканчивающийся сейчас.
	DefaultWindow = 7 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

// Query — границы периода как их прислал клиент. Пустая строка означает значение по умолчанию.
type Query struct {
	StartDate string
	EndDate   string
}

// Cache хранит готовые результаты по ключу нормализованного периода.
type Cache interface {
	Get(ctx context.Context, key string) (domain.SalesStats, bool, error)
	Set(ctx context.Context, key string, stats domain.SalesStats, ttl time.Duration) error
}

// Option настраивает Aggregator.
type Option func(*Aggregator)

// WithCache включает кеширование результатов на ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.cache = cache
		a.cacheTTL = ttl
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator выполняет три агрегирующих запроса параллельно.
type Aggregator struct {
	repo     domain.StatsRepository
	cache    Cache
	cacheTTL time.Duration
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
	tracer   trace.Tracer
}

// NewAggregator создаёт агрегатор поверх repo.
func NewAggregator(repo domain.StatsRepository, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:   repo,
		logger: log.WithField("component", "stats"),
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("storefront/stats"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute возвращает статистику за период q.
func (a *Aggregator) Compute(ctx context.Context, q Query) (domain.SalesStats, error) {
	ctx, span := a.tracer.Start(ctx, "stats.Compute")
	defer span.End()

	started := time.Now()
	defer func() { a.metrics.RecordStatsDuration(time.Since(started)) }()

	rng, err := a.ParseRange(q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.SalesStats{}, err
	}
	span.SetAttributes(
		attribute.String("stats.from", rng.From.Format(time.RFC3339)),
		attribute.String("stats.to", rng.To.Format(time.RFC3339)),
	)

	key := cacheKey(rng)
	if cached, ok := a.fromCache(ctx, key); ok {
		span.SetAttributes(attribute.Bool("stats.cache_hit", true))
		return cached, nil
	}

	result := domain.SalesStats{Range: rng}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		revenue, err := a.repo.Revenue(gctx, rng)
		if err != nil {
			return fmt.Errorf("revenue: %w", err)
		}
		result.Revenue = revenue
		return nil
	})
	g.Go(func() error {
		products, err := a.repo.TopProducts(gctx, rng, TopProductsLimit)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		result.PopularProducts = products
		return nil
	})
	g.Go(func() error {
		counts, err := a.repo.CountByProcessStatus(gctx, rng)
		if err != nil {
			return fmt.Errorf("status funnel: %w", err)
		}
		for status, count := range counts {
			result.Funnel.Add(status, count)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		a.logger.WithError(err).Error("failed to compute sales stats")
		return domain.SalesStats{}, err
	}

	if result.Revenue == nil {
		result.Revenue = []domain.RevenueBucket{}
	}
	if result.PopularProducts == nil {
		result.PopularProducts = []domain.PopularProduct{}
	}

	a.toCache(ctx, key, result)
	return result, nil
}

// ParseRange нормализует границы периода.
// Даты принимаются как YYYY-MM-DD или RFC3339; конец, заданный датой, означает конец этого дня.
// Если начало позже конца, используется период по умолчанию.
func (a *Aggregator) ParseRange(q Query) (domain.StatsRange, error) {
	now := a.now().UTC()
	defaults := domain.StatsRange{From: now.Add(-DefaultWindow), To: now}

	rng := defaults
	if s := strings.TrimSpace(q.StartDate); s != "" {
		from, _, err := parseDate(s)
		if err != nil {
			return domain.StatsRange{}, domain.NewValidationError("startDate", "expected YYYY-MM-DD or RFC3339 date")
		}
		rng.From = from
	}
	if s := strings.TrimSpace(q.EndDate); s != "" {
		to, dateOnly, err := parseDate(s)
		if err != nil {
			return domain.StatsRange{}, domain.NewValidationError("endDate", "expected YYYY-MM-DD or RFC3339 date")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		rng.To = to
	}

	if rng.From.After(rng.To) {
		a.logger.WithFields(log.Fields{
			"start_date": q.StartDate,
			"end_date":   q.EndDate,
		}).Warn("stats start date is after end date, using default range")
		return defaults, nil
	}
	return rng, nil
}

func parseDate(value string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// cacheKey округляет границы до секунды, иначе период по умолчанию никогда не попадёт в кеш повторно.
func cacheKey(r domain.StatsRange) string {
	return "stats:" + r.From.Truncate(time.Second).Format(time.RFC3339) + ":" + r.To.Truncate(time.Second).Format(time.RFC3339)
}

func (a *Aggregator) fromCache(ctx context.Context, key string) (domain.SalesStats, bool) {
	if a.cache == nil {
		return domain.SalesStats{}, false
	}
	cached, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("stats cache read failed")
		return domain.SalesStats{}, false
	}
	if ok {
		a.metrics.RecordStatsCacheHit()
	}
	return cached, ok
}

func (a *Aggregator) toCache(ctx context.Context, key string, stats domain.SalesStats) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	if err := a.cache.Set(ctx, key, stats, a.cacheTTL); err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("stats cache write failed")
	}
}

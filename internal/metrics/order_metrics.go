// Package metrics содержит prometheus-метрики магазина.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderMetrics содержит метрики оформления и обработки заказов.
type OrderMetrics struct {
	ordersPlaced      prometheus.Counter
	placementFailures *prometheus.CounterVec
	placementDuration prometheus.Histogram
	unitsReserved     prometheus.Counter
	activePlacements  prometheus.Gauge

	statusTransitions *prometheus.CounterVec
	paymentsMarked    prometheus.Counter

	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	statsDuration prometheus.Histogram
	statsCacheHit prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в указанном registerer (в тестах приватный registry).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders committed",
		}),
		placementFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_placement_failures_total",
			Help: "Order placements rejected or failed, by error kind",
		}, []string{"kind"}),
		placementDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of order placement including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		unitsReserved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_units_reserved_total",
			Help: "Total number of stock units reserved by committed orders",
		}),
		activePlacements: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_active_placements",
			Help: "Number of order placements in flight",
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_status_transitions_total",
			Help: "Process status updates, by target status",
		}, []string{"status"}),
		paymentsMarked: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_marked_paid_total",
			Help: "Orders switched to paid by the payment signal",
		}),
		notificationsSent: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_notifications_sent_total",
			Help: "Order confirmation notifications handed off",
		}),
		notificationsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_notifications_failed_total",
			Help: "Order confirmation notifications that failed",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		statsDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_stats_compute_duration_seconds",
			Help:    "Duration of sales stats aggregation",
			Buckets: prometheus.DefBuckets,
		}),
		statsCacheHit: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stats_cache_hits_total",
			Help: "Sales stats served from cache",
		}),
	}
}

// PlacementStarted отмечает начало оформления и возвращает функцию завершения.
func (m *OrderMetrics) PlacementStarted() func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	m.activePlacements.Inc()
	return func() {
		m.activePlacements.Dec()
		m.placementDuration.Observe(time.Since(started).Seconds())
	}
}

// RecordOrderPlaced учитывает зафиксированный заказ.
func (m *OrderMetrics) RecordOrderPlaced(units int) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.unitsReserved.Add(float64(units))
}

// RecordPlacementFailure учитывает отказ оформления по виду ошибки.
func (m *OrderMetrics) RecordPlacementFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.placementFailures.WithLabelValues(string(domain.KindOf(err))).Inc()
}

// RecordStatusTransition учитывает смену статуса обработки.
func (m *OrderMetrics) RecordStatusTransition(status domain.ProcessStatus) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(string(status)).Inc()
}

// RecordMarkedPaid учитывает ручное подтверждение оплаты.
func (m *OrderMetrics) RecordMarkedPaid() {
	if m == nil {
		return
	}
	m.paymentsMarked.Inc()
}

// RecordNotification учитывает результат отправки подтверждения.
func (m *OrderMetrics) RecordNotification(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notificationsFailed.Inc()
		return
	}
	m.notificationsSent.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordStatsDuration записывает время расчёта статистики.
func (m *OrderMetrics) RecordStatsDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.statsDuration.Observe(d.Seconds())
}

// RecordStatsCacheHit учитывает ответ статистики из кеша.
func (m *OrderMetrics) RecordStatsCacheHit() {
	if m == nil {
		return
	}
	m.statsCacheHit.Inc()
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	return m.GetCounter().GetValue()
}

func TestOrderMetrics_PlacementFlow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	done := m.PlacementStarted()
	var g dto.Metric
	require.NoError(t, m.activePlacements.Write(&g))
	require.Equal(t, 1.0, g.GetGauge().GetValue())

	m.RecordOrderPlaced(3)
	done()

	require.NoError(t, m.activePlacements.Write(&g))
	require.Zero(t, g.GetGauge().GetValue())
	require.Equal(t, 1.0, counterValue(t, m.ordersPlaced))
	require.Equal(t, 3.0, counterValue(t, m.unitsReserved))
}

func TestOrderMetrics_FailureKinds(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordPlacementFailure(&domain.StockError{ProductID: "p", Color: "red", Requested: 2, Available: 1})
	m.RecordPlacementFailure(domain.ErrEmptyCart)
	m.RecordPlacementFailure(errors.New("boom"))
	m.RecordPlacementFailure(nil)

	require.Equal(t, 1.0, counterValue(t, m.placementFailures.WithLabelValues(string(domain.KindInsufficientStock))))
	require.Equal(t, 1.0, counterValue(t, m.placementFailures.WithLabelValues(string(domain.KindValidation))))
	require.Equal(t, 1.0, counterValue(t, m.placementFailures.WithLabelValues(string(domain.KindInternal))))
}

func TestOrderMetrics_NotificationsAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordNotification(nil)
	m.RecordNotification(errors.New("smtp down"))
	m.RecordStatusTransition(domain.ProcessStatusShipped)
	m.RecordStatusTransition(domain.ProcessStatusShipped)
	m.RecordMarkedPaid()

	require.Equal(t, 1.0, counterValue(t, m.notificationsSent))
	require.Equal(t, 1.0, counterValue(t, m.notificationsFailed))
	require.Equal(t, 2.0, counterValue(t, m.statusTransitions.WithLabelValues("shipped")))
	require.Equal(t, 1.0, counterValue(t, m.paymentsMarked))
}

func TestOrderMetrics_ReRegistrationReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordTimelineEvent()
	second.RecordTimelineEvent()

	require.Equal(t, 2.0, counterValue(t, first.timelineEvents))
}

func TestOrderMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *OrderMetrics

	require.NotPanics(t, func() {
		m.PlacementStarted()()
		m.RecordOrderPlaced(1)
		m.RecordPlacementFailure(errors.New("x"))
		m.RecordStatusTransition(domain.ProcessStatusCompleted)
		m.RecordNotification(nil)
		m.RecordOutboxEvent()
		m.RecordStatsCacheHit()
	})
}

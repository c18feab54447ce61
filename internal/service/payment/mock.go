// Package payment содержит заглушки платёжного шлюза.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway.
// Повторное подтверждение того же заказа возвращает первый результат.
type MockGateway struct {
	mu sync.Mutex

	Approve bool
	Err     error
	// Delay имитирует медленный шлюз; ожидание прерывается отменой ctx.
	Delay time.Duration

	calls    int
	resolved map[string]bool
}

// NewMockGateway возвращает шлюз, одобряющий все платежи.
func NewMockGateway() *MockGateway {
	return &MockGateway{Approve: true, resolved: make(map[string]bool)}
}

// Confirm возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Confirm(ctx context.Context, orderID string, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	m.calls++
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.Err != nil {
		return false, m.Err
	}
	if approved, ok := m.resolved[orderID]; ok {
		return approved, nil
	}
	if m.resolved == nil {
		m.resolved = make(map[string]bool)
	}
	approved := m.Approve && amount.IsPositive()
	m.resolved[orderID] = approved
	return approved, nil
}

// Calls возвращает количество вызовов Confirm.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)

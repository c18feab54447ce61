package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/placement"
	"github.com/vladislavdragonenkov/storefront/internal/service/stats"
	"github.com/vladislavdragonenkov/storefront/internal/service/txn"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

// recordingPublisher запоминает опубликованные outbox-сообщения.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []domain.OutboxMessage
	failWith error
}

func (p *recordingPublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.messages = append(p.messages, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		types = append(types, msg.EventType)
	}
	return types
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.OrderConfirmation
}

func (n *recordingNotifier) OrderConfirmed(_ context.Context, msg domain.OrderConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// OrderLifecycleTestSuite проводит заказ через оформление, outbox, смену статусов и статистику.
type OrderLifecycleTestSuite struct {
	suite.Suite

	store     *memory.Store
	timeline  domain.TimelineRepository
	placement *placement.Service
	lifecycle *lifecycle.Service
	stats     *stats.Aggregator
	notifier  *recordingNotifier
	logger    *log.Entry
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	suite.logger = baseLogger.WithField("component", "integration-test")

	ctx := context.Background()
	suite.store = memory.NewStore()
	suite.Require().NoError(memory.SeedDemoData(ctx, suite.store))
	suite.timeline = memory.NewTimelineRepository()
	suite.notifier = &recordingNotifier{}

	placementSvc, err := placement.NewService(placement.Dependencies{
		Transactor: suite.store,
		Ledger:     suite.store.Ledger(),
		Configs:    suite.store.Configs(),
		Orders:     suite.store.Orders(),
		Outbox:     suite.store.Outbox(),
		Directory:  suite.store.Directory(),
		Timeline:   suite.timeline,
		Payments:   payment.NewMockGateway(),
		Notifier:   suite.notifier,
		Logger:     suite.logger,
		Retry:      txn.RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond},
	})
	suite.Require().NoError(err)
	suite.placement = placementSvc

	lifecycleSvc, err := lifecycle.NewService(lifecycle.Dependencies{
		Orders:   suite.store.Orders(),
		Outbox:   suite.store.Outbox(),
		Timeline: suite.timeline,
		Logger:   suite.logger,
	})
	suite.Require().NoError(err)
	suite.lifecycle = lifecycleSvc

	suite.stats = stats.NewAggregator(suite.store.Stats(), stats.WithLogger(suite.logger))
}

func (suite *OrderLifecycleTestSuite) TearDownTest() {
	suite.Require().NoError(suite.placement.Shutdown(context.Background()))
}

// drainOutbox прогоняет outbox-воркер, пока очередь не опустеет.
func (suite *OrderLifecycleTestSuite) drainOutbox(publisher, dlq domain.OutboxPublisher) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := []outbox.Option{
		outbox.WithLogger(suite.logger),
		outbox.WithPollInterval(5 * time.Millisecond),
		outbox.WithMaxAttempts(2),
		outbox.WithRetryBaseDelay(time.Millisecond),
	}
	if dlq != nil {
		opts = append(opts, outbox.WithDLQPublisher(dlq))
	}
	worker := outbox.NewWorker(suite.store.Outbox(), publisher, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	suite.Require().Eventually(func() bool {
		st, err := suite.store.Outbox().Stats(context.Background())
		return err == nil && st.PendingCount == 0
	}, 3*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	ctx := context.Background()

	// 1. Оформляем заказ ровно на порог бесплатной доставки.
	order, err := suite.placement.PlaceOrder(ctx, placement.PlaceOrderCommand{
		UserID:        "user-1",
		AddressID:     "address-1",
		PaymentMethod: domain.PaymentMethodOnlineWallet,
		Lines: []domain.CartLine{
			{ProductID: "product-1", Color: "red", Amount: 2},
			{ProductID: "product-2", Color: "black", Amount: 1},
		},
	})
	suite.Require().NoError(err)
	suite.True(decimal.NewFromInt(50).Equal(order.Subtotal), order.Subtotal.String())
	suite.True(order.ShippingFee.IsZero())
	suite.True(decimal.NewFromInt(50).Equal(order.Total))
	suite.Equal(domain.ProcessStatusPending, order.ProcessStatus)

	red, err := suite.store.Ledger().Stock(ctx, "product-1", "red")
	suite.Require().NoError(err)
	suite.Equal(8, red)

	// 2. Подтверждение уходит после коммита.
	suite.Require().NoError(suite.placement.Shutdown(ctx))
	suite.Require().Len(suite.notifier.sent, 1)
	suite.Equal("alice@example.com", suite.notifier.sent[0].Recipient)
	suite.Equal(order.ID, suite.notifier.sent[0].OrderID)

	// 3. Заказ доходит до completed.
	for _, next := range []domain.ProcessStatus{
		domain.ProcessStatusProcessing,
		domain.ProcessStatusShipped,
		domain.ProcessStatusDelivered,
		domain.ProcessStatusCompleted,
	} {
		order, err = suite.lifecycle.UpdateProcessStatus(ctx, order.ID, next)
		suite.Require().NoError(err)
		suite.Equal(next, order.ProcessStatus)
	}
	suite.Equal(domain.PaymentStatusPaid, order.PaymentStatus)

	// 4. Outbox публикует события в порядке их записи.
	publisher := &recordingPublisher{}
	suite.drainOutbox(publisher, nil)
	types := publisher.eventTypes()
	suite.Require().NotEmpty(types)
	suite.Equal(string(kafka.EventTypeOrderPlaced), types[0])
	suite.Contains(types, string(kafka.EventTypeOrderStatusChanged))

	var event kafka.OrderEvent
	suite.Require().NoError(json.Unmarshal(publisher.messages[0].Payload, &event))
	suite.Equal(order.ID, event.OrderID)

	// 5. Таймлайн и статистика видят заказ.
	timeline, err := suite.timeline.List(ctx, order.ID)
	suite.Require().NoError(err)
	suite.Require().NotEmpty(timeline)
	suite.Equal(domain.TimelineOrderPlaced, timeline[0].Type)

	result, err := suite.stats.Compute(ctx, stats.Query{})
	suite.Require().NoError(err)
	suite.Equal(1, result.Funnel.Completed)
	suite.Require().NotEmpty(result.PopularProducts)
	suite.Equal("product-1", result.PopularProducts[0].ProductID)
}

func (suite *OrderLifecycleTestSuite) TestCanceledOrderCountsAsFailed() {
	ctx := context.Background()

	order, err := suite.placement.PlaceOrder(ctx, placement.PlaceOrderCommand{
		UserID:        "user-1",
		AddressID:     "address-1",
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		Lines:         []domain.CartLine{{ProductID: "product-2", Color: "black", Amount: 1}},
	})
	suite.Require().NoError(err)
	suite.True(decimal.NewFromInt(15).Equal(order.Total), order.Total.String())

	canceled, err := suite.lifecycle.UpdateProcessStatus(ctx, order.ID, domain.ProcessStatusCanceled)
	suite.Require().NoError(err)
	suite.Equal(domain.PaymentStatusCanceled, canceled.PaymentStatus)

	result, err := suite.stats.Compute(ctx, stats.Query{})
	suite.Require().NoError(err)
	suite.Equal(1, result.Funnel.Failed)
	suite.Zero(result.Funnel.Completed)
}

func (suite *OrderLifecycleTestSuite) TestConcurrentBuyersForLastUnit() {
	ctx := context.Background()
	const buyers = 12

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.placement.PlaceOrder(ctx, placement.PlaceOrderCommand{
				UserID:        "user-1",
				AddressID:     "address-1",
				PaymentMethod: domain.PaymentMethodCashOnDelivery,
				Lines:         []domain.CartLine{{ProductID: "product-3", Color: "white", Amount: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.KindOf(err) == domain.KindInsufficientStock:
				rejected++
			}
		}()
	}
	wg.Wait()

	suite.Equal(1, succeeded)
	suite.Equal(buyers-1, rejected)

	stock, err := suite.store.Ledger().Stock(ctx, "product-3", "white")
	suite.Require().NoError(err)
	suite.Zero(stock)

	page, err := suite.store.Orders().List(ctx, domain.OrderFilter{}.Normalize())
	suite.Require().NoError(err)
	suite.Equal(1, page.Total)
}

func (suite *OrderLifecycleTestSuite) TestUndeliverableEventsGoToDeadLetters() {
	ctx := context.Background()

	_, err := suite.placement.PlaceOrder(ctx, placement.PlaceOrderCommand{
		UserID:        "user-1",
		AddressID:     "address-1",
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		Lines:         []domain.CartLine{{ProductID: "product-2", Color: "black", Amount: 1}},
	})
	suite.Require().NoError(err)

	broken := &recordingPublisher{failWith: errors.New("broker unavailable")}
	dlq := &recordingPublisher{}
	suite.drainOutbox(broken, dlq)

	suite.Require().Len(dlq.messages, 1)
	var letter outbox.DeadLetter
	suite.Require().NoError(json.Unmarshal(dlq.messages[0].Payload, &letter))
	suite.Equal(string(kafka.EventTypeOrderPlaced), letter.EventType)
	suite.Equal("broker unavailable", letter.PublishError)
}

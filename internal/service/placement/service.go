// Package placement оформляет заказ: резервирует остатки, считает стоимость и фиксирует снимок заказа.
package placement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/service/txn"
)

const (
	defaultNotifyTimeout  = 5 * time.Second
	defaultPaymentTimeout = 2 * time.Second
)

// PlaceOrderCommand — запрос на оформление заказа из корзины.
type PlaceOrderCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod domain.PaymentMethod
	Lines         []domain.CartLine
}

// Dependencies — зависимости сервиса оформления.
type Dependencies struct {
	Transactor domain.Transactor
	Ledger     domain.InventoryLedger
	Configs    domain.ConfigRepository
	Orders     domain.OrderRepository
	Outbox     domain.OutboxRepository
	Directory  domain.DirectoryRepository

	// Необязательные.
	Timeline      domain.TimelineRepository
	Payments      domain.PaymentGateway
	Notifier      domain.Notifier
	Metrics       *metrics.OrderMetrics
	Logger        *log.Entry
	Retry         txn.RetryConfig
	NotifyTimeout time.Duration
	// PaymentTimeout ограничивает шлюз: он вызывается при удерживаемых блокировках остатков.
	PaymentTimeout time.Duration
	Now            func() time.Time
}

// Service оформляет заказы.
type Service struct {
	deps   Dependencies
	logger *log.Entry
	tracer trace.Tracer

	notifyMu     sync.Mutex
	notifyClosed bool
	notifyWG     sync.WaitGroup
}

// NewService проверяет обязательные зависимости и создаёт сервис.
func NewService(deps Dependencies) (*Service, error) {
	switch {
	case deps.Transactor == nil:
		return nil, errors.New("placement: transactor is required")
	case deps.Ledger == nil:
		return nil, errors.New("placement: inventory ledger is required")
	case deps.Configs == nil:
		return nil, errors.New("placement: config repository is required")
	case deps.Orders == nil:
		return nil, errors.New("placement: order repository is required")
	case deps.Outbox == nil:
		return nil, errors.New("placement: outbox repository is required")
	case deps.Directory == nil:
		return nil, errors.New("placement: directory repository is required")
	}

	if deps.NotifyTimeout <= 0 {
		deps.NotifyTimeout = defaultNotifyTimeout
	}
	if deps.PaymentTimeout <= 0 {
		deps.PaymentTimeout = defaultPaymentTimeout
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "placement")
	}

	return &Service{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("storefront/placement"),
	}, nil
}

// PlaceOrder валидирует корзину и в одной транзакции резервирует все позиции, считает стоимость,
// сохраняет заказ и событие outbox. Первая ошибка отменяет всё.
func (s *Service) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "placement.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", cmd.UserID),
		attribute.Int("cart.lines", len(cmd.Lines)),
		attribute.String("payment.method", string(cmd.PaymentMethod)),
	))
	defer span.End()

	done := s.deps.Metrics.PlacementStarted()
	defer done()

	order, err := s.placeOrder(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		s.deps.Metrics.RecordPlacementFailure(err)
		s.logPlacementFailure(cmd, err)
		return domain.Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.deps.Metrics.RecordOrderPlaced(order.TotalUnits())
	s.deps.Metrics.RecordOutboxEvent()
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.Total.StringFixed(2),
		"lines":    len(order.Lines),
	}).Info("order placed")

	s.appendTimeline(ctx, domain.OrderPlacedEvent(order, s.deps.Now()))
	s.notifyAsync(order)

	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.Order{}, err
	}

	ok, err := s.deps.Directory.AddressExists(ctx, cmd.UserID, cmd.AddressID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("check address: %w", err)
	}
	if !ok {
		return domain.Order{}, domain.ErrAddressNotFound
	}

	// Идентификатор общий для всех попыток: платёжный шлюз идемпотентен по нему.
	orderID := uuid.NewString()

	var placed domain.Order
	err = txn.RunWithRetry(ctx, s.deps.Transactor, s.deps.Retry, s.logger, func(tx domain.Tx) error {
		order, err := s.buildOrder(ctx, tx, orderID, cmd)
		if err != nil {
			return err
		}
		if err := s.deps.Orders.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := s.enqueuePlaced(ctx, tx, order); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return placed, nil
}

// buildOrder выполняет резервирование и расчёт внутри tx.
func (s *Service) buildOrder(ctx context.Context, tx domain.Tx, orderID string, cmd PlaceOrderCommand) (domain.Order, error) {
	settings, err := s.loadPricing(ctx, tx)
	if err != nil {
		return domain.Order{}, err
	}

	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	for i, item := range cmd.Lines {
		line, err := s.reserveLine(ctx, tx, i, item)
		if err != nil {
			return domain.Order{}, err
		}
		lines = append(lines, line)
	}

	quote := pricing.Price(lines, settings)
	now := s.deps.Now()
	order := domain.Order{
		ID:            orderID,
		UserID:        cmd.UserID,
		AddressID:     cmd.AddressID,
		Lines:         lines,
		Subtotal:      quote.Subtotal,
		ShippingFee:   quote.ShippingFee,
		Total:         quote.Total,
		PaymentMethod: cmd.PaymentMethod,
		ProcessStatus: domain.ProcessStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.PaymentStatus = domain.InitialPaymentStatus(cmd.PaymentMethod, s.confirmPayment(ctx, order))

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}
	return order, nil
}

func (s *Service) reserveLine(ctx context.Context, tx domain.Tx, index int, item domain.CartLine) (domain.OrderLine, error) {
	ctx, span := s.tracer.Start(ctx, "placement.reserve_line", trace.WithAttributes(
		attribute.Int("line.index", index),
		attribute.String("product.id", item.ProductID),
		attribute.String("product.color", item.Color),
		attribute.Int("line.amount", item.Amount),
	))
	defer span.End()

	snapshot, err := s.deps.Ledger.Reserve(ctx, tx, item.ProductID, item.Color, item.Amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		return domain.OrderLine{}, fmt.Errorf("cart line %d: %w", index, err)
	}

	return domain.OrderLine{
		ProductID: item.ProductID,
		Color:     item.Color,
		Amount:    item.Amount,
		UnitPrice: snapshot.Price,
		LineTotal: pricing.LineTotal(snapshot.Price, item.Amount),
		Name:      snapshot.Name,
		Image:     snapshot.Image,
	}, nil
}

func (s *Service) loadPricing(ctx context.Context, tx domain.Tx) (pricing.Settings, error) {
	fee, err := s.optionalConfig(ctx, tx, domain.ConfigShippingFee)
	if err != nil {
		return pricing.Settings{}, err
	}
	threshold, err := s.optionalConfig(ctx, tx, domain.ConfigMinFreeShippingAmount)
	if err != nil {
		return pricing.Settings{}, err
	}
	return pricing.SettingsFromConfig(fee, threshold)
}

// optionalConfig возвращает nil, если параметр не заведён: правило считается выключенным.
func (s *Service) optionalConfig(ctx context.Context, tx domain.Tx, name string) (*domain.ConfigEntry, error) {
	entry, err := s.deps.Configs.Get(ctx, tx, name)
	if errors.Is(err, domain.ErrConfigNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", name, err)
	}
	return &entry, nil
}

// confirmPayment синхронно подтверждает онлайн-оплату. Ошибка шлюза оставляет заказ неоплаченным.
func (s *Service) confirmPayment(ctx context.Context, order domain.Order) bool {
	if !order.PaymentMethod.Online() || s.deps.Payments == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.PaymentTimeout)
	defer cancel()

	ok, err := s.deps.Payments.Confirm(ctx, order.ID, order.Total)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"timeout":  s.deps.PaymentTimeout,
		}).Warn("payment confirmation failed, order stays unpaid")
		return false
	}
	return ok
}

func (s *Service) enqueuePlaced(ctx context.Context, tx domain.Tx, order domain.Order) error {
	payload, err := json.Marshal(kafka.NewOrderEvent(kafka.EventTypeOrderPlaced, order, map[string]any{
		"payment_method": string(order.PaymentMethod),
		"lines":          len(order.Lines),
	}))
	if err != nil {
		return fmt.Errorf("marshal order event: %v: %w", err, domain.ErrInternal)
	}
	if _, err := s.deps.Outbox.Enqueue(ctx, tx, domain.OutboxMessage{
		AggregateType: kafka.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     string(kafka.EventTypeOrderPlaced),
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.deps.Timeline == nil {
		return
	}
	if err := s.deps.Timeline.Append(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("failed to append timeline event")
		return
	}
	s.deps.Metrics.RecordTimelineEvent()
}

// notifyAsync отправляет подтверждение вне транзакции. Отказ только логируется.
func (s *Service) notifyAsync(order domain.Order) {
	if s.deps.Notifier == nil {
		return
	}

	s.notifyMu.Lock()
	if s.notifyClosed {
		s.notifyMu.Unlock()
		s.logger.WithField("order_id", order.ID).Warn("notification skipped during shutdown")
		return
	}
	s.notifyWG.Add(1)
	s.notifyMu.Unlock()

	go func() {
		defer s.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.deps.NotifyTimeout)
		defer cancel()

		err := s.sendConfirmation(ctx, order)
		s.deps.Metrics.RecordNotification(err)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("order confirmation notification failed")
			s.appendTimeline(ctx, domain.NotificationFailedEvent(order.ID, err, s.deps.Now()))
		}
	}()
}

func (s *Service) sendConfirmation(ctx context.Context, order domain.Order) error {
	user, err := s.deps.Directory.GetUser(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	return s.deps.Notifier.OrderConfirmed(ctx, domain.OrderConfirmation{
		Recipient: user.Email,
		UserID:    order.UserID,
		OrderID:   order.ID,
		Total:     order.Total,
	})
}

// Shutdown перестаёт принимать уведомления и ждёт отправки начатых.
func (s *Service) Shutdown(ctx context.Context) error {
	s.notifyMu.Lock()
	s.notifyClosed = true
	s.notifyMu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) logPlacementFailure(cmd PlaceOrderCommand, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"user_id": cmd.UserID,
		"kind":    domain.KindOf(err),
	})
	if domain.KindOf(err) == domain.KindInternal {
		entry.Error("order placement failed")
		return
	}
	entry.Info("order placement rejected")
}

func validateCommand(cmd PlaceOrderCommand) error {
	if strings.TrimSpace(cmd.UserID) == "" {
		return domain.ErrUserRequired
	}
	if strings.TrimSpace(cmd.AddressID) == "" {
		return domain.ErrAddressRequired
	}
	if len(cmd.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	if !cmd.PaymentMethod.Valid() {
		return domain.ErrPaymentMethodInvalid
	}
	for i, line := range cmd.Lines {
		if err := line.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Package httpsvc реализует REST API магазина поверх chi.
package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/placement"
	"github.com/vladislavdragonenkov/storefront/internal/service/stats"
)

const (
	// BasePath — префикс всех маршрутов API.
	BasePath = "/api/v1"

	defaultRequestTimeout = 15 * time.Second
	maxBodyBytes          = 1 << 20
)

// OrderPlacer оформляет заказы.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, cmd placement.PlaceOrderCommand) (domain.Order, error)
}

// OrderLifecycle меняет статусы заказа.
type OrderLifecycle interface {
	UpdateProcessStatus(ctx context.Context, orderID string, next domain.ProcessStatus) (domain.Order, error)
	MarkPaid(ctx context.Context, orderID string) (domain.Order, error)
}

// StatsComputer считает статистику продаж.
type StatsComputer interface {
	Compute(ctx context.Context, q stats.Query) (domain.SalesStats, error)
}

// Dependencies — зависимости HTTP-сервера. Timeline и Idempotency необязательны.
type Dependencies struct {
	Placement      OrderPlacer
	Lifecycle      OrderLifecycle
	Stats          StatsComputer
	Orders         domain.OrderRepository
	Timeline       domain.TimelineRepository
	Configs        domain.ConfigRepository
	Catalog        domain.CatalogRepository
	Idempotency    *idempotency.Guard
	Logger         *log.Entry
	RequestTimeout time.Duration
}

// Server обслуживает REST API.
type Server struct {
	placement      OrderPlacer
	lifecycle      OrderLifecycle
	stats          StatsComputer
	orders         domain.OrderRepository
	timeline       domain.TimelineRepository
	configs        domain.ConfigRepository
	catalog        domain.CatalogRepository
	guard          *idempotency.Guard
	logger         *log.Entry
	requestTimeout time.Duration
}

// NewServer проверяет зависимости и создаёт сервер.
func NewServer(deps Dependencies) (*Server, error) {
	switch {
	case deps.Placement == nil:
		return nil, errors.New("placement service is required")
	case deps.Lifecycle == nil:
		return nil, errors.New("lifecycle service is required")
	case deps.Stats == nil:
		return nil, errors.New("stats aggregator is required")
	case deps.Orders == nil:
		return nil, errors.New("order repository is required")
	case deps.Configs == nil:
		return nil, errors.New("config repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Server{
		placement:      deps.Placement,
		lifecycle:      deps.Lifecycle,
		stats:          deps.Stats,
		orders:         deps.Orders,
		timeline:       deps.Timeline,
		configs:        deps.Configs,
		catalog:        deps.Catalog,
		guard:          deps.Idempotency,
		logger:         logger,
		requestTimeout: timeout,
	}, nil
}

// Routes собирает chi-роутер со всеми маршрутами API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: domain.KindNotFound, Message: "route not found"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{Kind: domain.KindValidation, Message: "method not allowed"}})
	})

	r.Route(BasePath, func(r chi.Router) {
		r.Get("/products/{id}/reviews", s.handleProductReviews)
		r.Get("/categories/{id}/products", s.handleCategoryProducts)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/orders", s.handlePlaceOrder)
			r.Get("/orders/mine", s.handleMyOrders)
			r.Get("/orders/{id}", s.handleGetOrder)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/orders", s.handleListOrders)
				r.Get("/orders/stats", s.handleStats)
				r.Patch("/orders/{id}/status", s.handleUpdateStatus)
				r.Post("/orders/{id}/pay", s.handleMarkPaid)

				r.Get("/configs", s.handleListConfigs)
				r.Get("/configs/{name}", s.handleGetConfig)
				r.Put("/configs/{name}", s.handlePutConfig)

				r.Delete("/products/{id}", s.handleDeleteProduct)
			})
		})
	})
	return r
}

// readBody читает тело запроса с ограничением размера.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidationError("body", fmt.Sprintf("must be at most %d bytes", maxBodyBytes))
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

func decodeJSON(body []byte, v any) error {
	if len(body) == 0 {
		return domain.NewValidationError("body", "is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewValidationError("body", "must be valid JSON")
	}
	return nil
}

package httpsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/placement"
	"github.com/vladislavdragonenkov/storefront/internal/service/stats"
)

// HeaderIdempotentReplay выставляется, когда ответ взят из хранилища идемпотентности.
const HeaderIdempotentReplay = "Idempotent-Replayed"

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		resp     idempotency.Response
		replayed bool
	)
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || s.guard == nil {
		resp = s.placeOrder(r, caller, body)
	} else {
		scope := domain.IdempotencyScope{UserID: caller.UserID, Method: r.Method, Route: r.URL.Path}
		resp, replayed, err = s.guard.Do(r.Context(), key, scope, body, func(ctx context.Context) idempotency.Response {
			return s.placeOrder(r.WithContext(ctx), caller, body)
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if replayed {
		w.Header().Set(HeaderIdempotentReplay, "true")
	}
	if resp.StatusCode == http.StatusConflict && resp.Transient {
		w.Header().Set("Retry-After", "1")
	}
	writeRaw(w, resp.StatusCode, resp.Body)
}

// placeOrder выполняет оформление и возвращает готовый ответ, пригодный для сохранения по ключу.
func (s *Server) placeOrder(r *http.Request, caller Caller, body []byte) idempotency.Response {
	order, err := s.doPlaceOrder(r.Context(), caller, body)
	if err != nil {
		status, payload := encodeError(err)
		entry := requestLogger(r, s.logger).WithError(err).WithField("status", status)
		if status >= http.StatusInternalServerError {
			entry.Error("place order failed")
		} else {
			entry.Debug("place order rejected")
		}
		return idempotency.Response{
			StatusCode: status,
			Body:       payload,
			Transient:  domain.KindOf(err) == domain.KindTransactionConflict,
		}
	}

	payload, err := json.Marshal(toOrderResponse(order))
	if err != nil {
		status, errPayload := encodeError(err)
		return idempotency.Response{StatusCode: status, Body: errPayload, Transient: true}
	}
	return idempotency.Response{StatusCode: http.StatusCreated, Body: payload}
}

func (s *Server) doPlaceOrder(ctx context.Context, caller Caller, body []byte) (domain.Order, error) {
	var req placeOrderRequest
	if err := decodeJSON(body, &req); err != nil {
		return domain.Order{}, err
	}
	lines := make([]domain.CartLine, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		lines = append(lines, domain.CartLine{ProductID: item.ProductID, Color: item.Color, Amount: item.Amount})
	}
	return s.placement.PlaceOrder(ctx, placement.PlaceOrderCommand{
		UserID:        caller.UserID,
		AddressID:     req.AddressID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Lines:         lines,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.orders.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: toOrderResponses(page.Orders),
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
	})
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	var filter domain.OrderFilter

	if v := q.Get("processStatus"); v != "" {
		status := domain.ProcessStatus(v)
		if !status.Valid() {
			return filter, domain.NewValidationError("processStatus", "unknown process status")
		}
		filter.ProcessStatus = status
	}
	if v := q.Get("paymentStatus"); v != "" {
		status := domain.PaymentStatus(v)
		if !status.Valid() {
			return filter, domain.NewValidationError("paymentStatus", "unknown payment status")
		}
		filter.PaymentStatus = status
	}
	if v := q.Get("totalMax"); v != "" {
		total, err := decimal.NewFromString(v)
		if err != nil {
			return filter, domain.NewValidationError("totalMax", "must be a number")
		}
		filter.TotalMax = decimal.NewNullDecimal(total)
	}
	if v := q.Get("sort"); v != "" {
		sort := domain.OrderSort(v)
		if !sort.Valid() {
			return filter, domain.NewValidationError("sort", "must be one of createdAt, -createdAt, total, -total")
		}
		filter.Sort = sort
	}

	var err error
	if filter.Page, err = positiveInt(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = positiveInt(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	filter.Search = q.Get("search")
	return filter.Normalize(), nil
}

func positiveInt(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, domain.NewValidationError(field, "must be a positive integer")
	}
	return n, nil
}

func (s *Server) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	orders, err := s.orders.ListByUser(r.Context(), caller.UserID, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())
	order, err := s.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Чужой заказ неотличим от отсутствующего.
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		s.writeError(w, r, domain.ErrOrderNotFound)
		return
	}

	var events []domain.TimelineEvent
	if s.timeline != nil {
		events, err = s.timeline.List(r.Context(), order.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, orderDetailsResponse{
		Order:    toOrderResponse(order),
		Timeline: toTimelineResponse(events),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := s.stats.Compute(r.Context(), stats.Query{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(result))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ProcessStatus) == "" {
		s.writeError(w, r, domain.NewValidationError("processStatus", "is required"))
		return
	}

	order, err := s.lifecycle.UpdateProcessStatus(r.Context(), chi.URLParam(r, "id"), domain.ProcessStatus(req.ProcessStatus))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	order, err := s.lifecycle.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

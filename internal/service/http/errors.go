package httpsvc

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const internalMessage = "internal server error"

// kindMessages — ответ по умолчанию для каждого вида ошибки.
var kindMessages = map[domain.Kind]string{
	domain.KindValidation:              "invalid request",
	domain.KindNotFound:                "resource not found",
	domain.KindInsufficientStock:       "insufficient stock",
	domain.KindTransactionConflict:     "concurrent modification, retry the request",
	domain.KindInvalidStatusTransition: "invalid status transition",
	domain.KindInternal:                internalMessage,
}

// publicErrors — известные ошибки, текст которых можно показать клиенту.
// Более конкретные стоят раньше общих.
var publicErrors = []struct {
	err     error
	message string
}{
	{domain.ErrProductNotFound, "product not found"},
	{domain.ErrColorNotFound, "color not found for product"},
	{domain.ErrAddressNotFound, "address not found"},
	{domain.ErrOrderNotFound, "order not found"},
	{domain.ErrConfigNotFound, "config not found"},
	{domain.ErrUserNotFound, "user not found"},
	{domain.ErrEmptyCart, "cart must contain at least one item"},
	{domain.ErrUserRequired, "user_id is required"},
	{domain.ErrAddressRequired, "address_id is required"},
	{domain.ErrPaymentMethodInvalid, "payment method is invalid"},
	{domain.ErrAmountInvalid, "amount must be greater than zero"},
	{domain.ErrIdempotencyKeyRequired, "idempotency key is required"},
	{idempotency.ErrKeyReused, "idempotency key reused with different request"},
	{idempotency.ErrRequestInProgress, "request with the same idempotency key is already processing"},
	{domain.ErrOrderVersionConflict, "order was modified concurrently, retry the request"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

// statusFor сопоставляет вид ошибки и HTTP-статус.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindTransactionConflict:
		return http.StatusConflict
	case domain.KindInvalidStatusTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// encodeError строит статус и тело ответа. Наружу уходит только доменный текст:
// сообщение поля валидации, остаток по складу или фиксированная фраза вида ошибки.
func encodeError(err error) (int, []byte) {
	kind := domain.KindOf(err)
	detail := errorDetail{Kind: kind, Message: publicMessage(err, kind)}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		detail.Field = verr.Field
	}

	body, mErr := json.Marshal(errorBody{Error: detail})
	if mErr != nil {
		body = []byte(`{"error":{"kind":"InternalFailure","message":"internal server error"}}`)
	}
	return statusFor(kind), body
}

func publicMessage(err error, kind domain.Kind) string {
	if kind == domain.KindInternal {
		return internalMessage
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		return stockErr.Error()
	}
	for _, known := range publicErrors {
		if errors.Is(err, known.err) {
			return known.message
		}
	}
	return kindMessages[kind]
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := encodeError(err)
	entry := requestLogger(r, s.logger).WithError(err).WithField("status", status)
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		entry = entry.WithField("store_error", storeErr.Cause.Error())
	}
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	if domain.KindOf(err) == domain.KindTransactionConflict {
		w.Header().Set("Retry-After", "1")
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to encode response")
		_, body = encodeError(err)
		status = http.StatusInternalServerError
	}
	writeRaw(w, status, body)
}

package domain

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку для транспорта и логов.
type Kind string

const (
	KindValidation              Kind = "ValidationError"
	KindNotFound                Kind = "NotFound"
	KindInsufficientStock       Kind = "InsufficientStock"
	KindTransactionConflict     Kind = "TransactionConflict"
	KindInvalidStatusTransition Kind = "InvalidStatusTransition"
	KindInternal                Kind = "InternalFailure"
)

// Базовые виды ошибок. Конкретные ошибки оборачивают их через %w.
var (
	// ErrValidation — некорректный ввод, пользователь должен исправить запрос.
	ErrValidation = errors.New("validation error")
	// ErrNotFound — ссылка на несуществующую сущность.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock — запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrTransactionConflict — конкурентная модификация, операцию можно повторить целиком.
	ErrTransactionConflict = errors.New("transaction conflict")
	// ErrInvalidStatusTransition — неизвестный статус обработки заказа.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrInternal — непредвиденный сбой хранилища или инфраструктуры.
	ErrInternal = errors.New("internal failure")
)

var (
	// Ошибка пустой корзины.
	ErrEmptyCart = fmt.Errorf("cart must contain at least one item: %w", ErrValidation)
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = fmt.Errorf("user_id is required: %w", ErrValidation)
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = fmt.Errorf("address_id is required: %w", ErrValidation)
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = fmt.Errorf("payment method is invalid: %w", ErrValidation)
	// Ошибка некорректного количества в позиции (<= 0).
	ErrAmountInvalid = fmt.Errorf("amount must be greater than zero: %w", ErrValidation)

	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = fmt.Errorf("product not found: %w", ErrNotFound)
	// ErrColorNotFound возвращается, если у товара нет такого цвета.
	ErrColorNotFound = fmt.Errorf("color not found for product: %w", ErrNotFound)
	// ErrAddressNotFound возвращается, если адрес не существует или принадлежит другому пользователю.
	ErrAddressNotFound = fmt.Errorf("address not found: %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order not found: %w", ErrNotFound)
	// ErrConfigNotFound возвращается, если параметр конфигурации не найден.
	ErrConfigNotFound = fmt.Errorf("config not found: %w", ErrNotFound)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = fmt.Errorf("user not found: %w", ErrNotFound)

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = fmt.Errorf("order version conflict: %w", ErrTransactionConflict)
	// ErrForeignTx — транзакция открыта другим хранилищем.
	ErrForeignTx = fmt.Errorf("transaction handle belongs to another store: %w", ErrInternal)
	// ErrTxDone — транзакция уже завершена.
	ErrTxDone = fmt.Errorf("transaction already finished: %w", ErrInternal)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = fmt.Errorf("idempotency key is required: %w", ErrValidation)
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает ошибку конкретного поля запроса.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StockError — нехватка остатка по конкретному варианту товара.
type StockError struct {
	ProductID string
	Color     string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (%s): requested %d, available %d",
		e.ProductID, e.Color, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// StoreError — сбой хранилища, переведённый в доменный вид.
// Error() не содержит текста драйвера: он доступен через Cause и errors.As.
type StoreError struct {
	Op    string
	Cause error
	Kind  error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Kind.Error()
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Cause, e.Kind}
}

// KindOf определяет вид ошибки. Неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrTransactionConflict):
		return KindTransactionConflict
	case errors.Is(err, ErrInvalidStatusTransition):
		return KindInvalidStatusTransition
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessStatus описывает этап обработки заказа.
type ProcessStatus string

const (
	ProcessStatusPending    ProcessStatus = "pending"
	ProcessStatusProcessing ProcessStatus = "processing"
	ProcessStatusShipped    ProcessStatus = "shipped"
	ProcessStatusDelivered  ProcessStatus = "delivered"
	ProcessStatusCanceled   ProcessStatus = "canceled"
	ProcessStatusReturned   ProcessStatus = "returned"
	ProcessStatusCompleted  ProcessStatus = "completed"
)

// Valid проверяет, что статус входит в таблицу переходов.
func (s ProcessStatus) Valid() bool {
	_, err := DerivePaymentStatus(s, PaymentStatusUnpaid)
	return err == nil
}

// DerivePaymentStatus возвращает статус оплаты после установки статуса обработки next.
// Для pending/processing/shipped статус оплаты не меняется.
func DerivePaymentStatus(next ProcessStatus, current PaymentStatus) (PaymentStatus, error) {
	switch next {
	case ProcessStatusDelivered, ProcessStatusCompleted:
		return PaymentStatusPaid, nil
	case ProcessStatusCanceled:
		return PaymentStatusCanceled, nil
	case ProcessStatusReturned:
		return PaymentStatusRefunded, nil
	case ProcessStatusPending, ProcessStatusProcessing, ProcessStatusShipped:
		return current, nil
	default:
		return current, fmt.Errorf("process status %q: %w", next, ErrInvalidStatusTransition)
	}
}

// OrderLine — позиция заказа. Цена, название и картинка зафиксированы на момент оформления.
type OrderLine struct {
	ProductID string
	Color     string
	Amount    int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Name      string
	Image     string
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	UserID        string
	AddressID     string
	Lines         []OrderLine
	Subtotal      decimal.Decimal
	ShippingFee   decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	ProcessStatus ProcessStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApplyProcessStatus меняет статус обработки и пересчитывает статус оплаты.
// Переходы не ограничены: любой статус может следовать за любым.
func (o *Order) ApplyProcessStatus(next ProcessStatus, now time.Time) error {
	payment, err := DerivePaymentStatus(next, o.PaymentStatus)
	if err != nil {
		return err
	}
	o.ProcessStatus = next
	o.PaymentStatus = payment
	o.UpdatedAt = now
	return nil
}

// ValidateInvariants проверяет инварианты сумм и обязательные поля, возвращая список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.AddressID == "" {
		errs = append(errs, ErrAddressRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}

	subtotal := decimal.Zero
	for i, line := range o.Lines {
		if line.Amount <= 0 {
			errs = append(errs, fmt.Errorf("line %d: %w", i, ErrAmountInvalid))
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, NewValidationError(fmt.Sprintf("lines[%d].unitPrice", i), "must be non-negative"))
		}
		if !line.LineTotal.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Amount)))) {
			errs = append(errs, fmt.Errorf("line %d total does not match unit price * amount: %w", i, ErrInternal))
		}
		subtotal = subtotal.Add(line.LineTotal)
	}
	if !subtotal.Equal(o.Subtotal) {
		errs = append(errs, fmt.Errorf("subtotal does not match lines sum: %w", ErrInternal))
	}
	if o.ShippingFee.IsNegative() {
		errs = append(errs, fmt.Errorf("shipping fee is negative: %w", ErrInternal))
	}
	if !o.Subtotal.Add(o.ShippingFee).Equal(o.Total) {
		errs = append(errs, fmt.Errorf("total does not match subtotal + shipping fee: %w", ErrInternal))
	}

	return errs
}

// TotalUnits возвращает суммарное количество единиц по всем позициям.
func (o *Order) TotalUnits() int {
	var n int
	for _, line := range o.Lines {
		n += line.Amount
	}
	return n
}

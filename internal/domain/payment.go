package domain

// PaymentMethod — способ оплаты, выбранный при оформлении.
type PaymentMethod string

const (
	// PaymentMethodCashOnDelivery — оплата курьеру при получении.
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	// PaymentMethodOnlineWallet — онлайн-оплата, подтверждается синхронно при оформлении.
	PaymentMethodOnlineWallet PaymentMethod = "online_wallet"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodOnlineWallet:
		return true
	default:
		return false
	}
}

// Online сообщает, требует ли способ синхронного подтверждения платежа.
func (m PaymentMethod) Online() bool {
	return m == PaymentMethodOnlineWallet
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusCanceled PaymentStatus = "canceled"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// InitialPaymentStatus вычисляет статус оплаты на момент создания заказа.
func InitialPaymentStatus(method PaymentMethod, confirmed bool) PaymentStatus {
	if method.Online() && confirmed {
		return PaymentStatusPaid
	}
	return PaymentStatusUnpaid
}

package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine — строка корзины, пришедшая от клиента.
type CartLine struct {
	ProductID string
	Color     string
	Amount    int
}

// Validate проверяет строку корзины до обращения к складу.
func (l CartLine) Validate(index int) error {
	switch {
	case strings.TrimSpace(l.ProductID) == "":
		return NewValidationError(fmt.Sprintf("cartItems[%d].productId", index), "is required")
	case strings.TrimSpace(l.Color) == "":
		return NewValidationError(fmt.Sprintf("cartItems[%d].color", index), "is required")
	case l.Amount <= 0:
		return NewValidationError(fmt.Sprintf("cartItems[%d].amount", index), "must be greater than zero")
	}
	return nil
}

// ProductSnapshot — данные товара, прочитанные внутри транзакции резервирования.
type ProductSnapshot struct {
	ProductID string
	Name      string
	Image     string
	Price     decimal.Decimal
	Color     string
	// StockLeft — остаток после списания (виден только внутри транзакции).
	StockLeft int
}

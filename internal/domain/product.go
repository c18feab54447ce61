package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ColorStock — остаток товара в конкретном цвете.
type ColorStock struct {
	Color string
	Stock int
}

// Product — товар каталога с остатками по цветам.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Image      string
	CategoryID string
	Colors     []ColorStock
	CreatedAt  time.Time
}

// StockOf возвращает остаток по цвету и признак наличия цвета.
func (p Product) StockOf(color string) (int, bool) {
	for _, c := range p.Colors {
		if c.Color == color {
			return c.Stock, true
		}
	}
	return 0, false
}

// Review — отзыв о товаре.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// User — минимальные данные пользователя, нужные заказам.
type User struct {
	ID    string
	Name  string
	Email string
}

// Address — адрес доставки пользователя.
type Address struct {
	ID     string
	UserID string
	Line   string
}

// Package pricing считает итоговую стоимость заказа по бизнес-параметрам магазина.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Rule — правило, которое можно включить или выключить параметром конфигурации.
type Rule struct {
	Enabled bool
	Amount  decimal.Decimal
}

// Settings — правила доставки, действующие на момент оформления.
type Settings struct {
	ShippingFee  Rule
	FreeShipping Rule
}

// Quote — результат расчёта заказа.
type Quote struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

// SettingsFromConfig собирает правила из параметров ShippingFee и MinFreeShippingAmount.
// Отсутствующий параметр выключает правило. Нечисловое значение включённого параметра
// считается порчей конфигурации и возвращается как внутренняя ошибка.
func SettingsFromConfig(shippingFee, freeShipping *domain.ConfigEntry) (Settings, error) {
	var settings Settings

	fee, err := ruleFromConfig(shippingFee)
	if err != nil {
		return Settings{}, err
	}
	settings.ShippingFee = fee

	free, err := ruleFromConfig(freeShipping)
	if err != nil {
		return Settings{}, err
	}
	settings.FreeShipping = free

	return settings, nil
}

func ruleFromConfig(entry *domain.ConfigEntry) (Rule, error) {
	if entry == nil || !entry.Status {
		return Rule{}, nil
	}
	amount, err := entry.Decimal()
	if err != nil {
		return Rule{}, fmt.Errorf("pricing config: %v: %w", err, domain.ErrInternal)
	}
	if amount.IsNegative() {
		return Rule{}, fmt.Errorf("pricing config %s is negative: %w", entry.Name, domain.ErrInternal)
	}
	return Rule{Enabled: true, Amount: amount}, nil
}

// LineTotal возвращает стоимость позиции.
func LineTotal(unitPrice decimal.Decimal, amount int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(amount)))
}

// Subtotal суммирует стоимости позиций.
func Subtotal(lines []domain.OrderLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	return subtotal
}

// ShippingFee применяет правила доставки к сумме позиций.
func ShippingFee(subtotal decimal.Decimal, settings Settings) decimal.Decimal {
	if settings.FreeShipping.Enabled && subtotal.GreaterThanOrEqual(settings.FreeShipping.Amount) {
		return decimal.Zero
	}
	if settings.ShippingFee.Enabled {
		return settings.ShippingFee.Amount
	}
	return decimal.Zero
}

// Price считает сумму, доставку и итог заказа.
func Price(lines []domain.OrderLine, settings Settings) Quote {
	subtotal := Subtotal(lines)
	fee := ShippingFee(subtotal, settings)
	return Quote{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Total:       subtotal.Add(fee),
	}
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Имена параметров, которые читает оформление заказа.
const (
	ConfigShippingFee           = "ShippingFee"
	ConfigMinFreeShippingAmount = "MinFreeShippingAmount"
)

const maxConfigNameLength = 50

// ConfigDataType — тип значения параметра.
type ConfigDataType string

const (
	ConfigTypeString  ConfigDataType = "string"
	ConfigTypeNumber  ConfigDataType = "number"
	ConfigTypeBoolean ConfigDataType = "boolean"
)

// Valid проверяет, что тип поддерживается.
func (t ConfigDataType) Valid() bool {
	switch t {
	case ConfigTypeString, ConfigTypeNumber, ConfigTypeBoolean:
		return true
	default:
		return false
	}
}

// ConfigEntry — именованный типизированный бизнес-параметр с флагом включения.
type ConfigEntry struct {
	Name        string
	Value       string
	DataType    ConfigDataType
	Status      bool
	Description string
	UpdatedAt   time.Time
}

// Validate проверяет имя, тип и приводимость значения к типу.
func (c *ConfigEntry) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return NewValidationError("name", "is required")
	}
	if len(name) > maxConfigNameLength {
		return NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxConfigNameLength))
	}
	if !c.DataType.Valid() {
		return NewValidationError("dataType", "must be one of string, number, boolean")
	}
	switch c.DataType {
	case ConfigTypeNumber:
		if _, err := c.Decimal(); err != nil {
			return NewValidationError("value", "must be a number")
		}
	case ConfigTypeBoolean:
		if _, err := c.Bool(); err != nil {
			return NewValidationError("value", "must be a boolean")
		}
	}
	return nil
}

// Decimal возвращает числовое значение параметра.
func (c *ConfigEntry) Decimal() (decimal.Decimal, error) {
	if c.DataType != ConfigTypeNumber {
		return decimal.Zero, fmt.Errorf("config %s is %s, not number", c.Name, c.DataType)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(c.Value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config %s: parse number %q: %w", c.Name, c.Value, err)
	}
	return value, nil
}

// Bool возвращает логическое значение параметра.
func (c *ConfigEntry) Bool() (bool, error) {
	if c.DataType != ConfigTypeBoolean {
		return false, fmt.Errorf("config %s is %s, not boolean", c.Name, c.DataType)
	}
	value, err := strconv.ParseBool(strings.TrimSpace(c.Value))
	if err != nil {
		return false, fmt.Errorf("config %s: parse boolean %q: %w", c.Name, c.Value, err)
	}
	return value, nil
}

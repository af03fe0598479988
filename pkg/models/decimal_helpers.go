package models

import "github.com/shopspring/decimal"

// ToFloat64 converts decimal to float64, dropping the exactness flag
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

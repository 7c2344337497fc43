package domain

import "github.com/shopspring/decimal"

// Money is a fixed-point currency amount.
type Money = decimal.Decimal

// MoneyScale is the number of fractional digits kept for stored amounts.
const MoneyScale = 2

// NewMoney returns an integral amount, e.g. NewMoney(50000) for Rp50.000.
func NewMoney(units int64) Money {
	return decimal.NewFromInt(units)
}

// ParseMoney parses a decimal string such as "15000.50".
func ParseMoney(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// LineSubtotal computes quantity x unit price, rounded to MoneyScale.
func LineSubtotal(unitPrice Money, quantity int64) Money {
	return unitPrice.Mul(decimal.NewFromInt(quantity)).Round(MoneyScale)
}

package domain

import "github.com/shopspring/decimal"

type Currency struct {
	Code      string          // ISO-4217 style, e.g. KES
	Name      string
	Symbol    string
	RateToUSD decimal.Decimal // units of this currency per 1 USD
	Decimals  int32           // minor-unit exponent: 2 for cents, 0 for yen-like
}

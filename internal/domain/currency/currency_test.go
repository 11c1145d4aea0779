package currency_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/wekeepgrowing/semo-course-billing/internal/domain/currency"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{name: "standard currency", amount: "12.34", currency: "USD", want: 1234},
		{name: "lowercase code", amount: "0.50", currency: "usd", want: 50},
		{name: "zero decimal passes through", amount: "500", currency: "JPY", want: 500},
		{name: "zero decimal rounds", amount: "500.6", currency: "KRW", want: 501},
		{name: "rounds half cent", amount: "19.995", currency: "EUR", want: 2000},
		{name: "zero", amount: "0", currency: "USD", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := currency.ToMinorUnits(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	usd := decimal.RequireFromString("12.34")
	assert.True(t, usd.Equal(currency.FromMinorUnits(currency.ToMinorUnits(usd, "USD"), "USD")))

	jpy := decimal.NewFromInt(500)
	assert.Equal(t, int64(500), currency.ToMinorUnits(jpy, "JPY"))
	assert.True(t, jpy.Equal(currency.FromMinorUnits(500, "JPY")))
}

func TestIsZeroDecimal(t *testing.T) {
	assert.True(t, currency.IsZeroDecimal("jpy"))
	assert.False(t, currency.IsZeroDecimal("USD"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "500 JPY", currency.Format(500, "jpy"))
	assert.Equal(t, "5.00 USD", currency.Format(500, "usd"))
	assert.Equal(t, "0.50 EUR", currency.Format(50, "EUR"))
}

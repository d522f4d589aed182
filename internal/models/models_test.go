package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestAlertValidate_RequiredFieldsPerType(t *testing.T) {
	base := Alert{TokenSymbol: "BTC", TokenName: "Bitcoin"}

	cases := []struct {
		name    string
		typ     AlertType
		cond    AlertConditions
		wantErr error
	}{
		{"price_above ok", AlertPriceAbove, AlertConditions{PriceAbove: f64(100)}, nil},
		{"price_above missing", AlertPriceAbove, AlertConditions{}, ErrMissingCondition},
		{"price_below missing", AlertPriceBelow, AlertConditions{}, ErrMissingCondition},
		{"price_change ok", AlertPriceChange, AlertConditions{PriceChangePercent: f64(5)}, nil},
		{"volume_above missing", AlertVolumeAbove, AlertConditions{}, ErrMissingCondition},
		{"exchange_count either bound ok", AlertExchangeCount, AlertConditions{ExchangeCountBelow: intp(3)}, nil},
		{"exchange_count no bounds", AlertExchangeCount, AlertConditions{}, ErrMissingCondition},
		{"new_exchange needs flag", AlertNewExchange, AlertConditions{}, ErrMissingCondition},
		{"new_exchange ok", AlertNewExchange, AlertConditions{NewExchangeAlert: true}, nil},
		{"trading_status ok", AlertTradingStatus, AlertConditions{TradingStatus: strp("ENABLED")}, nil},
		{"combined empty", AlertCombined, AlertConditions{}, ErrEmptyCombined},
		{"combined ok", AlertCombined, AlertConditions{Combined: []CombinedCondition{
			{Field: "price", Operator: "above", Value: "1"},
		}}, nil},
		{"unknown type", AlertType("nonsense"), AlertConditions{}, ErrUnknownAlertType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := base
			a.Type = tc.typ
			a.Conditions = tc.cond
			err := a.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestAlertValidate_TokenSymbolRequired(t *testing.T) {
	a := Alert{Type: AlertPriceAbove, Conditions: AlertConditions{PriceAbove: f64(1)}}
	assert.ErrorIs(t, a.Validate(), ErrMissingTokenSymbol)
}

func intp(v int) *int       { return &v }
func strp(s string) *string { return &s }

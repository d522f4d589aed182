package models

import (
	"errors"
	"fmt"
	"time"
)

// Token is a tracked asset: identity plus static metadata.
// Symbol is immutable after creation and unique among active tokens.
// IDs are never reused; a restored token gets a fresh ID.
type Token struct {
	ID           string        `json:"id" db:"id"`
	Symbol       string        `json:"symbol" db:"symbol"`
	Name         string        `json:"name" db:"name"`
	Exchanges    []string      `json:"exchanges" db:"exchanges"`
	Added        time.Time     `json:"added" db:"added"`
	AllTimeHigh  *float64      `json:"all_time_high,omitempty" db:"all_time_high"`
	AllTimeLow   *float64      `json:"all_time_low,omitempty" db:"all_time_low"`
	ExchangeData *ExchangeData `json:"exchange_data,omitempty" db:"exchange_data"`
}

// ExchangeData is the scraper's latest listing snapshot for a token.
type ExchangeData struct {
	TotalExchanges      int       `json:"total_exchanges"`
	Exchanges           []string  `json:"exchanges"`
	NewExchanges24h     []string  `json:"new_exchanges_24h"`
	RemovedExchanges24h []string  `json:"removed_exchanges_24h"`
	LastUpdated         time.Time `json:"last_updated"`
}

// ExchangeTicker is one exchange's 24h ticker snapshot for a symbol.
type ExchangeTicker struct {
	Price          float64 `json:"price"`
	Volume         float64 `json:"volume"`
	High24h        float64 `json:"high_24h"`
	Low24h         float64 `json:"low_24h"`
	Volume24h      float64 `json:"volume_24h"`
	OpenPrice      float64 `json:"open_price"`
	PriceChange    float64 `json:"price_change"`
	Count          int64   `json:"count"`
	BidPrice       float64 `json:"bid_price"`
	AskPrice       float64 `json:"ask_price"`
	Status         string  `json:"status"`
	TradingEnabled bool    `json:"trading_enabled"`
}

// ExchangePrices holds the per-exchange tickers that feed AveragePrice.
type ExchangePrices struct {
	MEXC   *ExchangeTicker `json:"mexc,omitempty"`
	Gateio *ExchangeTicker `json:"gateio,omitempty"`
}

// PriceData is the most recent live snapshot for one symbol.
// AveragePrice is only meaningful when at least one exchange ticker is
// present; an absent PriceData means "price unknown", not zero.
type PriceData struct {
	Symbol       string         `json:"symbol"`
	Timestamp    time.Time      `json:"timestamp"`
	AveragePrice float64        `json:"average_price"`
	Change24h    float64        `json:"change_24h"`
	Exchanges    ExchangePrices `json:"exchanges"`
}

// AlertType identifies which condition an alert evaluates.
type AlertType string

const (
	AlertPriceAbove      AlertType = "price_above"
	AlertPriceBelow      AlertType = "price_below"
	AlertPriceChange     AlertType = "price_change"
	AlertVolumeAbove     AlertType = "volume_above"
	AlertVolumeBelow     AlertType = "volume_below"
	AlertExchangeCount   AlertType = "exchange_count"
	AlertNewExchange     AlertType = "new_exchange"
	AlertRemovedExchange AlertType = "removed_exchange"
	AlertATHDistance     AlertType = "ath_distance"
	AlertPercentFromATH  AlertType = "percent_from_ath"
	AlertTradingStatus   AlertType = "trading_status"
	AlertCombined        AlertType = "combined"
)

// Direction qualifiers used by price_change, ath_distance and percent_from_ath.
const (
	DirectionAny      = "any"
	DirectionPositive = "positive"
	DirectionNegative = "negative"
	DirectionCloser   = "closer"
	DirectionFurther  = "further"
	DirectionAbove    = "above"
	DirectionBelow    = "below"
)

// CombinedCondition is one leg of a combined alert. Logic specifies how
// this leg joins with the NEXT one in the list ("and"/"or"), not the
// previous — existing saved alerts depend on that reading.
type CombinedCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Logic    string `json:"logic,omitempty"`
}

// AlertConditions is the variant payload of an alert; only the fields
// belonging to the alert's Type are populated.
type AlertConditions struct {
	PriceAbove              *float64            `json:"price_above,omitempty"`
	PriceBelow              *float64            `json:"price_below,omitempty"`
	PriceChangePercent      *float64            `json:"price_change_percent,omitempty"`
	PriceChangeDirection    string              `json:"price_change_direction,omitempty"`
	VolumeAbove             *float64            `json:"volume_above,omitempty"`
	VolumeBelow             *float64            `json:"volume_below,omitempty"`
	ExchangeCountAbove      *int                `json:"exchange_count_above,omitempty"`
	ExchangeCountBelow      *int                `json:"exchange_count_below,omitempty"`
	NewExchangeAlert        bool                `json:"new_exchange_alert,omitempty"`
	RemovedExchangeAlert    bool                `json:"removed_exchange_alert,omitempty"`
	ATHDistancePercent      *float64            `json:"ath_distance_percent,omitempty"`
	ATHDistanceDirection    string              `json:"ath_distance_direction,omitempty"`
	PercentFromATHThreshold *float64            `json:"percent_from_ath_threshold,omitempty"`
	PercentFromATHDirection string              `json:"percent_from_ath_direction,omitempty"`
	TradingStatus           *string             `json:"trading_status,omitempty"`
	Combined                []CombinedCondition `json:"combined,omitempty"`
}

// Alert is a persisted rule evaluated on every price refresh while active.
type Alert struct {
	ID            string          `json:"id" db:"id"`
	TokenSymbol   string          `json:"token_symbol" db:"token_symbol"`
	TokenName     string          `json:"token_name" db:"token_name"`
	Type          AlertType       `json:"alert_type" db:"alert_type"`
	Conditions    AlertConditions `json:"conditions" db:"conditions"`
	Message       string          `json:"message" db:"message"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	LastTriggered *time.Time      `json:"last_triggered,omitempty" db:"last_triggered"`
	TriggerCount  int             `json:"trigger_count" db:"trigger_count"`
}

// DeletedToken is the append-only audit record for a removed token.
type DeletedToken struct {
	ID             string    `json:"id" db:"id"`
	TokenID        string    `json:"token_id" db:"token_id"`
	Symbol         string    `json:"symbol" db:"symbol"`
	Name           string    `json:"name" db:"name"`
	Exchanges      []string  `json:"exchanges" db:"exchanges"`
	Added          time.Time `json:"added" db:"added"`
	AllTimeHigh    *float64  `json:"all_time_high,omitempty" db:"all_time_high"`
	AllTimeLow     *float64  `json:"all_time_low,omitempty" db:"all_time_low"`
	DeletionReason string    `json:"deletion_reason" db:"deletion_reason"`
	DateDeleted    time.Time `json:"date_deleted" db:"date_deleted"`
}

// TriggerEvent is published on the alert_triggers channel when an alert fires.
type TriggerEvent struct {
	AlertID     string    `json:"alert_id"`
	TokenSymbol string    `json:"token_symbol"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// PriceUpdate is the normalized per-trade message produced to Kafka.
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// Validation errors surfaced at alert/token creation time.
var (
	ErrMissingSymbol      = errors.New("token symbol is required")
	ErrMissingTokenSymbol = errors.New("alert token symbol is required")
	ErrUnknownAlertType   = errors.New("unknown alert type")
	ErrMissingCondition   = errors.New("required condition field missing for alert type")
	ErrEmptyCombined      = errors.New("combined alert needs at least one condition")
	ErrMissingReason      = errors.New("deletion reason is required")
)

// Validate enforces the per-type required condition fields. The evaluator
// itself never re-checks these; a missing field there just reads as false.
func (a *Alert) Validate() error {
	if a.TokenSymbol == "" {
		return ErrMissingTokenSymbol
	}
	c := a.Conditions
	switch a.Type {
	case AlertPriceAbove:
		if c.PriceAbove == nil {
			return fmt.Errorf("%w: price_above", ErrMissingCondition)
		}
	case AlertPriceBelow:
		if c.PriceBelow == nil {
			return fmt.Errorf("%w: price_below", ErrMissingCondition)
		}
	case AlertPriceChange:
		if c.PriceChangePercent == nil {
			return fmt.Errorf("%w: price_change_percent", ErrMissingCondition)
		}
	case AlertVolumeAbove:
		if c.VolumeAbove == nil {
			return fmt.Errorf("%w: volume_above", ErrMissingCondition)
		}
	case AlertVolumeBelow:
		if c.VolumeBelow == nil {
			return fmt.Errorf("%w: volume_below", ErrMissingCondition)
		}
	case AlertExchangeCount:
		if c.ExchangeCountAbove == nil && c.ExchangeCountBelow == nil {
			return fmt.Errorf("%w: exchange_count_above or exchange_count_below", ErrMissingCondition)
		}
	case AlertNewExchange:
		if !c.NewExchangeAlert {
			return fmt.Errorf("%w: new_exchange_alert", ErrMissingCondition)
		}
	case AlertRemovedExchange:
		if !c.RemovedExchangeAlert {
			return fmt.Errorf("%w: removed_exchange_alert", ErrMissingCondition)
		}
	case AlertATHDistance:
		if c.ATHDistancePercent == nil {
			return fmt.Errorf("%w: ath_distance_percent", ErrMissingCondition)
		}
	case AlertPercentFromATH:
		if c.PercentFromATHThreshold == nil {
			return fmt.Errorf("%w: percent_from_ath_threshold", ErrMissingCondition)
		}
	case AlertTradingStatus:
		if c.TradingStatus == nil {
			return fmt.Errorf("%w: trading_status", ErrMissingCondition)
		}
	case AlertCombined:
		if len(c.Combined) == 0 {
			return ErrEmptyCombined
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlertType, a.Type)
	}
	return nil
}

package alerts

import (
	"math"
	"strconv"
	"strings"
	"time"

	"cryptodash/internal/models"
)

// Cooldown is the minimum gap between two firings of the same alert.
const Cooldown = 5 * time.Minute

// Outcome is the result of one evaluation tick for one alert.
// ShouldTrigger is the raw condition check; Fired means the caller should
// commit the trigger and notify; Suppressed means the condition held but
// the cooldown window has not elapsed, so nothing may be mutated.
type Outcome struct {
	ShouldTrigger bool
	Fired         bool
	Suppressed    bool
}

// Check evaluates an alert against the current token/price pair at the
// given instant. It is pure: no field of the alert is modified. Inactive
// alerts always produce a zero Outcome.
func Check(a *models.Alert, tok *models.Token, price *models.PriceData, now time.Time) Outcome {
	if a == nil || !a.IsActive {
		return Outcome{}
	}
	if !Evaluate(a, tok, price) {
		return Outcome{}
	}
	out := Outcome{ShouldTrigger: true}
	if a.LastTriggered == nil || now.Sub(*a.LastTriggered) > Cooldown {
		out.Fired = true
	} else {
		out.Suppressed = true
	}
	return out
}

// Commit records a firing decided by Check. Callers persist the alert
// afterwards; this only applies the in-memory mutation. Evaluation passes
// for one alert set must not overlap, otherwise the read-check-update
// around LastTriggered can double-fire within the cooldown window.
func Commit(a *models.Alert, now time.Time) {
	t := now
	a.LastTriggered = &t
	a.TriggerCount++
}

// Evaluate reports whether the alert's condition currently holds.
// Missing data always reads as "condition not met", never as an error.
func Evaluate(a *models.Alert, tok *models.Token, price *models.PriceData) bool {
	c := a.Conditions
	switch a.Type {
	case models.AlertPriceAbove:
		return c.PriceAbove != nil && price != nil && price.AveragePrice > *c.PriceAbove
	case models.AlertPriceBelow:
		return c.PriceBelow != nil && price != nil && price.AveragePrice < *c.PriceBelow
	case models.AlertPriceChange:
		if c.PriceChangePercent == nil || price == nil {
			return false
		}
		if math.Abs(price.Change24h) < *c.PriceChangePercent {
			return false
		}
		switch c.PriceChangeDirection {
		case models.DirectionPositive:
			return price.Change24h > 0
		case models.DirectionNegative:
			return price.Change24h < 0
		default:
			return true
		}
	case models.AlertVolumeAbove:
		v, ok := mexcVolume(price)
		return ok && c.VolumeAbove != nil && v > *c.VolumeAbove
	case models.AlertVolumeBelow:
		v, ok := mexcVolume(price)
		return ok && c.VolumeBelow != nil && v < *c.VolumeBelow
	case models.AlertExchangeCount:
		count := exchangeCount(tok)
		if c.ExchangeCountAbove != nil && count <= *c.ExchangeCountAbove {
			return false
		}
		if c.ExchangeCountBelow != nil && count >= *c.ExchangeCountBelow {
			return false
		}
		return true
	case models.AlertNewExchange:
		return c.NewExchangeAlert && tok != nil && tok.ExchangeData != nil &&
			len(tok.ExchangeData.NewExchanges24h) > 0
	case models.AlertRemovedExchange:
		return c.RemovedExchangeAlert && tok != nil && tok.ExchangeData != nil &&
			len(tok.ExchangeData.RemovedExchanges24h) > 0
	case models.AlertATHDistance:
		if c.ATHDistancePercent == nil || tok == nil || tok.AllTimeHigh == nil || price == nil {
			return false
		}
		distance := math.Abs((price.AveragePrice - *tok.AllTimeHigh) / *tok.AllTimeHigh * 100)
		if c.ATHDistanceDirection == models.DirectionFurther {
			return distance >= *c.ATHDistancePercent
		}
		return distance <= *c.ATHDistancePercent
	case models.AlertPercentFromATH:
		if c.PercentFromATHThreshold == nil || tok == nil || tok.AllTimeHigh == nil || price == nil {
			return false
		}
		signedPct := (price.AveragePrice - *tok.AllTimeHigh) / *tok.AllTimeHigh * 100
		if c.PercentFromATHDirection == models.DirectionAbove {
			return signedPct >= *c.PercentFromATHThreshold
		}
		return signedPct <= -math.Abs(*c.PercentFromATHThreshold)
	case models.AlertTradingStatus:
		if c.TradingStatus == nil || price == nil || price.Exchanges.MEXC == nil {
			return false
		}
		return price.Exchanges.MEXC.Status == *c.TradingStatus
	case models.AlertCombined:
		return evaluateCombined(c.Combined, tok, price)
	default:
		return false
	}
}

// evaluateCombined folds the sub-conditions left to right. The logic
// operator stored on condition i-1 joins it with condition i (it looks
// forward, not backward). Every leg is evaluated; there is no
// short-circuiting. An empty list never holds.
func evaluateCombined(conds []models.CombinedCondition, tok *models.Token, price *models.PriceData) bool {
	if len(conds) == 0 {
		return false
	}
	result := evaluateLeg(conds[0], tok, price)
	for i := 1; i < len(conds); i++ {
		v := evaluateLeg(conds[i], tok, price)
		if strings.EqualFold(conds[i-1].Logic, "or") {
			result = result || v
		} else {
			result = result && v
		}
	}
	return result
}

func evaluateLeg(c models.CombinedCondition, tok *models.Token, price *models.PriceData) bool {
	val, ok := resolveField(c.Field, tok, price)
	if !ok {
		return false
	}
	switch c.Operator {
	case "above":
		n, err := strconv.ParseFloat(c.Value, 64)
		return err == nil && val.isNumber && val.number > n
	case "below":
		n, err := strconv.ParseFloat(c.Value, 64)
		return err == nil && val.isNumber && val.number < n
	case "equals":
		return val.String() == c.Value
	case "contains":
		return strings.Contains(strings.ToLower(val.String()), strings.ToLower(c.Value))
	default:
		return false
	}
}

// fieldValue is a resolved combined-condition operand: either numeric or
// textual, with a common string form for equals/contains.
type fieldValue struct {
	number   float64
	text     string
	isNumber bool
}

func (v fieldValue) String() string {
	if v.isNumber {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

func numberValue(n float64) (fieldValue, bool) { return fieldValue{number: n, isNumber: true}, true }
func textValue(s string) (fieldValue, bool)    { return fieldValue{text: s}, true }

// resolveField maps a combined-condition field name onto the live data.
// Unknown fields and absent data both report !ok, which fails the leg.
func resolveField(field string, tok *models.Token, price *models.PriceData) (fieldValue, bool) {
	mexc := func() *models.ExchangeTicker {
		if price == nil {
			return nil
		}
		return price.Exchanges.MEXC
	}()
	switch field {
	case "price":
		if price == nil {
			return fieldValue{}, false
		}
		return numberValue(price.AveragePrice)
	case "change24h":
		if price == nil {
			return fieldValue{}, false
		}
		return numberValue(price.Change24h)
	case "volume24h":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(mexc.Volume24h)
	case "high24h":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(mexc.High24h)
	case "low24h":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(mexc.Low24h)
	case "tradeCount":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(float64(mexc.Count))
	case "ath":
		if tok == nil || tok.AllTimeHigh == nil {
			return fieldValue{}, false
		}
		return numberValue(*tok.AllTimeHigh)
	case "atl":
		if tok == nil || tok.AllTimeLow == nil {
			return fieldValue{}, false
		}
		return numberValue(*tok.AllTimeLow)
	case "exchangeCount":
		if tok == nil {
			return fieldValue{}, false
		}
		return numberValue(float64(exchangeCount(tok)))
	case "tradingStatus":
		if mexc == nil {
			return fieldValue{}, false
		}
		return textValue(mexc.Status)
	case "bidPrice":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(mexc.BidPrice)
	case "askPrice":
		if mexc == nil {
			return fieldValue{}, false
		}
		return numberValue(mexc.AskPrice)
	default:
		return fieldValue{}, false
	}
}

// exchangeCount prefers the scraper's total over the registration list.
func exchangeCount(tok *models.Token) int {
	if tok == nil {
		return 0
	}
	if tok.ExchangeData != nil {
		return tok.ExchangeData.TotalExchanges
	}
	return len(tok.Exchanges)
}

func mexcVolume(price *models.PriceData) (float64, bool) {
	if price == nil || price.Exchanges.MEXC == nil {
		return 0, false
	}
	return price.Exchanges.MEXC.Volume24h, true
}

package query

import (
	"math"
	"strconv"
	"strings"

	"cryptodash/internal/models"
)

// priceEqualTolerance is how close "price:=X" has to get to count as equal.
const priceEqualTolerance = 0.01

// Matches reports whether a token (with its optional live price snapshot)
// satisfies a user-typed search query.
//
// Splitting is applied in two passes: "|" first, then "&" within each OR
// branch, so "a&b|c" reads as "(a&b)|c". There is no parenthesis support.
// An empty or whitespace-only query matches everything, at every level of
// recursion, which keeps partially-typed queries like "btc|" harmless.
func Matches(q string, tok *models.Token, price *models.PriceData) bool {
	if strings.TrimSpace(q) == "" {
		return true
	}
	if strings.Contains(q, "|") {
		for _, part := range strings.Split(q, "|") {
			if Matches(part, tok, price) {
				return true
			}
		}
		return false
	}
	if strings.Contains(q, "&") {
		for _, part := range strings.Split(q, "&") {
			if !Matches(part, tok, price) {
				return false
			}
		}
		return true
	}
	return matchTerm(q, tok, price)
}

// FilterTokens returns the subset of tokens matching q, preserving order.
// The prices map may be missing entries; those tokens are evaluated with
// no price snapshot rather than skipped.
func FilterTokens(q string, tokens []*models.Token, prices map[string]*models.PriceData) []*models.Token {
	if strings.TrimSpace(q) == "" {
		return tokens
	}
	var out []*models.Token
	for _, tok := range tokens {
		if Matches(q, tok, prices[tok.Symbol]) {
			out = append(out, tok)
		}
	}
	return out
}

func matchTerm(raw string, tok *models.Token, price *models.PriceData) bool {
	term := strings.ToLower(strings.TrimSpace(raw))
	if term == "" {
		return true
	}

	if idx := strings.Index(term, ":"); idx >= 0 {
		column := term[:idx]
		value := strings.TrimSpace(term[idx+1:])
		switch column {
		case "symbol":
			return strings.Contains(strings.ToLower(tok.Symbol), value)
		case "name":
			return strings.Contains(strings.ToLower(tok.Name), value)
		case "price":
			v, ok := averagePrice(price)
			if !ok {
				return false
			}
			return matchNumeric(v, value, true)
		case "change":
			if price == nil {
				return false
			}
			return matchNumeric(price.Change24h, value, false)
		case "volume":
			if price == nil || price.Exchanges.MEXC == nil {
				return false
			}
			return matchNumeric(price.Exchanges.MEXC.Volume24h, value, false)
		case "ath":
			if tok.AllTimeHigh == nil {
				return false
			}
			return matchNumeric(*tok.AllTimeHigh, value, false)
		case "exchange":
			for _, ex := range allExchanges(tok) {
				if strings.Contains(strings.ToLower(ex), value) {
					return true
				}
			}
			return false
		case "status":
			return strings.Contains(mexcStatus(price), value)
		}
		// Unrecognized column: treat the whole term as a plain search.
	}

	blob := searchBlob(tok, price)

	if len(term) >= 2 && strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) {
		return strings.Contains(blob, term[1:len(term)-1])
	}

	for _, sub := range strings.Fields(term) {
		if strings.Contains(blob, sub) {
			return true
		}
	}
	return false
}

// matchNumeric applies the ">", "<" (and, for price, "=") operator prefixes,
// falling back to a substring match against the number's string form.
// Unparsable operands fail the term rather than erroring.
func matchNumeric(field float64, value string, allowEqual bool) bool {
	switch {
	case strings.HasPrefix(value, ">"):
		n, err := strconv.ParseFloat(strings.TrimSpace(value[1:]), 64)
		return err == nil && field > n
	case strings.HasPrefix(value, "<"):
		n, err := strconv.ParseFloat(strings.TrimSpace(value[1:]), 64)
		return err == nil && field < n
	case allowEqual && strings.HasPrefix(value, "="):
		n, err := strconv.ParseFloat(strings.TrimSpace(value[1:]), 64)
		return err == nil && math.Abs(field-n) <= priceEqualTolerance
	default:
		return strings.Contains(formatNumber(field), value)
	}
}

// searchBlob is the space-joined, lower-cased haystack general terms are
// matched against: symbol, name, every known exchange, MEXC trading status
// and the price/ATH/ATL figures as strings.
func searchBlob(tok *models.Token, price *models.PriceData) string {
	parts := []string{tok.Symbol, tok.Name}
	parts = append(parts, allExchanges(tok)...)
	if s := mexcStatus(price); s != "" {
		parts = append(parts, s)
	}
	if v, ok := averagePrice(price); ok {
		parts = append(parts, formatNumber(v))
	}
	if tok.AllTimeHigh != nil {
		parts = append(parts, formatNumber(*tok.AllTimeHigh))
	}
	if tok.AllTimeLow != nil {
		parts = append(parts, formatNumber(*tok.AllTimeLow))
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// allExchanges merges the registration-time exchange list with the
// scraper's latest snapshot. Duplicates are fine; this only feeds
// substring checks.
func allExchanges(tok *models.Token) []string {
	out := append([]string(nil), tok.Exchanges...)
	if tok.ExchangeData != nil {
		out = append(out, tok.ExchangeData.Exchanges...)
	}
	return out
}

func averagePrice(price *models.PriceData) (float64, bool) {
	if price == nil {
		return 0, false
	}
	return price.AveragePrice, true
}

func mexcStatus(price *models.PriceData) string {
	if price == nil || price.Exchanges.MEXC == nil {
		return ""
	}
	return strings.ToLower(price.Exchanges.MEXC.Status)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package query

import (
	"testing"
	"time"

	"cryptodash/internal/models"
)

func f64(v float64) *float64 { return &v }

func testToken() *models.Token {
	return &models.Token{
		ID:          "tok-1",
		Symbol:      "BTC",
		Name:        "Bitcoin",
		Exchanges:   []string{"MEXC", "Gateio"},
		Added:       time.Now(),
		AllTimeHigh: f64(69000),
		AllTimeLow:  f64(67.81),
		ExchangeData: &models.ExchangeData{
			TotalExchanges: 3,
			Exchanges:      []string{"mexc", "gateio", "binance"},
		},
	}
}

func testPrice(avg float64) *models.PriceData {
	return &models.PriceData{
		Symbol:       "BTC",
		AveragePrice: avg,
		Change24h:    4.2,
		Exchanges: models.ExchangePrices{
			MEXC: &models.ExchangeTicker{
				Volume24h: 1500000,
				Status:    "ENABLED",
			},
		},
	}
}

func TestMatches_EmptyQueryIsVacuouslyTrue(t *testing.T) {
	tok := testToken()
	for _, q := range []string{"", "   ", "\t", "  \n "} {
		if !Matches(q, tok, nil) {
			t.Errorf("query %q should match any token", q)
		}
	}
	// Empty branches inside operators are vacuous too.
	if !Matches("btc|", tok, nil) {
		t.Error("empty OR branch should be vacuously true")
	}
	if !Matches("btc& ", tok, testPrice(100)) {
		t.Error("empty AND branch should be vacuously true")
	}
}

func TestMatches_GeneralSubstring(t *testing.T) {
	tok := testToken()
	price := testPrice(150)

	cases := []struct {
		q    string
		want bool
	}{
		{"btc", true},
		{"BITCOIN", true},
		{"binance", true}, // from scraper exchange list
		{"gateio", true},  // from registration exchange list
		{"enabled", true}, // mexc status
		{"doge", false},
		{"bit coin", true},    // any subterm suffices
		{"doge bitcoin", true}, // second subterm matches
	}
	for _, tc := range cases {
		if got := Matches(tc.q, tok, price); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.q, got, tc.want)
		}
	}
}

func TestMatches_QuotedTermIsExactSubstring(t *testing.T) {
	tok := testToken()
	if !Matches(`"bitcoin"`, tok, nil) {
		t.Error(`"bitcoin" should match the name`)
	}
	// A quoted multi-word string must appear as one substring, unlike the
	// unquoted form which matches on any single word.
	if Matches(`"bit gold"`, tok, nil) {
		t.Error(`"bit gold" must not match: no such contiguous substring`)
	}
	if !Matches("bit gold", tok, nil) {
		t.Error("unquoted 'bit gold' matches via the 'bit' subterm")
	}
}

func TestMatches_OrBindsLooserThanAnd(t *testing.T) {
	btc := testToken()
	eth := &models.Token{Symbol: "ETH", Name: "Ethereum"}

	// "BTC&price:>100|ETH" must parse as (btc AND price>100) OR (eth).
	q := "BTC&price:>100|ETH"

	if !Matches(q, btc, testPrice(150)) {
		t.Error("btc at 150 satisfies the AND branch")
	}
	if Matches(q, btc, testPrice(50)) {
		t.Error("btc at 50 fails both branches")
	}
	if !Matches(q, eth, nil) {
		t.Error("eth satisfies the OR branch even with no price data")
	}
}

func TestMatches_OrEquivalence(t *testing.T) {
	tok := testToken()
	price := testPrice(150)
	for _, pair := range [][2]string{{"btc", "doge"}, {"doge", "btc"}, {"doge", "shib"}} {
		lhs := Matches(pair[0]+"|"+pair[1], tok, price)
		rhs := Matches(pair[0], tok, price) || Matches(pair[1], tok, price)
		if lhs != rhs {
			t.Errorf("OR split inconsistent for %q|%q: %v vs %v", pair[0], pair[1], lhs, rhs)
		}
	}
}

func TestMatches_PriceColumn(t *testing.T) {
	tok := testToken()

	if !Matches("price:>100", tok, testPrice(150)) {
		t.Error("price:>100 should match averagePrice 150")
	}
	if Matches("price:>100", tok, testPrice(50)) {
		t.Error("price:>100 must not match averagePrice 50")
	}
	if Matches("price:>100", tok, nil) {
		t.Error("price:>100 must not match when there is no price data")
	}
	if !Matches("price:<100", tok, testPrice(50)) {
		t.Error("price:<100 should match averagePrice 50")
	}
	if !Matches("price:=100", tok, testPrice(100.005)) {
		t.Error("price:=100 equality has a 0.01 tolerance")
	}
	if Matches("price:=100", tok, testPrice(100.5)) {
		t.Error("price:=100 must not match 100.5")
	}
	// No operator prefix: substring of the number's string form.
	if !Matches("price:150", tok, testPrice(150)) {
		t.Error("price:150 should substring-match '150'")
	}
	// Garbage operand fails the term instead of erroring.
	if Matches("price:>abc", tok, testPrice(150)) {
		t.Error("unparsable operand must fail the term")
	}
}

func TestMatches_OtherColumns(t *testing.T) {
	tok := testToken()
	price := testPrice(150)

	cases := []struct {
		q    string
		want bool
	}{
		{"symbol:bt", true},
		{"symbol:eth", false},
		{"name:bitco", true},
		{"change:>4", true},
		{"change:>5", false},
		{"volume:>1000000", true},
		{"volume:<1000000", false},
		{"ath:>50000", true},
		{"ath:<50000", false},
		{"exchange:binance", true},
		{"exchange:kraken", false},
		{"status:enab", true},
		{"status:paused", false},
	}
	for _, tc := range cases {
		if got := Matches(tc.q, tok, price); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.q, got, tc.want)
		}
	}

	// Numeric columns fail when the backing field is absent.
	bare := &models.Token{Symbol: "XYZ", Name: "Xyz"}
	if Matches("ath:>1", bare, nil) {
		t.Error("ath term must fail with no recorded ATH")
	}
	if Matches("volume:>1", tok, nil) {
		t.Error("volume term must fail with no price data")
	}
}

func TestMatches_UnknownColumnFallsThroughToGeneralSearch(t *testing.T) {
	tok := testToken()
	// "foo:btc" is not a recognized column; the original term is used for a
	// general search, and "foo:btc" is not a substring of the blob.
	if Matches("foo:btc", tok, nil) {
		t.Error("unknown column term must search for the full original term")
	}
	// A token whose name happens to contain the raw term still matches.
	odd := &models.Token{Symbol: "FOO", Name: "foo:btc index"}
	if !Matches("foo:btc", odd, nil) {
		t.Error("unknown column term should match as plain text when present")
	}
}

func TestFilterTokens(t *testing.T) {
	btc := testToken()
	eth := &models.Token{Symbol: "ETH", Name: "Ethereum"}
	doge := &models.Token{Symbol: "DOGE", Name: "Dogecoin"}
	tokens := []*models.Token{btc, eth, doge}
	prices := map[string]*models.PriceData{"BTC": testPrice(150)}

	got := FilterTokens("btc|eth", tokens, prices)
	if len(got) != 2 || got[0] != btc || got[1] != eth {
		t.Errorf("expected [BTC ETH], got %d tokens", len(got))
	}

	// Empty query returns the input unchanged.
	if got := FilterTokens("  ", tokens, prices); len(got) != 3 {
		t.Errorf("empty query should keep all tokens, got %d", len(got))
	}
}

package main

import (
	"testing"

	"cryptodash/internal/models"
)

func TestBaseSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":  "BTC",
		"BTC_USDT": "BTC",
		"ethusdt":  "ETH",
		"DOGE":     "DOGE",
	}
	for pair, want := range cases {
		if got := baseSymbol(pair); got != want {
			t.Errorf("baseSymbol(%q) = %q, want %q", pair, got, want)
		}
	}
}

func TestNextExtremes_FirstObservationSetsBoth(t *testing.T) {
	tok := &models.Token{Symbol: "BTC"}

	high, low, moved := nextExtremes(tok, 100)
	if !moved {
		t.Fatal("first price must set both extremes")
	}
	if high == nil || *high != 100 {
		t.Errorf("expected high 100, got %v", high)
	}
	if low == nil || *low != 100 {
		t.Errorf("expected low 100, got %v", low)
	}
}

func TestNextExtremes_OnlyRecordsNewRecords(t *testing.T) {
	h, l := 200.0, 50.0
	tok := &models.Token{Symbol: "BTC", AllTimeHigh: &h, AllTimeLow: &l}

	// Inside the existing range: nothing moves.
	high, low, moved := nextExtremes(tok, 120)
	if moved {
		t.Error("a price inside the range must not move the extremes")
	}
	if *high != 200 || *low != 50 {
		t.Errorf("extremes changed to %v/%v", *high, *low)
	}

	// A new high leaves the low alone.
	high, low, moved = nextExtremes(tok, 250)
	if !moved || *high != 250 {
		t.Errorf("expected new high 250, got %v (moved=%v)", *high, moved)
	}
	if *low != 50 {
		t.Errorf("low must stay 50, got %v", *low)
	}

	// A new low leaves the high alone.
	high, low, moved = nextExtremes(tok, 10)
	if !moved || *low != 10 {
		t.Errorf("expected new low 10, got %v (moved=%v)", *low, moved)
	}
	if *high != 200 {
		t.Errorf("high must stay 200, got %v", *high)
	}
}

func TestNextExtremes_IgnoresUnknownPrice(t *testing.T) {
	h := 200.0
	tok := &models.Token{Symbol: "BTC", AllTimeHigh: &h}

	if _, _, moved := nextExtremes(tok, 0); moved {
		t.Error("zero price means unknown and must move nothing")
	}
	if _, _, moved := nextExtremes(tok, -1); moved {
		t.Error("negative price must move nothing")
	}
}

func TestRecompute_AveragesPresentExchanges(t *testing.T) {
	snapshot := &models.PriceData{
		Symbol: "BTC",
		Exchanges: models.ExchangePrices{
			MEXC:   &models.ExchangeTicker{Price: 100, PriceChange: 2.5},
			Gateio: &models.ExchangeTicker{Price: 110},
		},
	}
	recompute(snapshot)

	if snapshot.AveragePrice != 105 {
		t.Errorf("expected average 105, got %f", snapshot.AveragePrice)
	}
	if snapshot.Change24h != 2.5 {
		t.Errorf("expected change 2.5 from mexc, got %f", snapshot.Change24h)
	}
}

func TestRecompute_SingleExchange(t *testing.T) {
	snapshot := &models.PriceData{
		Symbol: "BTC",
		Exchanges: models.ExchangePrices{
			Gateio: &models.ExchangeTicker{Price: 110, PriceChange: -1.5},
		},
	}
	recompute(snapshot)

	if snapshot.AveragePrice != 110 {
		t.Errorf("expected average 110, got %f", snapshot.AveragePrice)
	}
	if snapshot.Change24h != -1.5 {
		t.Errorf("expected change -1.5 from gateio, got %f", snapshot.Change24h)
	}
}

package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMEXCTicker24h_MapsStringNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"lastPrice": "65000.5",
			"volume": "1200.4",
			"quoteVolume": "78000000",
			"highPrice": "66000",
			"lowPrice": "64000",
			"openPrice": "64500",
			"priceChangePercent": "0.78",
			"count": 91234,
			"bidPrice": "64999.9",
			"askPrice": "65001.1"
		}`))
	}))
	defer srv.Close()

	client := NewMEXCClient(srv.URL)
	ticker, err := client.Ticker24h(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, ticker)

	assert.Equal(t, 65000.5, ticker.Price)
	assert.Equal(t, 78000000.0, ticker.Volume24h)
	assert.Equal(t, int64(91234), ticker.Count)
	assert.Equal(t, 0.78, ticker.PriceChange)
	assert.Equal(t, 64999.9, ticker.BidPrice)
}

func TestMEXCTicker24h_UnknownSymbolIsNilNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid symbol", http.StatusBadRequest)
	}))
	defer srv.Close()

	ticker, err := NewMEXCClient(srv.URL).Ticker24h(context.Background(), "NOPEUSDT")
	require.NoError(t, err)
	assert.Nil(t, ticker)
}

func TestGateioTicker24h_MapsArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/spot/tickers", r.URL.Path)
		w.Write([]byte(`[{
			"currency_pair": "BTC_USDT",
			"last": "65010.2",
			"lowest_ask": "65011",
			"highest_bid": "65009",
			"change_percentage": "-1.2",
			"base_volume": "900.1",
			"quote_volume": "58000000",
			"high_24h": "66100",
			"low_24h": "63900"
		}]`))
	}))
	defer srv.Close()

	ticker, err := NewGateioClient(srv.URL).Ticker24h(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.NotNil(t, ticker)

	assert.Equal(t, 65010.2, ticker.Price)
	assert.Equal(t, -1.2, ticker.PriceChange)
	assert.Equal(t, 65009.0, ticker.BidPrice)
	assert.Equal(t, 65011.0, ticker.AskPrice)
	assert.True(t, ticker.TradingEnabled)
}

func TestGateioTicker24h_EmptyArrayIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ticker, err := NewGateioClient(srv.URL).Ticker24h(context.Background(), "NOPE_USDT")
	require.NoError(t, err)
	assert.Nil(t, ticker)
}

func TestParseMEXCFrame(t *testing.T) {
	raw := []byte(`{
		"c": "spot@public.deals.v3.api@BTCUSDT",
		"s": "BTCUSDT",
		"d": {"deals": [{"p": "65000.5", "t": 1717000000000}, {"p": "65001", "t": 1717000001000}]}
	}`)

	updates := parseMEXCFrame(raw)
	require.Len(t, updates, 2)
	assert.Equal(t, "mexc", updates[0].Exchange)
	assert.Equal(t, "BTCUSDT", updates[0].Symbol)
	assert.Equal(t, 65000.5, updates[0].Price)

	// Subscription acks carry no symbol and parse to nothing.
	assert.Empty(t, parseMEXCFrame([]byte(`{"id":0,"code":0,"msg":"spot@public.deals.v3.api@BTCUSDT"}`)))
}

func TestParseGateioFrame(t *testing.T) {
	raw := []byte(`{
		"channel": "spot.trades",
		"event": "update",
		"result": {"currency_pair": "BTC_USDT", "price": "65010.2", "create_time": 1717000000}
	}`)

	updates := parseGateioFrame(raw)
	require.Len(t, updates, 1)
	assert.Equal(t, "gateio", updates[0].Exchange)
	assert.Equal(t, "BTC_USDT", updates[0].Symbol)
	assert.Equal(t, 65010.2, updates[0].Price)

	// Subscribe acks are dropped.
	ack := []byte(`{"channel": "spot.trades", "event": "subscribe", "result": {"status": "success"}}`)
	assert.Empty(t, parseGateioFrame(ack))
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cryptodash/internal/models"
)

// MEXCClient reads public spot market data from the MEXC REST API.
type MEXCClient struct {
	BaseURL string
	http    *http.Client
}

func NewMEXCClient(baseURL string) *MEXCClient {
	return &MEXCClient{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// mexcTicker is the /api/v3/ticker/24hr response; numbers arrive as strings.
type mexcTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	OpenPrice          string `json:"openPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	Count              int64  `json:"count"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
}

type mexcExchangeInfo struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// Ticker24h fetches the 24h ticker for a symbol (e.g. "BTCUSDT").
// An unknown symbol returns (nil, nil): price unknown, not an error.
func (c *MEXCClient) Ticker24h(ctx context.Context, symbol string) (*models.ExchangeTicker, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mexc ticker request failed: %s", resp.Status)
	}

	var ticker mexcTicker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return nil, err
	}

	return &models.ExchangeTicker{
		Price:       parseFloat(ticker.LastPrice),
		Volume:      parseFloat(ticker.Volume),
		High24h:     parseFloat(ticker.HighPrice),
		Low24h:      parseFloat(ticker.LowPrice),
		Volume24h:   parseFloat(ticker.QuoteVolume),
		OpenPrice:   parseFloat(ticker.OpenPrice),
		PriceChange: parseFloat(ticker.PriceChangePercent),
		Count:       ticker.Count,
		BidPrice:    parseFloat(ticker.BidPrice),
		AskPrice:    parseFloat(ticker.AskPrice),
	}, nil
}

// SymbolStatus fetches the trading status for a symbol from exchangeInfo.
func (c *MEXCClient) SymbolStatus(ctx context.Context, symbol string) (string, bool, error) {
	url := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", c.BaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("mexc exchangeInfo request failed: %s", resp.Status)
	}

	var info mexcExchangeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", false, err
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return s.Status, s.Status == "ENABLED" || s.Status == "1", nil
		}
	}
	return "", false, nil
}

// parseFloat tolerates the exchanges' habit of sending numbers as strings;
// garbage reads as zero, which downstream treats as "unknown".
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cryptodash/internal/models"
)

// GateioClient reads public spot market data from the Gate.io v4 REST API.
type GateioClient struct {
	BaseURL string
	http    *http.Client
}

func NewGateioClient(baseURL string) *GateioClient {
	return &GateioClient{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// gateioTicker is one element of the /api/v4/spot/tickers response.
type gateioTicker struct {
	CurrencyPair     string `json:"currency_pair"`
	Last             string `json:"last"`
	LowestAsk        string `json:"lowest_ask"`
	HighestBid       string `json:"highest_bid"`
	ChangePercentage string `json:"change_percentage"`
	BaseVolume       string `json:"base_volume"`
	QuoteVolume      string `json:"quote_volume"`
	High24h          string `json:"high_24h"`
	Low24h           string `json:"low_24h"`
}

// Ticker24h fetches the 24h ticker for a currency pair (e.g. "BTC_USDT").
// An unlisted pair returns (nil, nil): price unknown, not an error.
func (c *GateioClient) Ticker24h(ctx context.Context, pair string) (*models.ExchangeTicker, error) {
	url := fmt.Sprintf("%s/api/v4/spot/tickers?currency_pair=%s", c.BaseURL, pair)
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
		return nil, fmt.Errorf("gateio ticker request failed: %s", resp.Status)
	}

	var tickers []gateioTicker
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	t := tickers[0]

	return &models.ExchangeTicker{
		Price:          parseFloat(t.Last),
		Volume:         parseFloat(t.BaseVolume),
		High24h:        parseFloat(t.High24h),
		Low24h:         parseFloat(t.Low24h),
		Volume24h:      parseFloat(t.QuoteVolume),
		PriceChange:    parseFloat(t.ChangePercentage),
		BidPrice:       parseFloat(t.HighestBid),
		AskPrice:       parseFloat(t.LowestAsk),
		Status:         "tradable",
		TradingEnabled: true,
	}, nil
}

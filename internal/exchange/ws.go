package exchange

import (
	"context"
	"encoding/json"
	"time"

	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed is one exchange's live trade stream. Subscribe builds the
// subscription message for a symbol set; Parse extracts zero or more
// normalized updates from a raw frame (heartbeats and acks yield none).
type Feed struct {
	Exchange  string
	URL       string
	Subscribe func(symbols []string) interface{}
	Parse     func(raw []byte) []models.PriceUpdate
}

// Run connects, subscribes and pumps trades into out until the context is
// cancelled. Connection loss triggers a reconnect with exponential backoff.
func (f *Feed) Run(ctx context.Context, symbols []string, out chan<- models.PriceUpdate) {
	for ctx.Err() == nil {
		conn := f.dial(ctx)
		if conn == nil {
			return
		}

		if err := conn.WriteJSON(f.Subscribe(symbols)); err != nil {
			logger.Log.Error("Subscription failed",
				zap.String("exchange", f.Exchange),
				zap.Error(err),
			)
			conn.Close()
			continue
		}
		logger.Log.Info("Subscribed to trade stream",
			zap.String("exchange", f.Exchange),
			zap.Int("symbols", len(symbols)),
		)

		f.readLoop(ctx, conn, out)
		conn.Close()
	}
}

func (f *Feed) dial(ctx context.Context) *websocket.Conn {
	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.URL, nil)
		if err != nil {
			logger.Log.Warn("WebSocket connection failed, retrying",
				zap.String("exchange", f.Exchange),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		logger.Log.Info("Connected to exchange WebSocket", zap.String("exchange", f.Exchange))
		return conn
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.PriceUpdate) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Log.Warn("WebSocket read error",
					zap.String("exchange", f.Exchange),
					zap.Error(err),
				)
			}
			return
		}
		for _, update := range f.Parse(message) {
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

// MEXCFeed streams spot deals from MEXC.
func MEXCFeed(wsURL string) *Feed {
	return &Feed{
		Exchange: "mexc",
		URL:      wsURL,
		Subscribe: func(symbols []string) interface{} {
			params := make([]string, 0, len(symbols))
			for _, s := range symbols {
				params = append(params, "spot@public.deals.v3.api@"+s)
			}
			return map[string]interface{}{
				"method": "SUBSCRIPTION",
				"params": params,
			}
		},
		Parse: parseMEXCFrame,
	}
}

type mexcDealsFrame struct {
	Symbol string `json:"s"`
	Data   struct {
		Deals []struct {
			Price string `json:"p"`
			Time  int64  `json:"t"`
		} `json:"deals"`
	} `json:"d"`
}

func parseMEXCFrame(raw []byte) []models.PriceUpdate {
	var frame mexcDealsFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Symbol == "" {
		return nil
	}
	var updates []models.PriceUpdate
	for _, deal := range frame.Data.Deals {
		price := parseFloat(deal.Price)
		if price == 0 {
			continue
		}
		updates = append(updates, models.PriceUpdate{
			Exchange:  "mexc",
			Symbol:    frame.Symbol,
			Price:     price,
			Timestamp: time.UnixMilli(deal.Time).UTC().Format(time.RFC3339),
		})
	}
	return updates
}

// GateioFeed streams spot trades from Gate.io.
func GateioFeed(wsURL string) *Feed {
	return &Feed{
		Exchange: "gateio",
		URL:      wsURL,
		Subscribe: func(symbols []string) interface{} {
			return map[string]interface{}{
				"time":    time.Now().Unix(),
				"channel": "spot.trades",
				"event":   "subscribe",
				"payload": symbols,
			}
		},
		Parse: parseGateioFrame,
	}
}

type gateioTradeFrame struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  struct {
		CurrencyPair string `json:"currency_pair"`
		Price        string `json:"price"`
		CreateTime   int64  `json:"create_time"`
	} `json:"result"`
}

func parseGateioFrame(raw []byte) []models.PriceUpdate {
	var frame gateioTradeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil
	}
	if frame.Channel != "spot.trades" || frame.Event != "update" || frame.Result.CurrencyPair == "" {
		return nil
	}
	price := parseFloat(frame.Result.Price)
	if price == 0 {
		return nil
	}
	return []models.PriceUpdate{{
		Exchange:  "gateio",
		Symbol:    frame.Result.CurrencyPair,
		Price:     price,
		Timestamp: time.Unix(frame.Result.CreateTime, 0).UTC().Format(time.RFC3339),
	}}
}

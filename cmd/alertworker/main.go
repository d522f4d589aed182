package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"strings"
	"time"

	"cryptodash/internal/alerts"
	"cryptodash/internal/cache"
	"cryptodash/internal/config"
	"cryptodash/internal/database"
	"cryptodash/internal/exchange"
	"cryptodash/internal/handlers"
	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	priceUpdatesConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "price_updates_consumed_total",
		Help: "Total number of price updates consumed from Kafka",
	})
	alertsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_evaluated_total",
		Help: "Total number of alert evaluations",
	})
	alertsTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Total number of alerts fired",
	})
	alertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "alerts_suppressed_total",
		Help: "Total number of alert firings suppressed by cooldown",
	})
)

func init() {
	prometheus.MustRegister(priceUpdatesConsumed, alertsEvaluated, alertsTriggered, alertsSuppressed)
}

// worker holds the per-symbol snapshot state. Everything runs on the
// single consumer goroutine: evaluation passes for a symbol never
// overlap, so the cooldown read-check-update stays race free without locks.
type worker struct {
	snapshots  map[string]*models.PriceData
	lastEnrich map[string]time.Time
	mexc       *exchange.MEXCClient
	gateio     *exchange.GateioClient
}

func main() {
	configPath := flag.String("config", ".", "Directory containing config.yaml")
	metricsPort := flag.String("metrics-port", "9091", "Port for the Prometheus metrics endpoint")
	flag.Parse()

	logger.InitLogger()
	cfg := config.LoadConfig(*configPath)

	cache.InitRedis(cfg.Redis.Addr)

	if err := database.InitDB(cfg.Database.URL); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+*metricsPort, mux); err != nil {
			logger.Log.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
		"group.id":          cfg.Kafka.GroupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.Kafka.Topic, nil); err != nil {
		logger.Log.Fatal("Failed to subscribe to Kafka topic", zap.Error(err))
	}

	w := &worker{
		snapshots:  make(map[string]*models.PriceData),
		lastEnrich: make(map[string]time.Time),
		mexc:       exchange.NewMEXCClient(cfg.Exchange.MEXCBaseURL),
		gateio:     exchange.NewGateioClient(cfg.Exchange.GateioBaseURL),
	}

	logger.Log.Info("Alert worker listening for price updates",
		zap.String("topic", cfg.Kafka.Topic),
	)

	for {
		msg, err := consumer.ReadMessage(-1)
		if err != nil {
			logger.Log.Error("Kafka consumer error", zap.Error(err))
			continue
		}

		var update models.PriceUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			logger.Log.Error("Error parsing price update", zap.Error(err))
			continue
		}
		priceUpdatesConsumed.Inc()

		w.processPriceUpdate(context.Background(), update)
	}
}

// processPriceUpdate folds one trade into the symbol's snapshot, publishes
// the snapshot for the API, and runs every active alert for that symbol
// through the condition engine.
func (w *worker) processPriceUpdate(ctx context.Context, update models.PriceUpdate) {
	base := baseSymbol(update.Symbol)
	if base == "" {
		return
	}

	snapshot := w.applyUpdate(ctx, base, update)

	if err := cache.SetPriceSnapshot(ctx, snapshot); err != nil {
		logger.Log.Warn("Failed to publish price snapshot",
			zap.String("symbol", base),
			zap.Error(err),
		)
	}

	token, err := database.GetTokenBySymbol(ctx, base)
	if err != nil {
		logger.Log.Warn("Price update for untracked symbol",
			zap.String("symbol", base),
			zap.Error(err),
		)
		return
	}

	if high, low, moved := nextExtremes(token, snapshot.AveragePrice); moved {
		if err := database.UpdateTokenExtremes(ctx, token.Symbol, high, low); err != nil {
			logger.Log.Error("Failed to update token extremes",
				zap.String("symbol", base),
				zap.Error(err),
			)
		} else {
			// The ATH-relative alerts below must see the new extremes.
			token.AllTimeHigh = high
			token.AllTimeLow = low
		}
	}

	activeAlerts, err := database.GetActiveAlertsBySymbol(ctx, base)
	if err != nil {
		logger.Log.Error("Failed to fetch alerts",
			zap.String("symbol", base),
			zap.Error(err),
		)
		return
	}

	now := time.Now()
	for _, alert := range activeAlerts {
		alertsEvaluated.Inc()
		outcome := alerts.Check(alert, token, snapshot, now)

		if outcome.Suppressed {
			alertsSuppressed.Inc()
			logger.Log.Debug("Alert suppressed by cooldown",
				zap.String("alert_id", alert.ID),
				zap.String("symbol", base),
			)
			continue
		}
		if !outcome.Fired {
			continue
		}

		alerts.Commit(alert, now)
		if err := database.CommitTrigger(ctx, alert); err != nil {
			logger.Log.Error("Failed to persist trigger",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		alertsTriggered.Inc()

		handlers.BroadcastTrigger(models.TriggerEvent{
			AlertID:     alert.ID,
			TokenSymbol: alert.TokenSymbol,
			Message:     alert.Message,
			Timestamp:   now,
		})

		logger.Log.Info("Alert fired",
			zap.String("alert_id", alert.ID),
			zap.String("symbol", base),
			zap.String("type", string(alert.Type)),
			zap.Int("trigger_count", alert.TriggerCount),
		)
	}
}

// enrichInterval bounds how often the REST tickers are refetched per symbol.
const enrichInterval = 30 * time.Second

// applyUpdate folds a trade price into the snapshot and periodically
// refreshes the full 24h tickers from both exchanges.
func (w *worker) applyUpdate(ctx context.Context, base string, update models.PriceUpdate) *models.PriceData {
	snapshot := w.snapshots[base]
	if snapshot == nil {
		snapshot = &models.PriceData{Symbol: base}
		w.snapshots[base] = snapshot
	}

	if time.Since(w.lastEnrich[base]) > enrichInterval {
		w.enrich(ctx, base, snapshot)
		w.lastEnrich[base] = time.Now()
	}

	switch update.Exchange {
	case "mexc":
		if snapshot.Exchanges.MEXC == nil {
			snapshot.Exchanges.MEXC = &models.ExchangeTicker{}
		}
		snapshot.Exchanges.MEXC.Price = update.Price
	case "gateio":
		if snapshot.Exchanges.Gateio == nil {
			snapshot.Exchanges.Gateio = &models.ExchangeTicker{}
		}
		snapshot.Exchanges.Gateio.Price = update.Price
	}

	snapshot.Timestamp = time.Now()
	recompute(snapshot)
	return snapshot
}

// enrich pulls the 24h tickers so volume/high/low/status fields are
// populated, not just the last trade price.
func (w *worker) enrich(ctx context.Context, base string, snapshot *models.PriceData) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if ticker, err := w.mexc.Ticker24h(ctx, base+"USDT"); err != nil {
		logger.Log.Warn("MEXC ticker refresh failed",
			zap.String("symbol", base),
			zap.Error(err),
		)
	} else if ticker != nil {
		status, enabled, err := w.mexc.SymbolStatus(ctx, base+"USDT")
		if err == nil {
			ticker.Status = status
			ticker.TradingEnabled = enabled
		}
		snapshot.Exchanges.MEXC = ticker
	}

	if ticker, err := w.gateio.Ticker24h(ctx, base+"_USDT"); err != nil {
		logger.Log.Warn("Gateio ticker refresh failed",
			zap.String("symbol", base),
			zap.Error(err),
		)
	} else if ticker != nil {
		snapshot.Exchanges.Gateio = ticker
	}
}

// recompute refreshes the derived fields from the per-exchange tickers.
func recompute(snapshot *models.PriceData) {
	var sum float64
	var n int
	if t := snapshot.Exchanges.MEXC; t != nil && t.Price > 0 {
		sum += t.Price
		n++
	}
	if t := snapshot.Exchanges.Gateio; t != nil && t.Price > 0 {
		sum += t.Price
		n++
	}
	if n > 0 {
		snapshot.AveragePrice = sum / float64(n)
	}

	if t := snapshot.Exchanges.MEXC; t != nil && t.PriceChange != 0 {
		snapshot.Change24h = t.PriceChange
	} else if t := snapshot.Exchanges.Gateio; t != nil {
		snapshot.Change24h = t.PriceChange
	}
}

// nextExtremes folds an observed average price into a token's all-time
// high/low. The extremes stay nil until the first real price arrives;
// a zero price means "unknown" and moves nothing.
func nextExtremes(tok *models.Token, price float64) (high, low *float64, moved bool) {
	high, low = tok.AllTimeHigh, tok.AllTimeLow
	if price <= 0 {
		return high, low, false
	}
	if high == nil || price > *high {
		p := price
		high = &p
		moved = true
	}
	if low == nil || price < *low {
		p := price
		low = &p
		moved = true
	}
	return high, low, moved
}

// baseSymbol strips the quote-currency suffix from an exchange pair name.
func baseSymbol(pair string) string {
	pair = strings.ToUpper(pair)
	pair = strings.TrimSuffix(pair, "_USDT")
	return strings.TrimSuffix(pair, "USDT")
}

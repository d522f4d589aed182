package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"cryptodash/internal/cache"
	"cryptodash/internal/config"
	"cryptodash/internal/database"
	"cryptodash/internal/handlers"
	"cryptodash/internal/logger"
	"cryptodash/internal/scraper"
	"cryptodash/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", ".", "Directory containing config.yaml")
	port := flag.String("port", "", "Port for the dashboard API (overrides config)")
	instance := flag.String("instance", "", "Instance ID for this server (overrides config)")
	flag.Parse()

	logger.InitLogger()
	cfg := config.LoadConfig(*configPath)
	if *port == "" {
		*port = cfg.Server.Port
	}
	if *instance == "" {
		*instance = cfg.Server.Instance
	}

	// Initialize Redis
	cache.InitRedis(cfg.Redis.Addr)

	// Initialize database connection
	if err := database.InitDB(cfg.Database.URL); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Initialize SSE system
	handlers.InitSSE()

	shutdown, err := tracing.InitTracer()
	if err != nil {
		logger.Log.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx := context.Background()
		if err := shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer", zap.Error(err))
		}
	}()

	// Exchange-listing scraper, toggled at runtime via /scraper
	listingScraper := scraper.New(cfg.Scraper.SourceURL, time.Duration(cfg.Scraper.IntervalMinutes)*time.Minute)
	if cfg.Scraper.Enabled {
		listingScraper.Start()
	}

	// Setup routes
	mux := http.NewServeMux()

	// SSE endpoint for real-time alert triggers
	mux.HandleFunc("/alerts/stream", handlers.StreamAlertsHandler)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		handlers.AlertsHandler(w, r, *instance)
	})
	mux.HandleFunc("/alerts/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/alerts/") {
			handlers.AlertsHandler(w, r, *instance)
		} else {
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/tokens", func(w http.ResponseWriter, r *http.Request) {
		handlers.TokensHandler(w, r, *instance)
	})
	mux.HandleFunc("/tokens/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/tokens/") {
			handlers.TokensHandler(w, r, *instance)
		} else {
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/scraper", func(w http.ResponseWriter, r *http.Request) {
		handlers.ScraperHandler(w, r, listingScraper, *instance)
	})

	handler := handlers.RateLimit(20, mux)

	logger.Log.Info("Dashboard API starting on", zap.String("port", *port))
	log.Fatal(http.ListenAndServe(":"+*port, handler))
}

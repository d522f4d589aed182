package handlers

import (
	"encoding/json"
	"net/http"

	"cryptodash/internal/logger"
	"cryptodash/internal/scraper"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type ScraperToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ScraperHandler exposes the listing scraper's on/off toggle and status.
// GET returns the current state; POST flips it.
func ScraperHandler(w http.ResponseWriter, r *http.Request, s *scraper.Scraper, instance string) {
	_, span := otel.Tracer(tracerName).Start(r.Context(), "ScraperHandler")
	defer span.End()

	switch r.Method {
	case http.MethodGet:
		response := Response{
			Message: "Scraper status retrieved successfully",
			Data:    s.Status(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodPost:
		var req ScraperToggleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Error("Failed to parse request body", zap.Error(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.Enabled {
			s.Start()
		} else {
			s.Stop()
		}
		logger.Log.Info("Scraper toggled",
			zap.Bool("enabled", req.Enabled),
			zap.String("instance", instance),
		)

		response := Response{
			Message: "Scraper toggled successfully",
			Data:    s.Status(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

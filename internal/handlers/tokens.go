package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cryptodash/internal/cache"
	"cryptodash/internal/database"
	"cryptodash/internal/logger"
	"cryptodash/internal/models"
	"cryptodash/internal/query"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type CreateTokenRequest struct {
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Exchanges []string `json:"exchanges"`
}

type DeleteTokenRequest struct {
	Reason string `json:"reason"`
}

// TokenWithPrice is one dashboard table row: the token plus its latest
// price snapshot, which may be absent (price unknown).
type TokenWithPrice struct {
	Token *models.Token     `json:"token"`
	Price *models.PriceData `json:"price,omitempty"`
}

// TokensHandler routes all token operations based on path and method.
// URL patterns: /tokens, /tokens/{symbol}, /tokens/deleted,
// /tokens/deleted/{id}/restore
func TokensHandler(w http.ResponseWriter, r *http.Request, instance string) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	// /tokens
	if len(pathParts) == 1 {
		switch r.Method {
		case http.MethodGet:
			BrowseTokensHandler(w, r, instance)
		case http.MethodPost:
			CreateTokenHandler(w, r, instance)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// /tokens/deleted and /tokens/deleted/{id}/restore
	if pathParts[1] == "deleted" {
		switch {
		case len(pathParts) == 2 && r.Method == http.MethodGet:
			ListDeletedTokensHandler(w, r, instance)
		case len(pathParts) == 4 && pathParts[3] == "restore" && r.Method == http.MethodPost:
			RestoreTokenHandler(w, r, pathParts[2], instance)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// /tokens/{symbol}
	symbol := pathParts[1]
	switch r.Method {
	case http.MethodGet:
		GetTokenHandler(w, r, symbol, instance)
	case http.MethodDelete:
		DeleteTokenHandler(w, r, symbol, instance)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// BrowseTokensHandler lists tracked tokens with their latest price
// snapshots, filtered by the optional ?search= query string.
func BrowseTokensHandler(w http.ResponseWriter, r *http.Request, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "BrowseTokensHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	cacheKey := generateCacheKey(r, "browse_tokens_")

	cached, err := cache.GetCache(ctx, cacheKey, "/tokens", instance)
	if err == nil && cached != "" {
		logger.Log.Info("Cache hit for /tokens",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	tokens, err := database.GetAllTokens(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch tokens",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to fetch tokens", http.StatusInternalServerError)
		return
	}

	symbols := make([]string, 0, len(tokens))
	for _, token := range tokens {
		symbols = append(symbols, token.Symbol)
	}
	prices, err := cache.GetPriceSnapshots(ctx, symbols)
	if err != nil {
		logger.Log.Warn("Failed to fetch price snapshots",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		// Tokens are still served; rows just show price unknown.
		prices = map[string]*models.PriceData{}
	}

	search := r.URL.Query().Get("search")
	filtered := query.FilterTokens(search, tokens, prices)

	rows := make([]TokenWithPrice, 0, len(filtered))
	for _, token := range filtered {
		rows = append(rows, TokenWithPrice{Token: token, Price: prices[token.Symbol]})
	}

	response := Response{
		Message: "Tokens retrieved successfully",
		Data:    rows,
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		return
	}

	// Short TTL: rows carry live prices, staleness has to stay bounded.
	if cacheErr := cache.SetCache(ctx, cacheKey, string(respBytes), 10*time.Second, "/tokens", instance); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// CreateTokenHandler adds a token to the tracked set
func CreateTokenHandler(w http.ResponseWriter, r *http.Request, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "CreateTokenHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Symbol) == "" {
		http.Error(w, "Missing required field: symbol", http.StatusBadRequest)
		return
	}

	token := &models.Token{
		ID:        uuid.New().String(),
		Symbol:    strings.ToUpper(req.Symbol),
		Name:      req.Name,
		Exchanges: req.Exchanges,
		Added:     time.Now(),
	}

	if err := database.CreateToken(ctx, token); err != nil {
		logger.Log.Error("Failed to create token",
			zap.String("trace_id", traceID),
			zap.String("symbol", token.Symbol),
			zap.Error(err),
		)
		if errors.Is(err, database.ErrSymbolExists) {
			http.Error(w, "Symbol already tracked", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	cache.InvalidateByPrefix(ctx, "browse_tokens_", "/tokens", instance)

	response := Response{
		Message: "Token created successfully",
		Data:    token,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// GetTokenHandler retrieves one token with its latest price snapshot
func GetTokenHandler(w http.ResponseWriter, r *http.Request, symbol string, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "GetTokenHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	token, err := database.GetTokenBySymbol(ctx, symbol)
	if err != nil {
		logger.Log.Error("Failed to fetch token",
			zap.String("trace_id", traceID),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		http.Error(w, "Token not found", http.StatusNotFound)
		return
	}

	price, err := cache.GetPriceSnapshot(ctx, token.Symbol)
	if err != nil {
		logger.Log.Warn("Failed to fetch price snapshot",
			zap.String("trace_id", traceID),
			zap.String("symbol", token.Symbol),
			zap.Error(err),
		)
	}

	response := Response{
		Message: "Token retrieved successfully",
		Data:    TokenWithPrice{Token: token, Price: price},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// DeleteTokenHandler removes a token; the reason is mandatory and lands
// in the audit trail.
func DeleteTokenHandler(w http.ResponseWriter, r *http.Request, symbol string, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "DeleteTokenHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	var req DeleteTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	deleted, err := database.DeleteToken(ctx, symbol, req.Reason)
	if err != nil {
		logger.Log.Error("Failed to delete token",
			zap.String("trace_id", traceID),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, models.ErrMissingReason):
			http.Error(w, "Missing required field: reason", http.StatusBadRequest)
		case errors.Is(err, database.ErrTokenNotFound):
			http.Error(w, "Token not found", http.StatusNotFound)
		default:
			http.Error(w, "Failed to delete token", http.StatusInternalServerError)
		}
		return
	}

	cache.InvalidateByPrefix(ctx, "browse_tokens_", "/tokens", instance)

	response := Response{
		Message: "Token deleted successfully",
		Data:    deleted,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListDeletedTokensHandler returns the deletion audit trail
func ListDeletedTokensHandler(w http.ResponseWriter, r *http.Request, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ListDeletedTokensHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	deleted, err := database.ListDeletedTokens(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch deleted tokens",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to fetch deleted tokens", http.StatusInternalServerError)
		return
	}

	response := Response{
		Message: "Deleted tokens retrieved successfully",
		Data:    deleted,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// RestoreTokenHandler re-creates a token from its audit record. The new
// token gets a fresh id; the audit record is left untouched.
func RestoreTokenHandler(w http.ResponseWriter, r *http.Request, deletedID string, instance string) {
	ctx := r.Context()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "RestoreTokenHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	token, err := database.RestoreToken(ctx, deletedID)
	if err != nil {
		logger.Log.Error("Failed to restore token",
			zap.String("trace_id", traceID),
			zap.String("deleted_id", deletedID),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, database.ErrTokenNotFound):
			http.Error(w, "Deleted token not found", http.StatusNotFound)
		case errors.Is(err, database.ErrSymbolExists):
			http.Error(w, "Symbol already tracked", http.StatusConflict)
		default:
			http.Error(w, "Failed to restore token", http.StatusInternalServerError)
		}
		return
	}

	cache.InvalidateByPrefix(ctx, "browse_tokens_", "/tokens", instance)

	response := Response{
		Message: "Token restored successfully",
		Data:    token,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

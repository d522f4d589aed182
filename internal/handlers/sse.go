// handlers/sse.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cryptodash/internal/cache"
	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"go.uber.org/zap"
)

// SSE clients
var (
	clients = make(map[chan models.TriggerEvent]bool)
	mu      sync.Mutex
)

// Redis channel name for alert trigger events
const triggersChannel = "alert_triggers"

var triggerSubscriber *cache.RedisSubscriber

// InitSSE initializes the SSE system
func InitSSE() {
	var err error
	triggerSubscriber, err = cache.NewRedisSubscriber(triggersChannel)
	if err != nil {
		logger.Log.Error("Failed to create Redis subscriber", zap.Error(err))
		return
	}

	// Start listening for published trigger events
	go listenForTriggers()
}

// listenForTriggers continuously listens for trigger events from Redis and
// broadcasts them to connected clients.
func listenForTriggers() {
	logger.Log.Info("Starting to listen for alert triggers from Redis")

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		msg, err := triggerSubscriber.ReceiveMessage(ctx)
		cancel()

		if err != nil {
			logger.Log.Error("Error receiving message from Redis", zap.Error(err))
			time.Sleep(1 * time.Second) // Wait before retry
			continue
		}

		var event models.TriggerEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Log.Error("Error unmarshaling trigger event", zap.Error(err))
			continue
		}

		logger.Log.Info("Received trigger event from Redis",
			zap.String("alert_id", event.AlertID),
			zap.String("symbol", event.TokenSymbol))

		broadcastToClients(event)
	}
}

// StreamAlertsHandler handles SSE connections
func StreamAlertsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan models.TriggerEvent, 10)

	mu.Lock()
	clients[clientChan] = true
	clientCount := len(clients)
	mu.Unlock()

	logger.Log.Info("New SSE client connected", zap.Int("total_clients", clientCount))

	defer func() {
		mu.Lock()
		delete(clients, clientChan)
		clientCount := len(clients)
		mu.Unlock()
		logger.Log.Info("SSE client disconnected", zap.Int("total_clients", clientCount))
	}()

	// Send heartbeats to keep connection alive
	go func() {
		heartbeatTicker := time.NewTicker(15 * time.Second)
		defer heartbeatTicker.Stop()

		for {
			select {
			case <-heartbeatTicker.C:
				select {
				case clientChan <- models.TriggerEvent{Timestamp: time.Now()}:
					// Heartbeat sent successfully
				default:
					// Channel is blocked or closed, exit goroutine
					return
				}
			case <-r.Context().Done():
				// Request context done, exit goroutine
				return
			}
		}
	}()

	// Stream events until the client goes away
	for {
		select {
		case event := <-clientChan:
			eventData, err := json.Marshal(event)
			if err != nil {
				logger.Log.Error("Failed to marshal trigger event", zap.Error(err))
				continue
			}

			fmt.Fprintf(w, "data: %s\n\n", eventData)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// broadcastToClients sends a trigger event to all connected SSE clients
func broadcastToClients(event models.TriggerEvent) {
	mu.Lock()
	defer mu.Unlock()

	logger.Log.Info("Broadcasting trigger to clients",
		zap.Int("client_count", len(clients)),
		zap.String("symbol", event.TokenSymbol))

	if len(clients) == 0 {
		logger.Log.Warn("No SSE clients available! Skipping trigger broadcast.")
		return
	}

	for clientChan := range clients {
		select {
		case clientChan <- event:
			// Event sent successfully
		default:
			logger.Log.Warn("Trigger dropped due to slow client")
		}
	}
}

// BroadcastTrigger publishes a trigger event to Redis for distribution
func BroadcastTrigger(event models.TriggerEvent) {
	logger.Log.Info("Publishing trigger event to Redis",
		zap.String("alert_id", event.AlertID),
		zap.String("symbol", event.TokenSymbol))

	eventJSON, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal trigger event", zap.Error(err))
		return
	}

	// Publish to Redis channel
	err = cache.PublishMessage(triggersChannel, string(eventJSON))
	if err != nil {
		logger.Log.Error("Failed to publish trigger event to Redis", zap.Error(err))
		return
	}

	logger.Log.Info("Trigger event published to Redis successfully",
		zap.String("alert_id", event.AlertID))
}

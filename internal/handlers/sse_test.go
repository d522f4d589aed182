package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/logger"
	"cryptodash/internal/models"
)

func connectedClients() int {
	mu.Lock()
	defer mu.Unlock()
	return len(clients)
}

// syncRecorder guards the response body so the test can poll it while the
// handler goroutine is still writing.
type syncRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (r *syncRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func TestStreamAlertsHandler_DeregistersOnDisconnect(t *testing.T) {
	logger.InitLogger()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/alerts/stream", nil).WithContext(ctx)
	rec := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		StreamAlertsHandler(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return connectedClients() == 1
	}, time.Second, 10*time.Millisecond, "client should register")

	broadcastToClients(models.TriggerEvent{
		AlertID:     "a-1",
		TokenSymbol: "BTC",
		Message:     "fired",
		Timestamp:   time.Now(),
	})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), `"alert_id":"a-1"`)
	}, time.Second, 10*time.Millisecond, "event should reach the stream")

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler must return once the client context is done")
	}

	assert.Equal(t, 0, connectedClients(), "disconnected client must be deregistered")
}

package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/models"
)

func TestBuildExchangeData_FirstSnapshotHasNoChanges(t *testing.T) {
	now := time.Now()
	data := BuildExchangeData(nil, []string{"gateio", "mexc"}, now)

	require.NotNil(t, data)
	assert.Equal(t, 2, data.TotalExchanges)
	assert.Equal(t, []string{"gateio", "mexc"}, data.Exchanges)
	assert.Empty(t, data.NewExchanges24h)
	assert.Empty(t, data.RemovedExchanges24h)
	assert.Equal(t, now, data.LastUpdated)
}

func TestBuildExchangeData_DiffsAgainstPrevious(t *testing.T) {
	now := time.Now()
	prev := &models.ExchangeData{
		TotalExchanges: 3,
		Exchanges:      []string{"binance", "gateio", "mexc"},
		LastUpdated:    now.Add(-1 * time.Hour),
	}

	data := BuildExchangeData(prev, []string{"gateio", "kraken", "mexc"}, now)

	assert.Equal(t, 3, data.TotalExchanges)
	assert.Equal(t, []string{"kraken"}, data.NewExchanges24h)
	assert.Equal(t, []string{"binance"}, data.RemovedExchanges24h)
}

func TestBuildExchangeData_CarriesChangesWithinWindow(t *testing.T) {
	now := time.Now()
	// An hour ago kraken was detected as new; this pass sees no further
	// membership change, but kraken must stay visible to the alerts.
	prev := &models.ExchangeData{
		TotalExchanges:      3,
		Exchanges:           []string{"gateio", "kraken", "mexc"},
		NewExchanges24h:     []string{"kraken"},
		RemovedExchanges24h: []string{"binance"},
		LastUpdated:         now.Add(-1 * time.Hour),
	}

	data := BuildExchangeData(prev, []string{"gateio", "kraken", "mexc"}, now)

	assert.Equal(t, []string{"kraken"}, data.NewExchanges24h)
	assert.Equal(t, []string{"binance"}, data.RemovedExchanges24h)
}

func TestBuildExchangeData_WindowExpiryDropsOldChanges(t *testing.T) {
	now := time.Now()
	prev := &models.ExchangeData{
		TotalExchanges:      3,
		Exchanges:           []string{"gateio", "kraken", "mexc"},
		NewExchanges24h:     []string{"kraken"},
		RemovedExchanges24h: []string{"binance"},
		LastUpdated:         now.Add(-25 * time.Hour),
	}

	data := BuildExchangeData(prev, []string{"gateio", "kraken", "mexc"}, now)

	assert.Empty(t, data.NewExchanges24h)
	assert.Empty(t, data.RemovedExchanges24h)
}

func TestBuildExchangeData_RelistingCancelsRemoval(t *testing.T) {
	now := time.Now()
	// binance was flagged as removed earlier in the window but is listed
	// again now; the stale removal entry must not carry over.
	prev := &models.ExchangeData{
		TotalExchanges:      2,
		Exchanges:           []string{"gateio", "mexc"},
		RemovedExchanges24h: []string{"binance"},
		LastUpdated:         now.Add(-2 * time.Hour),
	}

	data := BuildExchangeData(prev, []string{"binance", "gateio", "mexc"}, now)

	assert.Equal(t, []string{"binance"}, data.NewExchanges24h)
	assert.Empty(t, data.RemovedExchanges24h)
}

func TestScraperToggle(t *testing.T) {
	s := New("http://localhost:0", time.Hour)

	st := s.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.LastRun)
	assert.Equal(t, "1h0m0s", st.Interval)

	// Stop before start is a no-op.
	s.Stop()
	assert.False(t, s.Status().Running)
}

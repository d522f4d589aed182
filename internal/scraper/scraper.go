package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptodash/internal/database"
	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"go.uber.org/zap"
)

// Scraper periodically discovers which exchanges list each tracked token
// and persists the snapshot. It is off by default and toggled at runtime
// through the dashboard API.
type Scraper struct {
	SourceURL string
	Interval  time.Duration

	http *http.Client

	mu      sync.Mutex
	running bool
	lastRun time.Time
	cancel  context.CancelFunc
}

// Status is the toggle state reported to the dashboard.
type Status struct {
	Running  bool       `json:"running"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	Interval string     `json:"interval"`
}

func New(sourceURL string, interval time.Duration) *Scraper {
	return &Scraper{
		SourceURL: sourceURL,
		Interval:  interval,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Start begins the periodic scrape loop. Starting an already-running
// scraper is a no-op.
func (s *Scraper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	go s.loop(ctx)
	logger.Log.Info("Exchange scraper started", zap.Duration("interval", s.Interval))
}

// Stop halts the loop. Stopping a stopped scraper is a no-op.
func (s *Scraper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	logger.Log.Info("Exchange scraper stopped")
}

func (s *Scraper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, Interval: s.Interval.String()}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		st.LastRun = &t
	}
	return st
}

func (s *Scraper) loop(ctx context.Context) {
	// First pass runs immediately so a fresh toggle gives fast feedback.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scraper) runOnce(ctx context.Context) {
	tokens, err := database.GetAllTokens(ctx)
	if err != nil {
		logger.Log.Error("Scraper failed to list tokens", zap.Error(err))
		return
	}

	for _, token := range tokens {
		if ctx.Err() != nil {
			return
		}
		listings, err := s.fetchListings(ctx, token.Symbol)
		if err != nil {
			logger.Log.Warn("Scraper fetch failed",
				zap.String("symbol", token.Symbol),
				zap.Error(err),
			)
			continue
		}

		snapshot := BuildExchangeData(token.ExchangeData, listings, time.Now())
		if err := database.UpdateExchangeData(ctx, token.Symbol, snapshot); err != nil {
			logger.Log.Error("Scraper failed to persist snapshot",
				zap.String("symbol", token.Symbol),
				zap.Error(err),
			)
			continue
		}

		logger.Log.Info("Exchange snapshot updated",
			zap.String("symbol", token.Symbol),
			zap.Int("total", snapshot.TotalExchanges),
			zap.Int("new_24h", len(snapshot.NewExchanges24h)),
			zap.Int("removed_24h", len(snapshot.RemovedExchanges24h)),
		)
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}

// listingsResponse is the shape of the third-party listings source:
// one ticker entry per exchange market the symbol trades on.
type listingsResponse struct {
	Tickers []struct {
		Market struct {
			Identifier string `json:"identifier"`
		} `json:"market"`
	} `json:"tickers"`
}

func (s *Scraper) fetchListings(ctx context.Context, symbol string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/tickers", s.SourceURL, strings.ToLower(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUserAgent())

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listings request failed: %s", resp.Status)
	}

	var body listingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var exchanges []string
	for _, t := range body.Tickers {
		id := strings.ToLower(t.Market.Identifier)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		exchanges = append(exchanges, id)
	}
	sort.Strings(exchanges)
	return exchanges, nil
}

// BuildExchangeData diffs a fresh listing set against the previous
// snapshot. New/removed lists carry over within the 24h window so a
// follow-up scrape does not wipe a change the alerts have not seen yet.
func BuildExchangeData(prev *models.ExchangeData, current []string, now time.Time) *models.ExchangeData {
	data := &models.ExchangeData{
		TotalExchanges: len(current),
		Exchanges:      current,
		LastUpdated:    now,
	}
	if prev == nil {
		return data
	}

	prevSet := make(map[string]bool, len(prev.Exchanges))
	for _, ex := range prev.Exchanges {
		prevSet[strings.ToLower(ex)] = true
	}
	curSet := make(map[string]bool, len(current))
	for _, ex := range current {
		curSet[strings.ToLower(ex)] = true
	}

	var added, removed []string
	for _, ex := range current {
		if !prevSet[strings.ToLower(ex)] {
			added = append(added, ex)
		}
	}
	for _, ex := range prev.Exchanges {
		if !curSet[strings.ToLower(ex)] {
			removed = append(removed, ex)
		}
	}

	withinWindow := now.Sub(prev.LastUpdated) < 24*time.Hour
	if withinWindow {
		added = mergeUnique(prev.NewExchanges24h, added, curSet, true)
		removed = mergeUnique(prev.RemovedExchanges24h, removed, curSet, false)
	}
	data.NewExchanges24h = added
	data.RemovedExchanges24h = removed
	return data
}

// mergeUnique folds the previous 24h change list into the fresh one,
// dropping stale entries that no longer agree with current membership.
func mergeUnique(prev, fresh []string, current map[string]bool, mustBePresent bool) []string {
	seen := make(map[string]bool, len(fresh))
	out := append([]string(nil), fresh...)
	for _, ex := range fresh {
		seen[strings.ToLower(ex)] = true
	}
	for _, ex := range prev {
		key := strings.ToLower(ex)
		if seen[key] || current[key] != mustBePresent {
			continue
		}
		seen[key] = true
		out = append(out, ex)
	}
	return out
}

func randomUserAgent() string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.120 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.185 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.120 Safari/537.36 Edg/127.0.2651.105",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.120 Safari/537.36",
	}
	return userAgents[rand.Intn(len(userAgents))]
}

// internal/cache/snapshots.go
package cache

import (
	"context"
	"encoding/json"
	"time"

	"cryptodash/internal/models"

	"github.com/redis/go-redis/v9"
)

const priceSnapshotPrefix = "price_snapshot_"

// Price snapshots go stale fast; anything older than this is treated as
// "price unknown" rather than served.
const priceSnapshotTTL = 2 * time.Minute

// SetPriceSnapshot stores the latest PriceData for a symbol. The alert
// worker writes these on every evaluation tick; the API reads them for
// search filtering and display.
func SetPriceSnapshot(ctx context.Context, price *models.PriceData) error {
	payload, err := json.Marshal(price)
	if err != nil {
		return err
	}
	return RedisClient.Set(ctx, priceSnapshotPrefix+price.Symbol, payload, priceSnapshotTTL).Err()
}

// GetPriceSnapshot returns the latest PriceData for a symbol, or nil when
// none is cached — callers must treat nil as price unknown, not zero.
func GetPriceSnapshot(ctx context.Context, symbol string) (*models.PriceData, error) {
	val, err := RedisClient.Get(ctx, priceSnapshotPrefix+symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var price models.PriceData
	if err := json.Unmarshal([]byte(val), &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// GetPriceSnapshots fetches snapshots for a symbol set, skipping misses.
func GetPriceSnapshots(ctx context.Context, symbols []string) (map[string]*models.PriceData, error) {
	prices := make(map[string]*models.PriceData, len(symbols))
	for _, symbol := range symbols {
		price, err := GetPriceSnapshot(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if price != nil {
			prices[symbol] = price
		}
	}
	return prices, nil
}

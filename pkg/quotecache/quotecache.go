// Package quotecache mirrors freshly persisted quotes into Redis so readers
// and pub/sub subscribers see updates without touching Postgres.
package quotecache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"moverscan/pkg/logger"
	"moverscan/pkg/models"
	"moverscan/pkg/redisclient"
)

const (
	keyPrefix = "movers:latest:"
	channel   = "movers:pubsub"

	// Snapshots go stale once the next window opens; two hours covers the
	// longest gap between cycles.
	snapshotTTL = 2 * time.Hour
)

type Cache struct {
	rdb *redisclient.Client
}

func New(rdb *redisclient.Client) *Cache {
	return &Cache{rdb: rdb}
}

// PublishBatch mirrors one window's quotes into latest-quote hashes and
// announces each on the pub/sub channel. Individual failures are logged and
// skipped; the cache is a convenience layer, not the system of record.
func (c *Cache) PublishBatch(ctx context.Context, window models.Window, quotes []models.Quote) error {
	var lastErr error
	published := 0

	for _, q := range quotes {
		key := keyPrefix + string(window) + ":" + q.Symbol + ":" + q.Source

		if err := c.rdb.HSet(ctx, key, map[string]interface{}{
			"symbol":         q.Symbol,
			"name":           q.Name,
			"price":          q.Price,
			"change":         q.Change,
			"change_percent": q.ChangePercent,
			"volume":         q.Volume.String(),
			"category":       string(q.Category),
			"last_updated":   q.LastUpdated.UnixMilli(),
		}); err != nil {
			logger.Log.Warn("cache hset failed",
				zap.String("key", key), zap.Error(err))
			lastErr = err
			continue
		}
		c.rdb.Expire(ctx, key, snapshotTTL)

		payload, err := q.ToJSON()
		if err != nil {
			lastErr = err
			continue
		}
		if err := c.rdb.Publish(ctx, channel, payload); err != nil {
			logger.Log.Warn("cache publish failed",
				zap.String("symbol", q.Symbol), zap.Error(err))
			lastErr = err
			continue
		}
		published++
	}

	logger.Log.Info("cache updated",
		zap.String("window", string(window)),
		zap.Int("published", published),
		zap.Int("total", len(quotes)))
	return lastErr
}

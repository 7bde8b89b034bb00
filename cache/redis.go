// Package cache keeps recent search reports in Redis so repeated searches
// within a few minutes do not hit the upstream booking systems again.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/scraper"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "search:"

// ReportCache stores merged reports under a key derived from the search.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at addr. Nothing is sent until the first call.
func New(addr, password string, db int, ttl time.Duration) *ReportCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(rdb, ttl)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Key identifies a search independently of the order its facility IDs were
// given in. IDs are normalized first, so "232447" and "rg:232447" share a key.
func Key(facilityIDs []string, start, end availability.Date, nights int) string {
	ids := make([]string, 0, len(facilityIDs))
	for _, raw := range facilityIDs {
		if p, id := scraper.ParseProviderID(raw); id != "" {
			ids = append(ids, scraper.QualifiedID(p, id))
		}
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s%s:%s:%s:%d", keyPrefix, strings.Join(ids, ","), start, end, nights)
}

// Get returns the cached report for key. The bool is false on a miss.
func (c *ReportCache) Get(ctx context.Context, key string) (availability.Report, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var report availability.Report
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return report, true, nil
}

// Set stores report under key for the cache TTL.
func (c *ReportCache) Set(ctx context.Context, key string, report availability.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *ReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ReportCache) Close() error {
	return c.client.Close()
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis read-through layer for station views served by the API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/station"
)

// Default TTL values for different cache types
const (
	DefaultStationListTTL  = 5 * time.Second
	DefaultStationStatsTTL = 2 * time.Second
)

// Key prefixes for Redis cache
const (
	KeyStationList  = "airwave:cache:stations"
	KeyStationStats = "airwave:cache:station_stats:" // + station_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StationListTTL  time.Duration
	StationStatsTTL time.Duration

	// DisableOnError turns caching off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		StationListTTL:  DefaultStationListTTL,
		StationStatsTTL: DefaultStationStatsTTL,
		DisableOnError:  true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache or one whose
// Redis is unreachable behaves as a permanent miss.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. An unreachable Redis yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.StationListTTL <= 0 {
		cfg.StationListTTL = DefaultStationListTTL
	}
	if cfg.StationStatsTTL <= 0 {
		cfg.StationStatsTTL = DefaultStationStatsTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// GetStationList retrieves the cached station snapshots.
func (c *Cache) GetStationList(ctx context.Context) ([]station.Snapshot, bool) {
	var stations []station.Snapshot
	found, err := c.get(ctx, KeyStationList, &stations)
	if err != nil || !found {
		return nil, false
	}
	return stations, true
}

// SetStationList caches the station snapshots.
func (c *Cache) SetStationList(ctx context.Context, stations []station.Snapshot) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, KeyStationList, stations, c.config.StationListTTL)
}

// GetStationStats retrieves cached statistics for a station.
func (c *Cache) GetStationStats(ctx context.Context, stationID string) (*station.Stats, bool) {
	var stats station.Stats
	found, err := c.get(ctx, KeyStationStats+stationID, &stats)
	if err != nil || !found {
		return nil, false
	}
	return &stats, true
}

// SetStationStats caches statistics for a station.
func (c *Cache) SetStationStats(ctx context.Context, stationID string, stats station.Stats) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, KeyStationStats+stationID, stats, c.config.StationStatsTTL)
}

// InvalidateStation drops everything cached about a station, including the list.
func (c *Cache) InvalidateStation(ctx context.Context, stationID string) error {
	return c.delete(ctx, KeyStationStats+stationID, KeyStationList)
}

// invalidatingEvents change what the station views show.
var invalidatingEvents = []events.EventType{
	events.EventStationCreated,
	events.EventStationRemoved,
	events.EventStationStatus,
	events.EventStationConfig,
	events.EventNowPlaying,
}

// Watch invalidates cached station views as the bus reports changes, until ctx ends.
func (c *Cache) Watch(ctx context.Context, bus *events.Bus) {
	if !c.IsAvailable() {
		return
	}

	type change struct {
		eventType events.EventType
		payload   events.Payload
	}
	merged := make(chan change, 32)
	var wg sync.WaitGroup
	for _, et := range invalidatingEvents {
		sub := bus.Subscribe(et)
		wg.Add(1)
		go func(et events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer bus.Unsubscribe(et, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case p := <-sub:
					select {
					case merged <- change{et, p}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(et, sub)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case ch := <-merged:
			id, _ := ch.payload["station_id"].(string)
			if id == "" {
				continue
			}
			if err := c.InvalidateStation(ctx, id); err != nil {
				c.logger.Debug().Err(err).Str("station_id", id).Msg("invalidate failed")
			}
		}
	}
}

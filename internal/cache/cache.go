/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for planning inputs
// that change rarely: team rosters and work-hour rules.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/friendsincode/teamslot/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values.
const (
	DefaultTeamMembersTTL = 10 * time.Minute
	DefaultWorkHoursTTL   = 30 * time.Minute
)

// Key prefixes for Redis cache.
const (
	KeyTeamMembers = "teamslot:cache:team_members:" // + team_id
	KeyWorkHours   = "teamslot:cache:work_hours:"   // + team_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TeamMembersTTL time.Duration
	WorkHoursTTL   time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		TeamMembersTTL: DefaultTeamMembersTTL,
		WorkHoursTTL:   DefaultWorkHoursTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache
// is valid and never hits.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache, not an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.TeamMembersTTL <= 0 {
		cfg.TeamMembersTTL = DefaultTeamMembersTTL
	}
	if cfg.WorkHoursTTL <= 0 {
		cfg.WorkHoursTTL = DefaultWorkHoursTTL
	}

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
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
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

func teamKey(prefix string, teamID int64) string {
	return prefix + strconv.FormatInt(teamID, 10)
}

// GetTeamMembers returns the cached member ids of a team.
func (c *Cache) GetTeamMembers(ctx context.Context, teamID int64) ([]int64, bool) {
	var ids []int64
	found, err := c.get(ctx, teamKey(KeyTeamMembers, teamID), &ids)
	if err != nil || !found {
		return nil, false
	}
	return ids, true
}

// SetTeamMembers caches the member ids of a team.
func (c *Cache) SetTeamMembers(ctx context.Context, teamID int64, ids []int64) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, teamKey(KeyTeamMembers, teamID), ids, c.config.TeamMembersTTL)
}

// CachedWorkHour is a cached work-hour rule.
type CachedWorkHour struct {
	UserID    *int64 `json:"user_id,omitempty"`
	DayOfWeek int    `json:"day_of_week"`
	StartMin  int    `json:"start_min"`
	EndMin    int    `json:"end_min"`
}

// GetWorkHours returns the cached work-hour rules of a team.
func (c *Cache) GetWorkHours(ctx context.Context, teamID int64) ([]CachedWorkHour, bool) {
	var rules []CachedWorkHour
	found, err := c.get(ctx, teamKey(KeyWorkHours, teamID), &rules)
	if err != nil || !found {
		return nil, false
	}
	return rules, true
}

// SetWorkHours caches the work-hour rules of a team.
func (c *Cache) SetWorkHours(ctx context.Context, teamID int64, rules []CachedWorkHour) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, teamKey(KeyWorkHours, teamID), rules, c.config.WorkHoursTTL)
}

// InvalidateTeam drops everything cached for a team.
func (c *Cache) InvalidateTeam(ctx context.Context, teamID int64) error {
	return c.delete(ctx, teamKey(KeyTeamMembers, teamID), teamKey(KeyWorkHours, teamID))
}

// WatchInvalidations drops a team's entries whenever a roster change event
// arrives. It returns when ctx is done.
func (c *Cache) WatchInvalidations(ctx context.Context, bus events.Broker) {
	if !c.IsAvailable() || bus == nil {
		return
	}
	sub := bus.Subscribe(events.EventTeamMembersChanged)
	defer bus.Unsubscribe(events.EventTeamMembersChanged, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			teamID, ok := TeamIDFromPayload(payload)
			if !ok {
				continue
			}
			if err := c.InvalidateTeam(ctx, teamID); err != nil {
				c.logger.Debug().Err(err).Int64("team_id", teamID).Msg("invalidate team cache")
			}
		}
	}
}

// TeamIDFromPayload reads "team_id" from an event payload.
func TeamIDFromPayload(payload events.Payload) (int64, bool) {
	return payload.Int64("team_id")
}

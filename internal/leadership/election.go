/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance to run cluster-wide maintenance.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/teamslot/internal/telemetry"
)

const (
	defaultElectionKey     = "teamslot:leader:maintenance"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// renewScript extends the lease only while this instance still owns it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Gate answers whether this instance may run leader-only work.
type Gate interface {
	IsLeader() bool
}

// AlwaysLeader is the Gate used when election is disabled.
type AlwaysLeader struct{}

// IsLeader always reports true.
func (AlwaysLeader) IsLeader() bool { return true }

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ElectionKey     string
	LeaseDuration   time.Duration
	RenewalInterval time.Duration
	InstanceID      string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		InstanceID:      uuid.NewString(),
	}
}

// Election manages distributed leader election using a Redis lease.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     ElectionConfig
	instanceID string

	isLeader atomic.Bool
	leaderCh chan bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewElection connects to Redis and prepares an election.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RenewalInterval <= 0 {
		config.RenewalInterval = defaultRenewalInterval
	}
	if config.RenewalInterval >= config.LeaseDuration {
		return nil, fmt.Errorf("renewal interval %v must be shorter than lease %v", config.RenewalInterval, config.LeaseDuration)
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", config.InstanceID).
		Msg("connected to Redis for leader election")

	return &Election{
		client:     client,
		logger:     logger.With().Str("component", "leader_election").Logger(),
		config:     config,
		instanceID: config.InstanceID,
		leaderCh:   make(chan bool, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start campaigns in the background until Stop or ctx cancellation.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().Dur("lease_duration", e.config.LeaseDuration).Msg("starting leader election")

	go func() {
		defer close(e.done)
		e.campaign(ctx)

		ticker := time.NewTicker(e.config.RenewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.campaign(ctx)
			}
		}
	}()
}

// Stop ends the campaign, releases the lease if held and closes the client.
func (e *Election) Stop() error {
	var err error
	e.once.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}
		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.instanceID).Err(); rerr != nil {
				e.logger.Error().Err(rerr).Msg("failed to release leadership lease")
			}
			e.setLeader(false)
		}
		err = e.client.Close()
	})
	return err
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh receives leadership transitions.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader's instance id, or "" when none.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("leadership campaign failed")
		}
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquire takes a free lease or renews our own.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.instanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.instanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) setLeader(leader bool) {
	if e.isLeader.Swap(leader) == leader {
		return
	}

	event := "lost"
	gauge := 0.0
	if leader {
		event, gauge = "acquired", 1
		e.logger.Info().Str("instance_id", e.instanceID).Msg("acquired leadership")
	} else {
		e.logger.Warn().Str("instance_id", e.instanceID).Msg("lost leadership")
	}
	telemetry.LeaderElectionStatus.WithLabelValues(e.instanceID).Set(gauge)
	telemetry.LeaderElectionChanges.WithLabelValues(e.instanceID, event).Inc()

	select {
	case e.leaderCh <- leader:
	default:
	}
}

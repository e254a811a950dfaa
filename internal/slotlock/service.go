/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slotlock implements advisory locks on planning resources such as
// a team's schedule or a single calendar slot. Locks live in the database
// so every instance sees the same holder; an expired lock may be taken
// over by anyone.
package slotlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SystemOwner is the owner id used by background jobs.
const SystemOwner int64 = 0

// Errors returned by the service.
var (
	ErrNotFound   = errors.New("slot lock not found")
	ErrInvalidKey = errors.New("slot lock key is required")
	ErrInvalidTTL = errors.New("slot lock ttl must be positive")
)

// Service manages slot locks.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	logger zerolog.Logger
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvents publishes lock changes on bus.
func WithEvents(bus events.Broker) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// NewService creates a slot lock service.
func NewService(db *gorm.DB, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		db:     db,
		logger: logger.With().Str("component", "slot_lock").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func validate(key string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// TryLock acquires key for owner. It succeeds when the key is free, already
// held by owner (the ttl is refreshed) or held by someone else but expired.
func (s *Service) TryLock(ctx context.Context, key string, owner int64, ttl time.Duration) (bool, error) {
	if err := validate(key, ttl); err != nil {
		return false, err
	}
	now := s.clock()
	expires := now.Add(ttl)

	created := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SlotLock{ResourceKey: key, OwnerUserID: owner, ExpiresAt: expires, UpdatedAt: now})
	if created.Error != nil {
		telemetry.SlotLockOperations.WithLabelValues("try_lock", "error").Inc()
		return false, fmt.Errorf("insert slot lock %s: %w", key, created.Error)
	}
	if created.RowsAffected == 1 {
		s.acquired(key, owner, expires)
		return true, nil
	}

	taken := s.db.WithContext(ctx).
		Model(&models.SlotLock{}).
		Where("resource_key = ? AND (owner_user_id = ? OR expires_at <= ?)", key, owner, now).
		Updates(map[string]any{"owner_user_id": owner, "expires_at": expires, "updated_at": now})
	if taken.Error != nil {
		telemetry.SlotLockOperations.WithLabelValues("try_lock", "error").Inc()
		return false, fmt.Errorf("take over slot lock %s: %w", key, taken.Error)
	}
	if taken.RowsAffected == 0 {
		telemetry.SlotLockOperations.WithLabelValues("try_lock", "busy").Inc()
		return false, nil
	}
	s.acquired(key, owner, expires)
	return true, nil
}

func (s *Service) acquired(key string, owner int64, expires time.Time) {
	telemetry.SlotLockOperations.WithLabelValues("try_lock", "acquired").Inc()
	s.logger.Debug().Str("key", key).Int64("owner", owner).Time("expires_at", expires).Msg("slot lock acquired")
	s.publish(events.EventLockAcquired, events.Payload{
		"key":        key,
		"owner":      owner,
		"expires_at": expires.Format(time.RFC3339),
	})
}

// Renew extends a lock still held by owner. It reports false when owner no
// longer holds it.
func (s *Service) Renew(ctx context.Context, key string, owner int64, ttl time.Duration) (bool, error) {
	if err := validate(key, ttl); err != nil {
		return false, err
	}
	now := s.clock()
	res := s.db.WithContext(ctx).
		Model(&models.SlotLock{}).
		Where("resource_key = ? AND owner_user_id = ? AND expires_at > ?", key, owner, now).
		Updates(map[string]any{"expires_at": now.Add(ttl), "updated_at": now})
	if res.Error != nil {
		telemetry.SlotLockOperations.WithLabelValues("renew", "error").Inc()
		return false, fmt.Errorf("renew slot lock %s: %w", key, res.Error)
	}
	ok := res.RowsAffected > 0
	telemetry.SlotLockOperations.WithLabelValues("renew", result(ok)).Inc()
	return ok, nil
}

// Release drops a lock held by owner.
func (s *Service) Release(ctx context.Context, key string, owner int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("resource_key = ? AND owner_user_id = ?", key, owner).
		Delete(&models.SlotLock{})
	if res.Error != nil {
		telemetry.SlotLockOperations.WithLabelValues("release", "error").Inc()
		return false, fmt.Errorf("release slot lock %s: %w", key, res.Error)
	}
	ok := res.RowsAffected > 0
	telemetry.SlotLockOperations.WithLabelValues("release", result(ok)).Inc()
	if ok {
		s.publish(events.EventLockReleased, events.Payload{"key": key, "owner": owner})
	}
	return ok, nil
}

// Get returns the live lock for key, or ErrNotFound when it is absent or
// expired.
func (s *Service) Get(ctx context.Context, key string) (*models.SlotLock, error) {
	var lock models.SlotLock
	err := s.db.WithContext(ctx).
		Where("resource_key = ? AND expires_at > ?", key, s.clock()).
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot lock %s: %w", key, err)
	}
	return &lock, nil
}

// CleanExpired removes every expired lock and returns how many went.
func (s *Service) CleanExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.clock()).
		Delete(&models.SlotLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("clean expired slot locks: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		telemetry.SlotLocksCleanedTotal.Add(float64(res.RowsAffected))
		s.publish(events.EventLocksExpired, events.Payload{"count": res.RowsAffected})
	}
	return res.RowsAffected, nil
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "miss"
}

// TeamScheduleKey is the lock guarding schedule generation for a team.
func TeamScheduleKey(teamID int64) string {
	return fmt.Sprintf("schedule:team:%d", teamID)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slotlock

import (
	"context"
	"time"

	"github.com/friendsincode/teamslot/internal/leadership"
	"github.com/rs/zerolog"
)

// CleanupJobKey guards the cleanup pass so one instance runs it per
// interval.
const CleanupJobKey = "job:slot-lock:cleanup"

const cleanupJobTTL = time.Minute

// MaintenanceJob periodically removes expired locks.
type MaintenanceJob struct {
	locks    *Service
	gate     leadership.Gate
	interval time.Duration
	logger   zerolog.Logger
}

// NewMaintenanceJob creates the cleanup job. A nil gate runs on every
// instance and relies on the job lock alone.
func NewMaintenanceJob(locks *Service, gate leadership.Gate, interval time.Duration, logger zerolog.Logger) *MaintenanceJob {
	if interval <= 0 {
		interval = time.Minute
	}
	if gate == nil {
		gate = leadership.AlwaysLeader{}
	}
	return &MaintenanceJob{
		locks:    locks,
		gate:     gate,
		interval: interval,
		logger:   logger.With().Str("component", "slot_lock_maintenance").Logger(),
	}
}

// Run executes the cleanup loop until ctx is cancelled.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("slot lock maintenance started")
	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("slot lock maintenance stopped")
			return ctx.Err()
		case <-ticker.C:
			if !j.gate.IsLeader() {
				continue
			}
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Warn().Err(err).Msg("slot lock cleanup failed")
			}
		}
	}
}

// RunOnce performs one guarded cleanup pass. It returns 0 without error
// when another instance holds the job lock.
func (j *MaintenanceJob) RunOnce(ctx context.Context) (int64, error) {
	ok, err := j.locks.TryLock(ctx, CleanupJobKey, SystemOwner, cleanupJobTTL)
	if err != nil || !ok {
		return 0, err
	}
	defer func() {
		if _, err := j.locks.Release(context.WithoutCancel(ctx), CleanupJobKey, SystemOwner); err != nil {
			j.logger.Warn().Err(err).Msg("release cleanup job lock")
		}
	}()

	deleted, err := j.locks.CleanExpired(ctx)
	if err != nil {
		return 0, err
	}
	j.logger.Debug().Int64("deleted", deleted).Msg("slot lock cleanup")
	return deleted, nil
}

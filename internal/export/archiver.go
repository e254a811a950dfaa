/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package export

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/storage"
)

// ScheduleSource loads a stored schedule with its assignments.
type ScheduleSource interface {
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
}

// Archiver keeps an iCal copy of every completed schedule in object storage
// and removes it again when the schedule is deleted.
type Archiver struct {
	source ScheduleSource
	store  storage.ObjectStore
	bus    events.Broker
	logger zerolog.Logger
}

// NewArchiver creates an archiver.
func NewArchiver(source ScheduleSource, store storage.ObjectStore, bus events.Broker, logger zerolog.Logger) *Archiver {
	return &Archiver{
		source: source,
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "archiver").Logger(),
	}
}

// Run archives schedules as their events arrive. It returns when ctx is
// done.
func (a *Archiver) Run(ctx context.Context) {
	completed := a.bus.Subscribe(events.EventScheduleCompleted)
	deleted := a.bus.Subscribe(events.EventScheduleDeleted)
	defer func() {
		a.bus.Unsubscribe(events.EventScheduleCompleted, completed)
		a.bus.Unsubscribe(events.EventScheduleDeleted, deleted)
	}()

	a.logger.Info().Msg("schedule archiver started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("schedule archiver stopping")
			return
		case payload, ok := <-completed:
			if !ok {
				return
			}
			if _, err := a.ArchiveFromEvent(ctx, payload); err != nil {
				a.logger.Warn().Err(err).Interface("payload", payload).Msg("archive schedule failed")
			}
		case payload, ok := <-deleted:
			if !ok {
				return
			}
			if err := a.RemoveFromEvent(ctx, payload); err != nil {
				a.logger.Warn().Err(err).Interface("payload", payload).Msg("remove archived schedule failed")
			}
		}
	}
}

// ArchiveFromEvent stores the schedule named by a completion event and
// returns its object key.
func (a *Archiver) ArchiveFromEvent(ctx context.Context, payload events.Payload) (string, error) {
	id, ok := payload.Int64("schedule_id")
	if !ok || id <= 0 {
		return "", errors.New("event has no schedule_id")
	}
	schedule, err := a.source.GetSchedule(ctx, id)
	if err != nil {
		return "", err
	}
	key, err := Archive(ctx, a.store, *schedule, schedule.Assignments)
	if err != nil {
		return "", err
	}
	a.logger.Debug().Int64("schedule_id", id).Str("key", key).Msg("schedule archived")
	return key, nil
}

// RemoveFromEvent deletes the archive of a deleted schedule.
func (a *Archiver) RemoveFromEvent(ctx context.Context, payload events.Payload) error {
	id, ok := payload.Int64("schedule_id")
	if !ok || id <= 0 {
		return errors.New("event has no schedule_id")
	}
	teamID, ok := payload.Int64("team_id")
	if !ok {
		return errors.New("event has no team_id")
	}
	return a.store.Delete(ctx, ArchiveKey(models.Schedule{ID: id, TeamID: teamID}))
}

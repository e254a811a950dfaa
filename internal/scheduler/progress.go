/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/scheduler/state"
)

// progress records and publishes the milestones of one run.
type progress struct {
	svc *Service
	run state.Run
}

func (p *progress) step(pct int, message string) {
	p.run.Status = state.StatusProgress
	p.run.Progress = pct
	p.run.Message = message
	p.emit(events.EventScheduleProgress)
}

func (p *progress) finish(scheduleID int64) {
	p.run.Status = state.StatusCompleted
	p.run.Progress = 100
	p.run.Message = "schedule completed"
	p.run.ScheduleID = scheduleID
	p.emit(events.EventScheduleProgress)
	p.emit(events.EventScheduleCompleted)
}

func (p *progress) fail(err error) {
	p.run.Status = state.StatusFailed
	p.run.Message = "schedule generation failed: " + err.Error()
	p.emit(events.EventScheduleProgress)
	p.emit(events.EventScheduleFailed)
}

func (p *progress) emit(eventType events.EventType) {
	p.run.UpdatedAt = p.svc.now().UTC()
	p.svc.runs.Put(p.run)
	if p.svc.bus != nil {
		p.svc.bus.Publish(eventType, Payload(p.run))
	}
}

// Payload renders a run as the progress event body.
func Payload(run state.Run) events.Payload {
	payload := events.Payload{
		"run_id":   run.RunID,
		"team_id":  run.TeamID,
		"status":   run.Status,
		"progress": run.Progress,
		"message":  run.Message,
	}
	if run.ScheduleID > 0 {
		payload["schedule_id"] = run.ScheduleID
	}
	return payload
}

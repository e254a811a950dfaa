/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/teamslot/internal/auth"
	"github.com/friendsincode/teamslot/internal/export"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/scheduler"
)

// Calendar colours by task priority.
var priorityColors = map[int]string{
	1: "#ef4444",
	2: "#f59e0b",
	3: "#3b82f6",
	4: "#10b981",
	5: "#6b7280",
}

const (
	defaultColor = "#3b82f6"
	eventColor   = "#8b5cf6"
)

func priorityColor(priority int) string {
	if c, ok := priorityColors[priority]; ok {
		return c
	}
	return defaultColor
}

type generateRequest struct {
	RangeStart string `json:"rangeStart"`
	RangeEnd   string `json:"rangeEnd"`
	Replace    *bool  `json:"replace,omitempty"`
	Seed       int64  `json:"seed,omitempty"`
}

// CalendarItem is one entry in a calendar view.
type CalendarItem struct {
	TaskID  *int64    `json:"taskId,omitempty"`
	EventID *int64    `json:"eventId,omitempty"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Color   string    `json:"color"`
}

// UnassignedTask explains why a task was left off the schedule.
type UnassignedTask struct {
	TaskID int64  `json:"taskId"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// CalendarResponse is returned by synchronous generation and schedule reads.
type CalendarResponse struct {
	ScheduleID      int64            `json:"scheduleId"`
	TeamID          int64            `json:"teamId"`
	RangeStart      time.Time        `json:"rangeStart"`
	RangeEnd        time.Time        `json:"rangeEnd"`
	Schedule        []CalendarItem   `json:"schedule"`
	Events          []CalendarItem   `json:"events"`
	UnassignedTasks []UnassignedTask `json:"unassignedTasks"`
	Score           int              `json:"score"`
}

// ScheduleSummary is a schedule without its assignments.
type ScheduleSummary struct {
	ID         int64     `json:"id"`
	TeamID     int64     `json:"teamId"`
	RangeStart time.Time `json:"rangeStart"`
	RangeEnd   time.Time `json:"rangeEnd"`
	Score      int       `json:"score"`
	CreatedBy  *int64    `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func summarize(s models.Schedule) ScheduleSummary {
	return ScheduleSummary{
		ID:         s.ID,
		TeamID:     s.TeamID,
		RangeStart: s.RangeStart,
		RangeEnd:   s.RangeEnd,
		Score:      s.Score,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt,
	}
}

func assignmentItems(assignments []models.Assignment, priorities map[int64]int) []CalendarItem {
	items := make([]CalendarItem, 0, len(assignments))
	for _, a := range assignments {
		color := defaultColor
		if a.Source == string(planning.SourceEvent) {
			color = eventColor
		} else if a.TaskID != nil {
			color = priorityColor(priorities[*a.TaskID])
		}
		items = append(items, CalendarItem{
			TaskID: a.TaskID,
			Title:  a.Title,
			Start:  a.StartsAt,
			End:    a.EndsAt,
			Color:  color,
		})
	}
	return items
}

func eventItems(evs []planning.CalendarEvent) []CalendarItem {
	items := make([]CalendarItem, 0, len(evs))
	for _, ev := range evs {
		id := ev.ID
		items = append(items, CalendarItem{
			EventID: &id,
			Title:   ev.Title,
			Start:   ev.StartsAt,
			End:     ev.EndsAt,
			Color:   eventColor,
		})
	}
	return items
}

// generateRequestFromHTTP reads the team and body of a generation request.
func (a *API) generateRequestFromHTTP(w http.ResponseWriter, r *http.Request) (scheduler.GenerateRequest, bool) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return scheduler.GenerateRequest{}, false
	}
	var body generateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return scheduler.GenerateRequest{}, false
	}
	start, err := a.parseDate(body.RangeStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range_start")
		return scheduler.GenerateRequest{}, false
	}
	end, err := a.parseDate(body.RangeEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range_end")
		return scheduler.GenerateRequest{}, false
	}
	req := scheduler.GenerateRequest{
		TeamID:     teamID,
		RangeStart: start,
		RangeEnd:   end,
		Seed:       body.Seed,
		Replace:    a.replace,
	}
	if body.Replace != nil {
		req.Replace = *body.Replace
	}
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		req.CreatedBy = &uid
	}
	return req, true
}

// writeSchedulerError maps service errors to responses.
func (a *API) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, "team_not_found")
	case errors.Is(err, scheduler.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found")
	case errors.Is(err, scheduler.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range")
	case errors.Is(err, scheduler.ErrTeamBusy):
		writeError(w, http.StatusLocked, "schedule_in_progress")
	default:
		a.logger.Error().Err(err).Msg("scheduler request failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := a.generateRequestFromHTTP(w, r)
	if !ok {
		return
	}
	runID, err := a.scheduler.Start(r.Context(), req)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"runId":  runID,
		"teamId": req.TeamID,
		"status": "PROGRESS",
	})
}

func (a *API) handleGenerateSync(w http.ResponseWriter, r *http.Request) {
	req, ok := a.generateRequestFromHTTP(w, r)
	if !ok {
		return
	}
	res, err := a.scheduler.Generate(r.Context(), req)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}

	priorities := make(map[int64]int, len(res.Tasks))
	for _, t := range res.Tasks {
		priorities[t.ID] = t.Priority
	}
	unassigned := make([]UnassignedTask, 0, len(res.Unassigned))
	for _, u := range res.Unassigned {
		unassigned = append(unassigned, UnassignedTask{TaskID: u.TaskID, Title: u.Title, Reason: string(u.Reason)})
	}
	writeJSON(w, http.StatusOK, CalendarResponse{
		ScheduleID:      res.Schedule.ID,
		TeamID:          res.Schedule.TeamID,
		RangeStart:      res.Schedule.RangeStart,
		RangeEnd:        res.Schedule.RangeEnd,
		Schedule:        assignmentItems(res.Assignments, priorities),
		Events:          eventItems(res.Events),
		UnassignedTasks: unassigned,
		Score:           res.FinalScore,
	})
}

// calendarFor renders a stored schedule with the team's events in its range.
func (a *API) calendarFor(r *http.Request, schedule *models.Schedule) (CalendarResponse, error) {
	priorities, err := a.scheduler.TaskPriorities(r.Context(), schedule.Assignments)
	if err != nil {
		return CalendarResponse{}, err
	}
	evs, err := a.scheduler.CalendarEvents(r.Context(), schedule.TeamID, schedule.RangeStart, schedule.RangeEnd.Add(24*time.Hour))
	if err != nil {
		return CalendarResponse{}, err
	}
	return CalendarResponse{
		ScheduleID:      schedule.ID,
		TeamID:          schedule.TeamID,
		RangeStart:      schedule.RangeStart,
		RangeEnd:        schedule.RangeEnd,
		Schedule:        assignmentItems(schedule.Assignments, priorities),
		Events:          eventItems(evs),
		UnassignedTasks: []UnassignedTask{},
		Score:           schedule.Score,
	}, nil
}

func (a *API) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "scheduleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_schedule_id")
		return
	}
	schedule, err := a.scheduler.GetSchedule(r.Context(), id)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	resp, err := a.calendarFor(r, schedule)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleScheduleLatest(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}
	schedule, err := a.scheduler.LatestSchedule(r.Context(), teamID)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	resp, err := a.calendarFor(r, schedule)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}
	schedules, err := a.scheduler.ListSchedules(r.Context(), teamID)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	out := make([]ScheduleSummary, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, summarize(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": out})
}

func (a *API) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "scheduleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_schedule_id")
		return
	}
	if err := a.scheduler.DeleteSchedule(r.Context(), id); err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTeamSchedulesDelete(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}
	n, err := a.scheduler.DeleteTeamSchedules(r.Context(), teamID)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (a *API) handleRunLatest(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}
	run, ok := a.scheduler.Runs().Latest(teamID)
	if !ok {
		writeError(w, http.StatusNotFound, "run_not_found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleScheduleICal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "scheduleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_schedule_id")
		return
	}
	schedule, err := a.scheduler.GetSchedule(r.Context(), id)
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	body := export.ICal(*schedule, schedule.Assignments)
	w.Header().Set("Content-Type", export.ICalContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(*schedule)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/friendsincode/teamslot/internal/meeting"
)

type meetingRequest struct {
	ParticipantIDs  []int64 `json:"participantIds"`
	DurationMinutes int     `json:"durationMinutes"`
	From            string  `json:"from,omitempty"`
	SearchDays      int     `json:"searchDays,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

func (a *API) handleMeetingSuggest(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}
	var body meetingRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var from time.Time
	if body.From != "" {
		t, err := a.parseDate(body.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = t
	}

	suggestions, err := a.meetings.Suggest(r.Context(), meeting.Request{
		TeamID:         teamID,
		ParticipantIDs: body.ParticipantIDs,
		DurationMin:    body.DurationMinutes,
		From:           from,
		SearchDays:     body.SearchDays,
		Limit:          body.Limit,
	})
	if errors.Is(err, meeting.ErrInvalidDuration) {
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	}
	if err != nil {
		a.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

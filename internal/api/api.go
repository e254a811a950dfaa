/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/teamslot/internal/auth"
	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/meeting"
	"github.com/friendsincode/teamslot/internal/scheduler"
	"github.com/friendsincode/teamslot/internal/slotlock"
)

const dateLayout = "2006-01-02"

// API exposes HTTP handlers.
type API struct {
	jwtSecret []byte
	scheduler *scheduler.Service
	meetings  *meeting.Service
	locks     *slotlock.Service
	bus       events.Broker
	location  *time.Location
	lockTTL   time.Duration
	replace   bool
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(jwtSecret []byte, sched *scheduler.Service, meetings *meeting.Service, locks *slotlock.Service, bus events.Broker, logger zerolog.Logger) *API {
	return &API{
		jwtSecret: jwtSecret,
		scheduler: sched,
		meetings:  meetings,
		locks:     locks,
		bus:       bus,
		location:  time.UTC,
		lockTTL:   2 * time.Minute,
		replace:   true,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetLocation sets the zone request dates are read in.
func (a *API) SetLocation(loc *time.Location) {
	if loc != nil {
		a.location = loc
	}
}

// SetDefaultLockTTL sets the TTL used when a lock request names none.
func (a *API) SetDefaultLockTTL(ttl time.Duration) {
	if ttl > 0 {
		a.lockTTL = ttl
	}
}

// SetReplaceOnGenerate sets whether generation replaces intersecting
// schedules when the request does not say.
func (a *API) SetReplaceOnGenerate(replace bool) {
	a.replace = replace
}

// Routes mounts every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/teams/{teamID}", func(r chi.Router) {
				r.Route("/schedules", func(r chi.Router) {
					r.Get("/", a.handleScheduleList)
					r.Post("/", a.handleGenerate)
					r.Delete("/", a.handleTeamSchedulesDelete)
					r.Post("/sync", a.handleGenerateSync)
					r.Get("/latest", a.handleScheduleLatest)
				})
				r.Get("/runs/latest", a.handleRunLatest)
				r.Post("/meetings/suggest", a.handleMeetingSuggest)
				r.Get("/progress", a.handleProgress)
			})

			pr.Route("/schedules/{scheduleID}", func(r chi.Router) {
				r.Get("/", a.handleScheduleGet)
				r.Delete("/", a.handleScheduleDelete)
				r.Get("/ical", a.handleScheduleICal)
			})

			pr.Route("/locks", func(r chi.Router) {
				r.Post("/", a.handleLockAcquire)
				r.Get("/{key}", a.handleLockGet)
				r.Put("/{key}", a.handleLockRenew)
				r.Delete("/{key}", a.handleLockRelease)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.Middleware(a.jwtSecret)
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func (a *API) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("date required")
	}
	if t, err := time.ParseInLocation(dateLayout, raw, a.location); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

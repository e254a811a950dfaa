/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/teamslot/internal/auth"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/slotlock"
)

// Key prefixes owned by the server itself.
var reservedLockPrefixes = []string{"job:", "schedule:team:"}

const maxLockTTL = time.Hour

type lockRequest struct {
	Key        string `json:"key"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// LockResponse describes a held lock.
type LockResponse struct {
	Key       string    `json:"key"`
	OwnerID   int64     `json:"ownerId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func lockResponse(l *models.SlotLock) LockResponse {
	return LockResponse{Key: l.ResourceKey, OwnerID: l.OwnerUserID, ExpiresAt: l.ExpiresAt}
}

// lockKey validates a client supplied key.
func lockKey(raw string) (string, bool) {
	key := strings.TrimSpace(raw)
	if key == "" || len(key) > 255 {
		return "", false
	}
	for _, prefix := range reservedLockPrefixes {
		if strings.HasPrefix(key, prefix) {
			return "", false
		}
	}
	return key, true
}

func (a *API) lockTTLFor(seconds int) (time.Duration, bool) {
	if seconds == 0 {
		return a.lockTTL, true
	}
	ttl := time.Duration(seconds) * time.Second
	if ttl <= 0 || ttl > maxLockTTL {
		return 0, false
	}
	return ttl, true
}

func (a *API) writeLockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slotlock.ErrNotFound):
		writeError(w, http.StatusNotFound, "lock_not_found")
	case errors.Is(err, slotlock.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "invalid_key")
	case errors.Is(err, slotlock.ErrInvalidTTL):
		writeError(w, http.StatusBadRequest, "invalid_ttl")
	default:
		a.logger.Error().Err(err).Msg("lock request failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// respondHeld writes the current holder of key after a lock operation.
func (a *API) respondHeld(w http.ResponseWriter, r *http.Request, key string, ok bool) {
	lock, err := a.locks.Get(r.Context(), key)
	if err != nil && !errors.Is(err, slotlock.ErrNotFound) {
		a.writeLockError(w, err)
		return
	}
	switch {
	case ok && lock != nil:
		writeJSON(w, http.StatusOK, lockResponse(lock))
	case lock != nil:
		writeJSON(w, http.StatusConflict, map[string]any{"error": "lock_held", "lock": lockResponse(lock)})
	default:
		writeError(w, http.StatusConflict, "lock_held")
	}
}

func (a *API) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body lockRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	key, ok := lockKey(body.Key)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_key")
		return
	}
	ttl, ok := a.lockTTLFor(body.TTLSeconds)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_ttl")
		return
	}
	acquired, err := a.locks.TryLock(r.Context(), key, owner, ttl)
	if err != nil {
		a.writeLockError(w, err)
		return
	}
	a.respondHeld(w, r, key, acquired)
}

func (a *API) handleLockGet(w http.ResponseWriter, r *http.Request) {
	key, ok := lockKey(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_key")
		return
	}
	lock, err := a.locks.Get(r.Context(), key)
	if err != nil {
		a.writeLockError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockResponse(lock))
}

func (a *API) handleLockRenew(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	key, ok := lockKey(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_key")
		return
	}
	var body lockRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request")
			return
		}
	}
	ttl, ok := a.lockTTLFor(body.TTLSeconds)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_ttl")
		return
	}
	renewed, err := a.locks.Renew(r.Context(), key, owner, ttl)
	if err != nil {
		a.writeLockError(w, err)
		return
	}
	if !renewed {
		lock, err := a.locks.Get(r.Context(), key)
		if err != nil {
			a.writeLockError(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, map[string]any{"error": "lock_held", "lock": lockResponse(lock)})
		return
	}
	a.respondHeld(w, r, key, true)
}

func (a *API) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	key, ok := lockKey(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_key")
		return
	}
	released, err := a.locks.Release(r.Context(), key, owner)
	if err != nil {
		a.writeLockError(w, err)
		return
	}
	if !released {
		writeError(w, http.StatusNotFound, "lock_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

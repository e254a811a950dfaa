/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/teamslot/internal/cache"
	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/scheduler"
	"github.com/friendsincode/teamslot/internal/telemetry"
)

const progressPingInterval = 15 * time.Second

// handleProgress streams a team's planning progress over a websocket. The
// latest known state is sent first so late joiners catch up.
func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(r, "teamID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_team_id")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Clients only listen; CloseRead cancels ctx once they go away.
	ctx := conn.CloseRead(r.Context())

	sub := a.bus.Subscribe(events.EventScheduleProgress)
	defer a.bus.Unsubscribe(events.EventScheduleProgress, sub)

	if run, ok := a.scheduler.Runs().Latest(teamID); ok {
		if err := a.writeEvent(ctx, conn, events.EventScheduleProgress, scheduler.Payload(run)); err != nil {
			a.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}

	ticker := time.NewTicker(progressPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "event bus closed")
				return
			}
			if id, ok := cache.TeamIDFromPayload(payload); !ok || id != teamID {
				continue
			}
			if err := a.writeEvent(ctx, conn, events.EventScheduleProgress, payload); err != nil {
				a.logger.Error().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}

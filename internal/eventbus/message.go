/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus carries events between teamslot instances over Redis
// pub/sub or NATS. Every bus also delivers to local subscribers through an
// in-process events.Bus, so a node sees its own events without a round trip.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/friendsincode/teamslot/internal/events"
	"github.com/google/uuid"
)

// wireMessage is the envelope published to the broker.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal event message: %w", err)
	}
	return data, nil
}

func unmarshalMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("unmarshal event message: missing event type")
	}
	return &msg, nil
}

// NodeID returns an identifier for this process: the hostname plus a
// random suffix so two instances on one host stay distinct.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "teamslot"
	}
	return host + "-" + uuid.NewString()[:8]
}

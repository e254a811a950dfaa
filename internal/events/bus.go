/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"encoding/json"
	"sync"
)

// EventType enumerates event categories.
type EventType string

const (
	// Planning progress, one event per milestone.
	EventScheduleProgress EventType = "schedule.progress"

	// Terminal outcomes of a planning run.
	EventScheduleCompleted EventType = "schedule.completed"
	EventScheduleFailed    EventType = "schedule.failed"
	EventScheduleDeleted   EventType = "schedule.deleted"

	// Advisory locks
	EventLockAcquired EventType = "lock.acquired"
	EventLockReleased EventType = "lock.released"
	EventLocksExpired EventType = "lock.expired"

	// Cache invalidation
	EventTeamMembersChanged EventType = "cache.team_members_changed"
)

// Payload generic event payload.
type Payload map[string]any

// Int64 reads a numeric field, accepting the types produced in-process and
// by JSON decoding.
func (p Payload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Broker is satisfied by the in-process bus and the distributed buses.
type Broker interface {
	Subscribe(eventType EventType) Subscriber
	Publish(eventType EventType, payload Payload)
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// SubscriberCount reports how many subscribers listen for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// Package realtime fans incident notifications out to subscribed connections.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tenantdesk/core/auth"
	"tenantdesk/core/utils"
)

var ErrDropped = errors.New("realtime: event dropped")

type Message struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscriber is one live connection. Deliver must not block; it reports false when the
// message could not be queued.
type Subscriber interface {
	ID() string
	Actor() auth.Actor
	Deliver(msg Message) bool
	Alive() bool
}

type Predicate func(Subscriber) bool

type Stats struct {
	Rooms       int `json:"rooms"`
	Subscribers int `json:"subscribers"`
	Delivered   int `json:"delivered"`
	Dropped     int `json:"dropped"`
}

// Router owns the room table. Join, Leave, Disconnect and Sweep are its only mutators.
type Router struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Subscriber
	memberships map[string]map[string]struct{}
	delivered   int
	dropped     int
	logger      *utils.Logger
}

func NewRouter(logger *utils.Logger) *Router {
	return &Router{
		rooms:       map[string]map[string]Subscriber{},
		memberships: map[string]map[string]struct{}{},
		logger:      logger,
	}
}

// Join adds sub to room. Joining twice is a no-op; the result reports whether membership
// changed.
func (r *Router) Join(sub Subscriber, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = map[string]Subscriber{}
		r.rooms[room] = members
	}
	if _, exists := members[sub.ID()]; exists {
		return false
	}
	members[sub.ID()] = sub
	joined, ok := r.memberships[sub.ID()]
	if !ok {
		joined = map[string]struct{}{}
		r.memberships[sub.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

func (r *Router) Leave(sub Subscriber, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sub.ID(), room)
}

// Disconnect removes sub from every room it joined.
func (r *Router) Disconnect(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(sub.ID())
}

func (r *Router) leaveLocked(subID, room string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[subID]; !exists {
		return false
	}
	delete(members, subID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.memberships[subID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.memberships, subID)
		}
	}
	return true
}

func (r *Router) dropLocked(subID string) {
	for room := range r.memberships[subID] {
		if members, ok := r.rooms[room]; ok {
			delete(members, subID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.memberships, subID)
}

func (r *Router) Broadcast(room, event string, payload any) error {
	return r.BroadcastWhere(room, event, payload, nil)
}

// BroadcastWhere delivers to the current members of room accepted by keep (all members when
// keep is nil). Delivery is best effort: full subscribers miss the event and the drop is
// reported through the returned error.
func (r *Router) BroadcastWhere(room, event string, payload any, keep Predicate) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s payload: %w", event, err)
	}
	msg := Message{Event: event, Room: room, Payload: raw}

	r.mu.RLock()
	targets := make([]Subscriber, 0, len(r.rooms[room]))
	for _, sub := range r.rooms[room] {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if keep != nil && !keep(sub) {
			continue
		}
		if sub.Deliver(msg) {
			delivered++
			continue
		}
		dropped++
		r.logger.Warnf("realtime: dropped %s for subscriber %s in %s", event, sub.ID(), room)
	}

	r.mu.Lock()
	r.delivered += delivered
	r.dropped += dropped
	r.mu.Unlock()

	if dropped > 0 {
		return fmt.Errorf("%w: %d of %d subscribers in %s", ErrDropped, dropped, delivered+dropped, room)
	}
	return nil
}

// Sweep disconnects subscribers that report themselves dead and returns how many were removed.
func (r *Router) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dead := map[string]struct{}{}
	for _, members := range r.rooms {
		for id, sub := range members {
			if !sub.Alive() {
				dead[id] = struct{}{}
			}
		}
	}
	for id := range dead {
		r.dropLocked(id)
	}
	return len(dead)
}

func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Rooms: len(r.rooms), Subscribers: len(r.memberships), Delivered: r.delivered, Dropped: r.dropped}
}

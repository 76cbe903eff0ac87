// Package ws implements the reviewer channel: per-claim rooms of
// WebSocket subscribers with join/leave/broadcast/unicast semantics.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Conn is the transport one subscriber is reached over. Satisfied by
// the WebSocket wrapper in handler.go and by fakes in tests.
type Conn interface {
	Send(ctx context.Context, data []byte) error
}

// subscriber pairs a connection with the reviewer behind it.
type subscriber struct {
	conn     Conn
	identity Identity
	claimID  string
}

// Hub is the in-memory registry of reviewer rooms, keyed by claim. A
// room exists only while it has subscribers; the last leave removes it.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[Conn]*subscriber
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]map[Conn]*subscriber),
	}
}

// Join adds a connection to the claim's room, creating the room on
// first join.
func (h *Hub) Join(claimID string, c Conn, identity Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[claimID]
	if !ok {
		room = make(map[Conn]*subscriber)
		h.rooms[claimID] = room
	}
	room[c] = &subscriber{conn: c, identity: identity, claimID: claimID}

	h.log.Info("reviewer joined",
		"claim_id", claimID,
		"reviewer_id", identity.ReviewerID,
		"room_size", len(room))
}

// Leave removes a connection from its room, deleting the room when it
// empties. Unknown connections are a no-op.
func (h *Hub) Leave(c Conn) (Identity, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c)
}

// leaveLocked must be called with h.mu held for writing.
func (h *Hub) leaveLocked(c Conn) (Identity, string, bool) {
	for claimID, room := range h.rooms {
		sub, ok := room[c]
		if !ok {
			continue
		}
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, claimID)
		}
		h.log.Info("reviewer left",
			"claim_id", claimID,
			"reviewer_id", sub.identity.ReviewerID,
			"room_size", len(room))
		return sub.identity, claimID, true
	}
	return Identity{}, "", false
}

// Broadcast delivers a message to every subscriber of the claim's room,
// optionally excluding one connection (typically the sender). A failed
// send removes that subscriber but never blocks delivery to the rest.
func (h *Hub) Broadcast(ctx context.Context, claimID string, msg Message, exclude Conn) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	// Snapshot the room so sends happen outside the lock and slow
	// subscribers cannot stall joins.
	h.mu.RLock()
	room := h.rooms[claimID]
	targets := make([]Conn, 0, len(room))
	for c := range room {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var dead []Conn
	for _, c := range targets {
		if err := c.Send(ctx, data); err != nil {
			h.log.Debug("broadcast send failed", "claim_id", claimID, "error", err)
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, c := range dead {
			h.leaveLocked(c)
		}
		h.mu.Unlock()
	}
}

// Unicast sends a message to a single connection.
func (h *Hub) Unicast(ctx context.Context, c Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(ctx, data)
}

// Subscribers lists the reviewers currently in the claim's room.
func (h *Hub) Subscribers(claimID string) []Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[claimID]
	out := make([]Identity, 0, len(room))
	for _, sub := range room {
		out = append(out, sub.identity)
	}
	return out
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ActiveClaims lists the claims that currently have reviewers watching.
func (h *Hub) ActiveClaims() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for claimID := range h.rooms {
		out = append(out, claimID)
	}
	return out
}

// BroadcastEvent marshals a typed event and broadcasts it to the
// claim's room. Implements the broadcaster port.
func (h *Hub) BroadcastEvent(ctx context.Context, claimID, eventType string, payload any) {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		h.log.Error("marshal event payload", "type", eventType, "error", err)
		return
	}
	h.Broadcast(ctx, claimID, msg, nil)
}

// NotifyManualReviewRequired tells every reviewer of the claim that the
// automated run handed it off. Called when a run resolves to manual
// review, decoupling loop completion from live notification.
func (h *Hub) NotifyManualReviewRequired(ctx context.Context, claimID, reason string) {
	h.BroadcastEvent(ctx, claimID, EventManualReviewRequired, ManualReviewEvent{
		ClaimID: claimID,
		Reason:  reason,
	})
}

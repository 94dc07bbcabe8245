package handler

import (
	"context"
	"log"
	"sort"
	"sync"
)

// MembershipChecker is the workspace-membership collaborator the voice
// coordinator consults before letting a connection into a room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID string, userID int64) (bool, error)
}

// VoiceHub coordinates voice rooms and relays WebRTC negotiation
// payloads between peers. Room ids are workspace ids in practice. It
// never interprets signaling data; only the target connection id is
// routed on.
type VoiceHub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn // roomID -> connID -> conn
	conns map[string]Conn            // connID -> conn (signal routing)

	membership MembershipChecker
}

// NewVoiceHub creates a hub around a membership checker
func NewVoiceHub(membership MembershipChecker) *VoiceHub {
	return &VoiceHub{
		rooms:      make(map[string]map[string]Conn),
		conns:      make(map[string]Conn),
		membership: membership,
	}
}

// Register makes a connection addressable for signaling. Called once
// at connection open, before any join.
func (h *VoiceHub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// Unregister drops the connection from signal routing
func (h *VoiceHub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID())
}

// Join checks workspace membership, adds the connection to the room
// and broadcasts the full participant list to every member (including
// the joiner). The full list, not a diff: cheap to reconcile and
// immune to lost increments. Returns ok=false with a caller-facing
// message when membership fails; nothing is broadcast in that case.
func (h *VoiceHub) Join(ctx context.Context, c Conn, roomID string) (bool, string) {
	if roomID == "" {
		return false, "Room id is required"
	}

	member, err := h.membership.IsMember(ctx, roomID, c.UserID())
	if err != nil {
		log.Printf("[VoiceHub] membership check failed for room %s: %v", roomID, err)
		return false, "Join failed"
	}
	if !member {
		return false, "Not a member of this workspace"
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]Conn)
	}
	h.rooms[roomID][c.ID()] = c
	h.mu.Unlock()

	h.broadcastParticipants(roomID)

	h.broadcast(roomID, c.ID(), newEvent("voice:peer-joined", VoicePeerPayload{
		PeerID: c.ID(),
		Name:   c.Name(),
	}))

	log.Printf("[VoiceHub] %s (%s) joined voice room %s", c.Name(), c.ID(), roomID)
	return true, ""
}

// Leave removes the connection from the room, re-broadcasts the full
// participant list to the remaining members and emits the peer-left
// notification.
func (h *VoiceHub) Leave(c Conn, roomID string) {
	if roomID == "" {
		return
	}

	h.mu.Lock()
	room, exists := h.rooms[roomID]
	wasMember := false
	if exists {
		_, wasMember = room[c.ID()]
		delete(room, c.ID())
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	// a connection that was never in the room must not produce a
	// phantom peer-left for the remaining members
	if !wasMember {
		return
	}

	h.broadcastParticipants(roomID)

	h.broadcast(roomID, "", newEvent("voice:peer-left", VoicePeerPayload{
		PeerID: c.ID(),
		Name:   c.Name(),
	}))
}

// Disconnect performs Leave cleanup for every room the connection was
// in, then drops it from signal routing.
func (h *VoiceHub) Disconnect(c Conn) {
	h.mu.RLock()
	roomIDs := make([]string, 0)
	for roomID, room := range h.rooms {
		if _, ok := room[c.ID()]; ok {
			roomIDs = append(roomIDs, roomID)
		}
	}
	h.mu.RUnlock()

	for _, roomID := range roomIDs {
		h.Leave(c, roomID)
	}

	h.Unregister(c)
}

// Signal forwards an opaque negotiation payload to one target
// connection, or silently drops it when the target is already gone.
// Best effort only; callers must tolerate lost signaling messages.
func (h *VoiceHub) Signal(from Conn, p *VoiceSignalPayload) {
	if p == nil || p.To == "" {
		return
	}

	h.mu.RLock()
	target, ok := h.conns[p.To]
	h.mu.RUnlock()

	if !ok {
		return
	}

	if err := target.Send(newEvent("voice:signal", VoiceSignalRelayPayload{
		From: from.ID(),
		Data: p.Data,
	})); err != nil {
		log.Printf("[VoiceHub] failed to relay signal to %s: %v", p.To, err)
	}
}

// broadcastParticipants sends the full current participant list to
// every member of the room
func (h *VoiceHub) broadcastParticipants(roomID string) {
	h.mu.RLock()
	participants := make([]VoiceParticipant, 0, len(h.rooms[roomID]))
	for _, conn := range h.rooms[roomID] {
		participants = append(participants, VoiceParticipant{
			PeerID: conn.ID(),
			Name:   conn.Name(),
		})
	}
	h.mu.RUnlock()

	// map iteration order is random; keep the list stable for clients
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].PeerID < participants[j].PeerID
	})

	h.broadcast(roomID, "", newEvent("voice:participants:update", VoiceParticipantsPayload{
		Participants: participants,
	}))
}

// broadcast sends an event to every member of a room except excludeID
func (h *VoiceHub) broadcast(roomID, excludeID string, ev Event) {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[roomID]))
	for connID, conn := range h.rooms[roomID] {
		if connID == excludeID {
			continue
		}
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(ev); err != nil {
			log.Printf("[VoiceHub] failed to send %s to %s: %v", ev.Type, conn.ID(), err)
		}
	}
}

// ParticipantCount returns the number of connections in a room
func (h *VoiceHub) ParticipantCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

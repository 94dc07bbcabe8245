package handler

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"collabspace-backend/internal/presence"
)

// cursorColors is the fixed palette cursors are assigned from. The
// assignment must stay stable across sessions, so the palette and the
// hash below cannot change without repainting every returning user.
var cursorColors = [8]string{
	"#ef4444",
	"#f97316",
	"#f59e0b",
	"#22c55e",
	"#06b6d4",
	"#3b82f6",
	"#8b5cf6",
	"#ec4899",
}

// pickColor derives a deterministic cursor color from a user id:
// hash = (hash*31 + byte) mod 2^32 over the UTF-8 bytes, then
// hash mod palette size. Same user, same color, no coordination.
func pickColor(key string) string {
	var hash uint32
	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}
	return cursorColors[hash%uint32(len(cursorColors))]
}

// BoardStore is the authoritative segment store the hub writes through
// to. Append and clear are distinct mutations (not idempotent); both
// return the board's new last-modified time.
type BoardStore interface {
	AppendSegment(ctx context.Context, boardID string, seg Segment) (time.Time, error)
	ClearSegments(ctx context.Context, boardID string) (time.Time, error)
}

// BoardHub coordinates the shared whiteboards: per-board broadcast
// groups, draw relay + write-through persistence, and rate-limited
// cursor fan-out. Relay always wins over durability: a failed store
// write is logged and swallowed, never surfaced to the room.
type BoardHub struct {
	mu         sync.RWMutex
	rooms      map[string]map[string]Conn // boardID -> connID -> conn
	lastCursor map[string]time.Time       // connID -> last relayed cursorMove

	registry   *presence.Registry
	store      BoardStore
	throttle   time.Duration
	staleAfter time.Duration

	now func() time.Time
}

// NewBoardHub creates a hub around an injected presence registry and store
func NewBoardHub(registry *presence.Registry, store BoardStore, throttle, staleAfter time.Duration) *BoardHub {
	return &BoardHub{
		rooms:      make(map[string]map[string]Conn),
		lastCursor: make(map[string]time.Time),
		registry:   registry,
		store:      store,
		throttle:   throttle,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Join adds a connection to a board's broadcast group, assigns its
// deterministic cursor color and announces the new cursor identity to
// the other members. Missing boardId is silently ignored.
func (h *BoardHub) Join(c Conn, boardID, nameHint string) {
	if boardID == "" {
		return
	}

	name := nameHint
	if name == "" {
		name = c.Name()
	}
	userID := strconv.FormatInt(c.UserID(), 10)
	color := pickColor(userID)

	// a connection tracks one board at a time; joining another board
	// implicitly leaves the previous one
	if meta, ok := h.registry.Get(c.ID()); ok && meta.BoardID != boardID {
		h.Leave(c)
	}

	h.mu.Lock()
	if h.rooms[boardID] == nil {
		h.rooms[boardID] = make(map[string]Conn)
	}
	h.rooms[boardID][c.ID()] = c
	h.mu.Unlock()

	h.registry.Set(c.ID(), presence.Meta{
		BoardID:    boardID,
		UserID:     c.UserID(),
		Name:       name,
		Color:      color,
		LastSeenAt: h.now(),
	})

	h.broadcast(boardID, c.ID(), newEvent("cursorJoin", CursorJoinPayload{
		UserID: userID,
		Name:   name,
		Color:  color,
	}))

	log.Printf("[BoardHub] %s (%s) joined board %s", name, c.ID(), boardID)
}

// Draw relays one segment to every other member of the board, then
// persists it in the background. Peers see the stroke immediately; the
// room gets a "saved" confirmation only if the write lands.
func (h *BoardHub) Draw(c Conn, boardID string, seg *Segment) {
	if boardID == "" || seg == nil {
		return
	}

	h.broadcast(boardID, c.ID(), newEvent("draw", DrawRelayPayload{Segment: *seg}))

	go h.persist(boardID, func(ctx context.Context) (time.Time, error) {
		return h.store.AppendSegment(ctx, boardID, *seg)
	})
}

// Clear relays the destructive reset to the whole room, then empties
// the persisted sequence in the background. There is no undo.
func (h *BoardHub) Clear(c Conn, boardID string) {
	if boardID == "" {
		return
	}

	h.broadcast(boardID, "", newEvent("cleared", nil))

	go h.persist(boardID, func(ctx context.Context) (time.Time, error) {
		return h.store.ClearSegments(ctx, boardID)
	})
}

// persist runs one store mutation and broadcasts the save confirmation
// to the whole room on success. Failures are logged and swallowed.
func (h *BoardHub) persist(boardID string, op func(context.Context) (time.Time, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updatedAt, err := op(ctx)
	if err != nil {
		log.Printf("[BoardHub] autosave failed for board %s: %v", boardID, err)
		return
	}

	h.broadcast(boardID, "", newEvent("saved", SavedPayload{
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339Nano),
	}))
}

// Move relays the sender's pointer position to its board peers, rate
// limited per connection. Moves from connections that never joined, or
// for the wrong board, are silently dropped.
func (h *BoardHub) Move(c Conn, boardID string, x, y float64) {
	if boardID == "" {
		return
	}

	meta, ok := h.registry.Get(c.ID())
	if !ok || meta.BoardID != boardID {
		return
	}

	now := h.now()

	h.mu.Lock()
	if last, ok := h.lastCursor[c.ID()]; ok && now.Sub(last) < h.throttle {
		h.mu.Unlock()
		h.registry.Touch(c.ID(), now)
		return
	}
	h.lastCursor[c.ID()] = now
	h.mu.Unlock()

	h.registry.Touch(c.ID(), now)

	h.broadcast(boardID, c.ID(), newEvent("cursorMove", CursorBroadcastPayload{
		UserID: strconv.FormatInt(meta.UserID, 10),
		Name:   meta.Name,
		Color:  meta.Color,
		X:      x,
		Y:      y,
	}))
}

// Leave removes the connection's cursor and tells the remaining
// members it is gone. Safe to call for connections that never joined.
func (h *BoardHub) Leave(c Conn) {
	meta, ok := h.registry.Get(c.ID())
	if !ok {
		return
	}

	h.registry.Delete(c.ID())

	h.mu.Lock()
	if room, exists := h.rooms[meta.BoardID]; exists {
		delete(room, c.ID())
		if len(room) == 0 {
			delete(h.rooms, meta.BoardID)
		}
	}
	delete(h.lastCursor, c.ID())
	h.mu.Unlock()

	h.broadcast(meta.BoardID, c.ID(), newEvent("cursorLeave", CursorLeavePayload{
		UserID: strconv.FormatInt(meta.UserID, 10),
	}))
}

// Disconnect is Leave triggered by transport close
func (h *BoardHub) Disconnect(c Conn) {
	h.Leave(c)
}

// Run sweeps stale cursors until ctx is done. A cursor that has not
// been refreshed within the stale window is announced gone so peers
// drop it even when the leave event was lost; the presence entry stays
// so the user can resume moving later.
func (h *BoardHub) Run(ctx context.Context) {
	interval := h.staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *BoardHub) sweep() {
	cutoff := h.now().Add(-h.staleAfter)
	for connID, meta := range h.registry.Stale(cutoff) {
		h.registry.MarkExpired(connID)
		h.broadcast(meta.BoardID, connID, newEvent("cursorLeave", CursorLeavePayload{
			UserID: strconv.FormatInt(meta.UserID, 10),
		}))
	}
}

// broadcast sends an event to every member of a board except excludeID
// (empty excludeID reaches the whole room). Send errors are logged and
// do not affect other members.
func (h *BoardHub) broadcast(boardID, excludeID string, ev Event) {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[boardID]))
	for connID, conn := range h.rooms[boardID] {
		if connID == excludeID {
			continue
		}
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(ev); err != nil {
			log.Printf("[BoardHub] failed to send %s to %s: %v", ev.Type, conn.ID(), err)
		}
	}
}

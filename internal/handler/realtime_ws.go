package handler

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"collabspace-backend/internal/config"
	"collabspace-backend/internal/model"
	"collabspace-backend/internal/presence"
)

// RealtimeHandler owns the single /ws endpoint: one reader goroutine
// per connection dispatching envelope events to the board hub, the
// voice hub and workspace chat. Every handler degrades to a no-op on
// bad input; nothing here ever closes the connection over a malformed
// event.
type RealtimeHandler struct {
	cfg    *config.Config
	db     *gorm.DB
	boards *BoardHub
	voice  *VoiceHub
	status *presence.StatusManager // nil when Redis is not configured

	membership MembershipChecker

	chatMu    sync.RWMutex
	chatRooms map[string]map[string]Conn // workspaceID -> connID -> conn
}

// NewRealtimeHandler wires the realtime endpoint
func NewRealtimeHandler(cfg *config.Config, db *gorm.DB, boards *BoardHub, voice *VoiceHub, status *presence.StatusManager) *RealtimeHandler {
	return &RealtimeHandler{
		cfg:        cfg,
		db:         db,
		boards:     boards,
		voice:      voice,
		status:     status,
		membership: NewMembershipChecker(db),
		chatRooms:  make(map[string]map[string]Conn),
	}
}

// HandleWebSocket runs one connection's lifetime. Identity was
// resolved at upgrade time and is immutable for the connection.
func (h *RealtimeHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok1 := c.Locals("userId").(int64)
	name, ok2 := c.Locals("userName").(string)
	if !ok1 || !ok2 {
		c.Close()
		return
	}

	conn := newWSConn(uuid.NewString(), userID, name, c, h.cfg.WebSocket.WriteTimeout)
	h.voice.Register(conn)

	if err := conn.Send(newEvent("connected", ConnectedPayload{ConnID: conn.ID()})); err != nil {
		log.Printf("[Realtime] failed to send connected event: %v", err)
	}

	if h.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.status.SetOnline(ctx, userID); err != nil {
			log.Printf("[Realtime] failed to set online status for user %d: %v", userID, err)
		}
		cancel()
	}

	log.Printf("[Realtime] connection %s opened (user %d, %s)", conn.ID(), userID, name)

	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(userID, heartbeatDone)

	defer func() {
		close(heartbeatDone)

		h.boards.Disconnect(conn)
		h.voice.Disconnect(conn)
		h.leaveAllChat(conn)

		if h.status != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.status.SetOffline(ctx, userID); err != nil {
				log.Printf("[Realtime] failed to clear online status for user %d: %v", userID, err)
			}
			cancel()
		}

		c.Close()
		log.Printf("[Realtime] connection %s closed (user %d)", conn.ID(), userID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var ev Event
		if err := json.Unmarshal(msgBytes, &ev); err != nil {
			continue
		}

		h.dispatch(conn, ev)
	}
}

// dispatch routes one inbound event. Payload decode failures and
// missing fields drop the event silently; this is a best-effort
// realtime channel, not a request/response API.
func (h *RealtimeHandler) dispatch(conn Conn, ev Event) {
	switch ev.Type {
	case "joinBoard":
		var p JoinBoardPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.boards.Join(conn, p.BoardID, p.User.Name)

	case "draw":
		var p DrawPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.boards.Draw(conn, p.BoardID, p.Segment)

	case "clearBoard":
		var p ClearBoardPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.boards.Clear(conn, p.BoardID)

	case "cursorMove":
		var p CursorMovePayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.boards.Move(conn, p.BoardID, p.X, p.Y)

	case "cursorLeave":
		h.boards.Leave(conn)

	case "voice:join":
		var p VoiceJoinPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ok, msg := h.voice.Join(ctx, conn, p.RoomID)
		cancel()
		h.ack(conn, ev, ok, msg)

	case "voice:leave":
		var p VoiceJoinPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.voice.Leave(conn, p.RoomID)
		h.ack(conn, ev, true, "")

	case "voice:signal":
		var p VoiceSignalPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		h.voice.Signal(conn, &p)

	case "workspace:join":
		var p WorkspaceJoinPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		ok, msg := h.joinChat(conn, p.WorkspaceID)
		h.ack(conn, ev, ok, msg)

	case "chat:send":
		var p ChatSendPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return
		}
		ok, msg := h.sendChat(conn, &p)
		h.ack(conn, ev, ok, msg)
	}
}

// ack replies to an acknowledged request; events sent without an ackId
// get no reply
func (h *RealtimeHandler) ack(conn Conn, ev Event, ok bool, msg string) {
	if ev.AckID == 0 {
		return
	}
	if err := conn.Send(newAck(ev.AckID, ok, msg)); err != nil {
		log.Printf("[Realtime] failed to ack %s: %v", ev.Type, err)
	}
}

// runHeartbeat refreshes the online-status TTL while the connection lives
func (h *RealtimeHandler) runHeartbeat(userID int64, done <-chan struct{}) {
	if h.status == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.status.Heartbeat(ctx, userID); err != nil {
				log.Printf("[Realtime] heartbeat failed for user %d: %v", userID, err)
			}
			cancel()
		}
	}
}

// joinChat subscribes a connection to its workspace chat room after a
// membership check
func (h *RealtimeHandler) joinChat(conn Conn, workspaceID string) (bool, string) {
	if workspaceID == "" {
		return false, "Workspace id is required"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	member, err := h.membership.IsMember(ctx, workspaceID, conn.UserID())
	if err != nil {
		log.Printf("[Chat] membership check failed for workspace %s: %v", workspaceID, err)
		return false, "Join failed"
	}
	if !member {
		return false, "Not a member of this workspace"
	}

	h.chatMu.Lock()
	if h.chatRooms[workspaceID] == nil {
		h.chatRooms[workspaceID] = make(map[string]Conn)
	}
	h.chatRooms[workspaceID][conn.ID()] = conn
	h.chatMu.Unlock()

	return true, ""
}

// sendChat persists a message and broadcasts it to the workspace room
// (sender included, so every client renders from the same event)
func (h *RealtimeHandler) sendChat(conn Conn, p *ChatSendPayload) (bool, string) {
	text := truncateMessage(p.Text, maxMessageBytes)
	if text == "" {
		return false, "Empty message"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	member, err := h.membership.IsMember(ctx, p.WorkspaceID, conn.UserID())
	if err != nil {
		return false, "Send failed"
	}
	if !member {
		return false, "Not a member of this workspace"
	}

	workspaceID, err := strconv.ParseInt(p.WorkspaceID, 10, 64)
	if err != nil {
		return false, "Invalid workspace id"
	}

	msg := model.Message{
		WorkspaceID: workspaceID,
		SenderID:    conn.UserID(),
		Text:        text,
	}
	if err := h.db.WithContext(ctx).Create(&msg).Error; err != nil {
		log.Printf("[Chat] failed to persist message: %v", err)
		return false, "Send failed"
	}

	h.broadcastChat(p.WorkspaceID, newEvent("chat:new", ChatNewPayload{
		ID:          msg.ID,
		WorkspaceID: p.WorkspaceID,
		SenderID:    strconv.FormatInt(conn.UserID(), 10),
		SenderName:  conn.Name(),
		Text:        text,
		CreatedAt:   msg.CreatedAt.UTC().Format(time.RFC3339),
	}))

	return true, ""
}

const maxMessageBytes = 2000

// truncateMessage caps a chat message at limit bytes without splitting
// a multi-byte rune
func truncateMessage(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (h *RealtimeHandler) broadcastChat(workspaceID string, ev Event) {
	h.chatMu.RLock()
	members := make([]Conn, 0, len(h.chatRooms[workspaceID]))
	for _, conn := range h.chatRooms[workspaceID] {
		members = append(members, conn)
	}
	h.chatMu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(ev); err != nil {
			log.Printf("[Chat] failed to send to %s: %v", conn.ID(), err)
		}
	}
}

func (h *RealtimeHandler) leaveAllChat(conn Conn) {
	h.chatMu.Lock()
	defer h.chatMu.Unlock()

	for workspaceID, room := range h.chatRooms {
		delete(room, conn.ID())
		if len(room) == 0 {
			delete(h.chatRooms, workspaceID)
		}
	}
}

package handler

import (
	"encoding/json"
	"log"
)

// Event is the wire envelope for every realtime message, both
// directions. AckID links an acknowledged request ("voice:join",
// "workspace:join", "chat:send") to its "ack" reply.
type Event struct {
	Type    string          `json:"type"`
	AckID   int64           `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is a live authenticated connection as the hubs see it. The
// production implementation wraps a websocket connection; tests use
// in-memory fakes.
type Conn interface {
	ID() string
	UserID() int64
	Name() string
	Send(ev Event) error
	Close() error
}

// newEvent builds an outbound event; marshal failures are logged and
// produce an empty payload rather than surfacing to the sender.
func newEvent(eventType string, payload any) Event {
	if payload == nil {
		return Event{Type: eventType}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] Failed to marshal %s payload: %v", eventType, err)
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Payload: data}
}

// newAck builds an acknowledgment reply for a request event
func newAck(ackID int64, ok bool, message string) Event {
	ev := newEvent("ack", AckPayload{OK: ok, Message: message})
	ev.AckID = ackID
	return ev
}

// ConnectedPayload server -> client, first event after the upgrade.
// ConnID doubles as the client's voice peer id, which the offerer rule
// compares against remote peer ids.
type ConnectedPayload struct {
	ConnID string `json:"connId"`
}

// AckPayload structured acknowledgment body
type AckPayload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Segment is the atomic whiteboard mutation: one immutable line.
type Segment struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// JoinBoardPayload client -> server: enter a board's broadcast group
type JoinBoardPayload struct {
	BoardID string `json:"boardId"`
	User    struct {
		Name string `json:"name"`
	} `json:"user"`
}

// DrawPayload client -> server: one drawn segment
type DrawPayload struct {
	BoardID string   `json:"boardId"`
	Segment *Segment `json:"segment"`
}

// DrawRelayPayload server -> peers
type DrawRelayPayload struct {
	Segment Segment `json:"segment"`
}

// ClearBoardPayload client -> server: destructive board reset
type ClearBoardPayload struct {
	BoardID string `json:"boardId"`
}

// SavedPayload server -> room after a successful store write
type SavedPayload struct {
	UpdatedAt string `json:"updatedAt"`
}

// CursorMovePayload client -> server pointer position
type CursorMovePayload struct {
	BoardID string  `json:"boardId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// CursorJoinPayload server -> peers: a new cursor identity (no position yet)
type CursorJoinPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// CursorBroadcastPayload server -> peers: a cursor position update
type CursorBroadcastPayload struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// CursorLeavePayload server -> peers: a cursor is gone
type CursorLeavePayload struct {
	UserID string `json:"userId"`
}

// VoiceJoinPayload client -> server: join/leave a voice room
type VoiceJoinPayload struct {
	RoomID string `json:"roomId"`
}

// VoiceSignalPayload client -> server: opaque negotiation data for one peer
type VoiceSignalPayload struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// VoiceSignalRelayPayload server -> target peer
type VoiceSignalRelayPayload struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// VoiceParticipant one entry of the full participant list
type VoiceParticipant struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name"`
}

// VoiceParticipantsPayload server -> room: the full current list
type VoiceParticipantsPayload struct {
	Participants []VoiceParticipant `json:"participants"`
}

// VoicePeerPayload server -> room: one peer joined or left
type VoicePeerPayload struct {
	PeerID string `json:"peerId"`
	Name   string `json:"name,omitempty"`
}

// WorkspaceJoinPayload client -> server: subscribe to workspace chat
type WorkspaceJoinPayload struct {
	WorkspaceID string `json:"workspaceId"`
}

// ChatSendPayload client -> server: post a chat message
type ChatSendPayload struct {
	WorkspaceID string `json:"workspaceId"`
	Text        string `json:"text"`
}

// ChatNewPayload server -> workspace room: a persisted chat message
type ChatNewPayload struct {
	ID          int64  `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	CreatedAt   string `json:"createdAt"`
}

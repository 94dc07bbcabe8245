package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabspace-backend/internal/presence"
)

func newTestBoardHub(store BoardStore) (*BoardHub, *presence.Registry) {
	registry := presence.NewRegistry()
	hub := NewBoardHub(registry, store, 30*time.Millisecond, 8*time.Second)
	return hub, registry
}

func TestPickColor(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "single digit id", key: "1", want: "#f97316"},
		{name: "two digit id", key: "42", want: "#8b5cf6"},
		{name: "id seven", key: "7", want: "#ec4899"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickColor(tt.key))
			// stable across calls
			assert.Equal(t, pickColor(tt.key), pickColor(tt.key))
		})
	}
}

func TestPickColorSameUserTwoConnections(t *testing.T) {
	hub, registry := newTestBoardHub(newFakeStore(time.Now()))

	first := newMockConn("conn-a", 7, "anna")
	second := newMockConn("conn-b", 7, "anna")
	hub.Join(first, "b1", "")
	hub.Join(second, "b1", "")

	metaA, ok := registry.Get("conn-a")
	require.True(t, ok)
	metaB, ok := registry.Get("conn-b")
	require.True(t, ok)
	assert.Equal(t, metaA.Color, metaB.Color, "color follows the user id, not the connection")
}

func TestJoinAnnouncesCursorToOthers(t *testing.T) {
	hub, _ := newTestBoardHub(newFakeStore(time.Now()))

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")

	joins := c1.EventsOfType("cursorJoin")
	require.Len(t, joins, 1)
	p := decodePayload[CursorJoinPayload](joins[0])
	assert.Equal(t, "2", p.UserID)
	assert.Equal(t, "ben", p.Name)
	assert.Equal(t, pickColor("2"), p.Color)

	// the joiner itself gets no announcement
	assert.Empty(t, c2.EventsOfType("cursorJoin"))
}

func TestJoinSecondBoardLeavesFirst(t *testing.T) {
	hub, registry := newTestBoardHub(newFakeStore(time.Now()))

	c1 := newMockConn("conn-1", 1, "anna")
	peer := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(peer, "b1", "")
	peer.Reset()

	hub.Join(c1, "b2", "")

	meta, ok := registry.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "b2", meta.BoardID)

	leaves := peer.EventsOfType("cursorLeave")
	require.Len(t, leaves, 1)
	assert.Equal(t, "1", decodePayload[CursorLeavePayload](leaves[0]).UserID)
}

func TestDrawRelaysToOthersAndSavesToAll(t *testing.T) {
	savedAt := time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)
	store := newFakeStore(savedAt)
	hub, _ := newTestBoardHub(store)

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c1.Reset()
	c2.Reset()

	seg := Segment{X0: 1, Y0: 2, X1: 3, Y1: 4, Color: "#ef4444", Width: 2}
	hub.Draw(c1, "b1", &seg)

	relays := c2.EventsOfType("draw")
	require.Len(t, relays, 1)
	assert.Equal(t, seg, decodePayload[DrawRelayPayload](relays[0]).Segment)
	assert.Empty(t, c1.EventsOfType("draw"), "sender does not get its own stroke back")

	// persistence runs in the background; the save confirmation reaches
	// the whole room, sender included
	require.Eventually(t, func() bool {
		return len(c1.EventsOfType("saved")) == 1 && len(c2.EventsOfType("saved")) == 1
	}, time.Second, 5*time.Millisecond)

	saved := decodePayload[SavedPayload](c1.EventsOfType("saved")[0])
	assert.Equal(t, savedAt.Format(time.RFC3339Nano), saved.UpdatedAt)

	require.Eventually(t, func() bool { return store.Appended() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Segment{seg}, store.Segments("b1"))
}

func TestDrawValidation(t *testing.T) {
	store := newFakeStore(time.Now())
	hub, _ := newTestBoardHub(store)

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c2.Reset()

	hub.Draw(c1, "", &Segment{X0: 1})
	hub.Draw(c1, "b1", nil)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c2.Events())
	assert.Zero(t, store.Appended())
}

func TestDrawStoreFailureSkipsSaved(t *testing.T) {
	store := newFakeStore(time.Now())
	store.failNext = true
	hub, _ := newTestBoardHub(store)

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c2.Reset()

	hub.Draw(c1, "b1", &Segment{X0: 1, Y0: 1, X1: 2, Y1: 2})

	// relay happens regardless of the write outcome
	require.Eventually(t, func() bool {
		return len(c2.EventsOfType("draw")) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c2.EventsOfType("saved"))
}

func TestClearReachesWholeRoom(t *testing.T) {
	savedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := newFakeStore(savedAt)
	hub, _ := newTestBoardHub(store)

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")

	hub.Draw(c1, "b1", &Segment{X0: 1})
	require.Eventually(t, func() bool {
		return len(c1.EventsOfType("saved")) == 1 && len(c2.EventsOfType("saved")) == 1
	}, time.Second, 5*time.Millisecond)
	c1.Reset()
	c2.Reset()

	hub.Clear(c1, "b1")

	// clear is broadcast to everyone, the issuer included
	assert.Len(t, c1.EventsOfType("cleared"), 1)
	assert.Len(t, c2.EventsOfType("cleared"), 1)

	require.Eventually(t, func() bool { return store.Cleared() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Segments("b1"))

	require.Eventually(t, func() bool {
		return len(c1.EventsOfType("saved")) == 1 && len(c2.EventsOfType("saved")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMoveRequiresPresence(t *testing.T) {
	hub, _ := newTestBoardHub(newFakeStore(time.Now()))

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c2, "b1", "")
	c2.Reset()

	// never joined
	hub.Move(c1, "b1", 10, 20)
	assert.Empty(t, c2.EventsOfType("cursorMove"))

	// joined a different board
	hub.Join(c1, "b2", "")
	c2.Reset()
	hub.Move(c1, "b1", 10, 20)
	assert.Empty(t, c2.EventsOfType("cursorMove"))
}

func TestMoveRelayAndThrottle(t *testing.T) {
	hub, _ := newTestBoardHub(newFakeStore(time.Now()))
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := base
	hub.now = func() time.Time { return now }

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c1.Reset()
	c2.Reset()

	hub.Move(c1, "b1", 10, 20)
	moves := c2.EventsOfType("cursorMove")
	require.Len(t, moves, 1)
	p := decodePayload[CursorBroadcastPayload](moves[0])
	assert.Equal(t, "1", p.UserID)
	assert.Equal(t, "anna", p.Name)
	assert.Equal(t, pickColor("1"), p.Color)
	assert.Equal(t, 10.0, p.X)
	assert.Equal(t, 20.0, p.Y)
	assert.Empty(t, c1.EventsOfType("cursorMove"), "sender does not get its own cursor back")

	// inside the throttle window: dropped
	now = base.Add(10 * time.Millisecond)
	hub.Move(c1, "b1", 11, 21)
	assert.Len(t, c2.EventsOfType("cursorMove"), 1)

	// past the window: relayed again
	now = base.Add(40 * time.Millisecond)
	hub.Move(c1, "b1", 12, 22)
	assert.Len(t, c2.EventsOfType("cursorMove"), 2)
}

func TestSweepAnnouncesStaleCursorsOnce(t *testing.T) {
	hub, registry := newTestBoardHub(newFakeStore(time.Now()))
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := base
	hub.now = func() time.Time { return now }

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c2.Reset()

	// c2 stays fresh, c1 goes idle
	now = base.Add(9 * time.Second)
	hub.Move(c2, "b1", 1, 1)

	hub.sweep()

	leaves := c2.EventsOfType("cursorLeave")
	require.Len(t, leaves, 1)
	assert.Equal(t, "1", decodePayload[CursorLeavePayload](leaves[0]).UserID)

	meta, ok := registry.Get("conn-1")
	require.True(t, ok, "presence entry survives the sweep")
	assert.True(t, meta.Expired)

	// already announced: the next sweep is silent
	hub.sweep()
	assert.Len(t, c2.EventsOfType("cursorLeave"), 1)

	// moving again revives the cursor
	c2.Reset()
	now = now.Add(time.Second)
	hub.Move(c1, "b1", 5, 5)
	meta, _ = registry.Get("conn-1")
	assert.False(t, meta.Expired)
	assert.Len(t, c2.EventsOfType("cursorMove"), 1)
}

func TestLeaveCleansUp(t *testing.T) {
	hub, registry := newTestBoardHub(newFakeStore(time.Now()))

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c2.Reset()

	hub.Leave(c1)

	_, ok := registry.Get("conn-1")
	assert.False(t, ok)

	leaves := c2.EventsOfType("cursorLeave")
	require.Len(t, leaves, 1)
	assert.Equal(t, "1", decodePayload[CursorLeavePayload](leaves[0]).UserID)

	// leaving again is a no-op
	hub.Leave(c1)
	assert.Len(t, c2.EventsOfType("cursorLeave"), 1)

	// moves after leave are dropped
	c2.Reset()
	hub.Move(c1, "b1", 1, 1)
	assert.Empty(t, c2.Events())
}

func TestDisconnectActsAsLeave(t *testing.T) {
	hub, registry := newTestBoardHub(newFakeStore(time.Now()))

	c1 := newMockConn("conn-1", 1, "anna")
	c2 := newMockConn("conn-2", 2, "ben")
	hub.Join(c1, "b1", "")
	hub.Join(c2, "b1", "")
	c2.Reset()

	hub.Disconnect(c1)

	_, ok := registry.Get("conn-1")
	assert.False(t, ok)
	assert.Len(t, c2.EventsOfType("cursorLeave"), 1)
}

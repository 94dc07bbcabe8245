package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// mockConn collects sent events in memory
type mockConn struct {
	id     string
	userID int64
	name   string

	mu     sync.Mutex
	events []Event
}

func newMockConn(id string, userID int64, name string) *mockConn {
	return &mockConn{id: id, userID: userID, name: name}
}

func (m *mockConn) ID() string    { return m.id }
func (m *mockConn) UserID() int64 { return m.userID }
func (m *mockConn) Name() string  { return m.name }
func (m *mockConn) Close() error  { return nil }

func (m *mockConn) Send(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockConn) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *mockConn) EventsOfType(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (m *mockConn) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func decodePayload[T any](ev Event) T {
	var out T
	_ = json.Unmarshal(ev.Payload, &out)
	return out
}

// fakeStore is an in-memory BoardStore
type fakeStore struct {
	mu       sync.Mutex
	segments map[string][]Segment
	appended int
	cleared  int
	failNext bool
	saveTime time.Time
}

func newFakeStore(saveTime time.Time) *fakeStore {
	return &fakeStore{segments: make(map[string][]Segment), saveTime: saveTime}
}

func (s *fakeStore) AppendSegment(_ context.Context, boardID string, seg Segment) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return time.Time{}, context.DeadlineExceeded
	}
	s.segments[boardID] = append(s.segments[boardID], seg)
	s.appended++
	return s.saveTime, nil
}

func (s *fakeStore) ClearSegments(_ context.Context, boardID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return time.Time{}, context.DeadlineExceeded
	}
	delete(s.segments, boardID)
	s.cleared++
	return s.saveTime, nil
}

func (s *fakeStore) Appended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appended
}

func (s *fakeStore) Cleared() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

func (s *fakeStore) Segments(boardID string) []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments[boardID]))
	copy(out, s.segments[boardID])
	return out
}

// fakeMembership answers membership checks from a fixed allow set
type fakeMembership struct {
	allowed map[string]map[int64]bool // roomID -> userID -> member
	err     error
}

func (f *fakeMembership) IsMember(_ context.Context, roomID string, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[roomID][userID], nil
}

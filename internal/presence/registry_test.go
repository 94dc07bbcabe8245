package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySetGetDelete(t *testing.T) {
	r := NewRegistry()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	meta := Meta{BoardID: "b1", UserID: 7, Name: "anna", Color: "#ef4444", LastSeenAt: now}
	r.Set("conn-1", meta)

	got, ok := r.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, meta, got)
	assert.Equal(t, 1, r.Len())

	// replacing is a full overwrite
	meta.BoardID = "b2"
	r.Set("conn-1", meta)
	got, _ = r.Get("conn-1")
	assert.Equal(t, "b2", got.BoardID)
	assert.Equal(t, 1, r.Len())

	r.Delete("conn-1")
	_, ok = r.Get("conn-1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	// deleting again is fine
	r.Delete("conn-1")
}

func TestRegistryTouch(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	r.Set("conn-1", Meta{BoardID: "b1", LastSeenAt: base, Expired: true})

	later := base.Add(5 * time.Second)
	assert.True(t, r.Touch("conn-1", later))

	got, _ := r.Get("conn-1")
	assert.Equal(t, later, got.LastSeenAt)
	assert.False(t, got.Expired, "touch revives an expired entry")

	assert.False(t, r.Touch("conn-missing", later))
}

func TestRegistryStale(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	r.Set("fresh", Meta{BoardID: "b1", LastSeenAt: base.Add(10 * time.Second)})
	r.Set("idle", Meta{BoardID: "b1", UserID: 3, LastSeenAt: base})
	r.Set("announced", Meta{BoardID: "b1", LastSeenAt: base, Expired: true})

	stale := r.Stale(base.Add(8 * time.Second))
	require.Len(t, stale, 1)
	assert.Equal(t, int64(3), stale["idle"].UserID)

	// marking takes the entry out of future sweeps but keeps it live
	r.MarkExpired("idle")
	assert.Empty(t, r.Stale(base.Add(8*time.Second)))
	assert.Equal(t, 3, r.Len())

	// marking an unknown id is a no-op
	r.MarkExpired("conn-missing")
}

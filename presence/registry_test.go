package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndRoomTracking(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "alice", "conn-1")

	assert.Equal(t, "", r.CurrentRoom("u1"))
	assert.Equal(t, 1, r.Online())

	r.SetCurrentRoom("u1", "general")
	assert.Equal(t, "general", r.CurrentRoom("u1"))

	entry, ok := r.Lookup("u1")
	assert.True(t, ok)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "conn-1", entry.Conn)
}

func TestReRegisterReplacesEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "alice", "conn-1")
	r.SetCurrentRoom("u1", "general")

	// a new connection replaces the old entry, room resets
	r.Register("u1", "alice", "conn-2")
	assert.Equal(t, "", r.CurrentRoom("u1"))
	assert.Equal(t, 1, r.Online())
}

func TestUnregisterReturnsPreviousRoom(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "alice", "conn-1")
	r.SetCurrentRoom("u1", "general")

	assert.Equal(t, "general", r.Unregister("u1"))
	assert.Equal(t, 0, r.Online())
	assert.Equal(t, "", r.Unregister("u1")) // already gone

	_, ok := r.Lookup("u1")
	assert.False(t, ok)
}

func TestSetCurrentRoomOnMissingEntryIsNoop(t *testing.T) {
	r := NewRegistry()
	r.SetCurrentRoom("ghost", "general")
	assert.Equal(t, "", r.CurrentRoom("ghost"))
	assert.Equal(t, 0, r.Online())
}

// Package presence tracks which identities are connected and which room
// they are currently in. Entries are ephemeral and never persisted; the
// registry is the single source of truth for "who is online, where".
package presence

import "sync"

// Entry is the process-local record of one live connection. Conn is an
// opaque handle owned by the transport layer.
type Entry struct {
	Conn     interface{}
	Username string
	RoomId   string
}

// Registry maps identity id -> Entry. At most one entry exists per
// identity: a new connection replaces the old entry outright.
//
// The hub dispatch loop is the only writer, but REST handlers and the
// admin CLI read concurrently, hence the mutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register inserts or overwrites the entry for this identity with no
// current room.
func (r *Registry) Register(userId, username string, conn interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userId] = Entry{Conn: conn, Username: username}
}

// CurrentRoom returns the identity's current room id, or "" if the
// identity is offline or in no room.
func (r *Registry) CurrentRoom(userId string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[userId].RoomId
}

// SetCurrentRoom updates the entry in place. A missing entry is a no-op
// (the connection raced with its own disconnect).
func (r *Registry) SetCurrentRoom(userId, roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userId]
	if !ok {
		return
	}
	entry.RoomId = roomId
	r.entries[userId] = entry
}

// Unregister removes the entry and returns the room the identity was in,
// or "" if none.
func (r *Registry) Unregister(userId string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userId]
	if !ok {
		return ""
	}
	delete(r.entries, userId)
	return entry.RoomId
}

// Lookup returns the entry for an identity if one exists.
func (r *Registry) Lookup(userId string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userId]
	return entry, ok
}

// Online returns the number of live entries.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

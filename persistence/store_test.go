package persistence

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both backends must satisfy the same contract, so every test runs
// against both.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	bunt, err := NewBuntStore(&config.Config{Persistence: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() { bunt.Close() })

	gormStore, err := NewGormStore(&config.Config{Persistence: config.PersistenceConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	}})
	require.NoError(t, err)
	t.Cleanup(func() { gormStore.Close() })

	return map[string]Store{"buntdb": bunt, "gorm": gormStore}
}

func TestUserRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			user := &types.User{Id: "u1", Username: "alice", PasswordHash: "x", CreatedAt: time.Now()}
			require.NoError(t, store.CreateUser(user))

			got, err := store.GetUser("u1")
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Username)

			byName, err := store.GetUserByUsername("alice")
			require.NoError(t, err)
			assert.Equal(t, "u1", byName.Id)

			_, err = store.GetUser("nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.GetUserByUsername("nope")
			assert.ErrorIs(t, err, ErrNotFound)

			got.IsOnline = true
			got.LastSeen = time.Now()
			require.NoError(t, store.SaveUser(got))
			again, err := store.GetUser("u1")
			require.NoError(t, err)
			assert.True(t, again.IsOnline)
		})
	}
}

func TestRoomMembershipAndActivity(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now()
			older := &types.Room{Id: "r1", Name: "general", CreatedById: "u1", Members: []string{"u1"},
				IsActive: true, LastActivity: now.Add(-time.Hour), CreatedAt: now}
			newer := &types.Room{Id: "r2", Name: "random", CreatedById: "u1", Members: []string{"u1"},
				IsActive: true, LastActivity: now, CreatedAt: now}
			inactive := &types.Room{Id: "r3", Name: "archive", CreatedById: "u1",
				IsActive: false, LastActivity: now, CreatedAt: now}
			require.NoError(t, store.CreateRoom(older))
			require.NoError(t, store.CreateRoom(newer))
			require.NoError(t, store.CreateRoom(inactive))

			rooms, err := store.ActiveRooms()
			require.NoError(t, err)
			require.Len(t, rooms, 2)
			assert.Equal(t, "r2", rooms[0].Id) // most recent activity first
			assert.Equal(t, "r1", rooms[1].Id)

			byName, err := store.GetRoomByName("general")
			require.NoError(t, err)
			assert.Equal(t, "r1", byName.Id)
			assert.Equal(t, []string{"u1"}, byName.Members)

			require.NoError(t, store.AddRoomMember("r1", "u2"))
			require.NoError(t, store.AddRoomMember("r1", "u2")) // idempotent
			room, err := store.GetRoom("r1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"u1", "u2"}, room.Members)
		})
	}
}

func TestRoomDeactivationKeepsMessages(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			room := &types.Room{Id: "r1", Name: "general", CreatedById: "u1", IsActive: true,
				LastActivity: time.Now(), CreatedAt: time.Now()}
			require.NoError(t, store.CreateRoom(room))
			require.NoError(t, store.CreateMessage(&types.Message{
				Id: "m1", Content: "hello", SenderId: "u1", SenderUsername: "alice",
				RoomId: "r1", MessageType: types.MessageTypeText, Timestamp: time.Now(),
			}))

			room.IsActive = false
			require.NoError(t, store.SaveRoom(room))

			got, err := store.GetRoom("r1")
			require.NoError(t, err)
			assert.False(t, got.IsActive)

			msgs, err := store.LatestRoomMessages("r1", 50)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, "hello", msgs[0].Content)
		})
	}
}

func TestMessagePagination(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Minute)
			for i := 0; i < 7; i++ {
				require.NoError(t, store.CreateMessage(&types.Message{
					Id:             fmt.Sprintf("m%d", i),
					Content:        fmt.Sprintf("msg %d", i),
					SenderId:       "u1",
					SenderUsername: "alice",
					RoomId:         "r1",
					MessageType:    types.MessageTypeText,
					Timestamp:      base.Add(time.Duration(i) * time.Second),
				}))
			}

			count, err := store.CountRoomMessages("r1")
			require.NoError(t, err)
			assert.Equal(t, 7, count)

			// page 1 holds the 3 most recent, oldest first within the page
			page1, err := store.RoomMessages("r1", 1, 3)
			require.NoError(t, err)
			require.Len(t, page1, 3)
			assert.Equal(t, "msg 4", page1[0].Content)
			assert.Equal(t, "msg 6", page1[2].Content)

			page3, err := store.RoomMessages("r1", 3, 3)
			require.NoError(t, err)
			require.Len(t, page3, 1)
			assert.Equal(t, "msg 0", page3[0].Content)

			latest, err := store.LatestRoomMessages("r1", 50)
			require.NoError(t, err)
			require.Len(t, latest, 7)
			assert.Equal(t, "msg 0", latest[0].Content)
			assert.Equal(t, "msg 6", latest[6].Content)

			other, err := store.RoomMessages("other", 1, 10)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

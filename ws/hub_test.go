package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/presence"
	"github.com/huddlechat/huddle/ratelimit"
	"github.com/huddlechat/huddle/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The handlers run single-threaded in the dispatch loop, so the tests
// call them directly and inspect the clients' send buffers.

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	store, err := persistence.NewBuntStore(&config.Config{Persistence: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewHub(store, presence.NewRegistry(), ratelimit.NewLimiter(time.Second, 5))
}

func connectUser(t *testing.T, h *Hub, id, username string) *Client {
	t.Helper()
	user := &types.User{Id: id, Username: username, CreatedAt: time.Now()}
	require.NoError(t, h.store.CreateUser(user))
	c := &Client{hub: h, user: user, Send: make(chan []byte, sendChannelSize)}
	h.registerClient(c)
	return c
}

func makeRoom(t *testing.T, h *Hub, id, name, creatorId string) *types.Room {
	t.Helper()
	room := &types.Room{
		Id: id, Name: name, CreatedById: creatorId, Members: []string{creatorId},
		IsActive: true, LastActivity: time.Now(), CreatedAt: time.Now(),
	}
	require.NoError(t, h.store.CreateRoom(room))
	return room
}

// nextFrame pops one pending frame; fails the test if none is queued.
func nextFrame(t *testing.T, c *Client) (string, json.RawMessage) {
	t.Helper()
	select {
	case raw := <-c.Send:
		frame := types.WebsocketMessage{}
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame.Event, frame.Data
	default:
		t.Fatal("expected a pending frame")
		return "", nil
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func pendingFrames(c *Client) int { return len(c.Send) }

func TestJoinRoomAckAndSystemMessage(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u1")

	h.handleJoinRoom(alice, "r1")
	drain(alice)

	h.handleJoinRoom(bob, "r1")

	// joiner: exactly one ack followed by the system message
	event, data := nextFrame(t, bob)
	require.Equal(t, types.EventRoomJoined, event)
	ack := types.RoomJoinedPayload{}
	require.NoError(t, json.Unmarshal(data, &ack))
	assert.Equal(t, "r1", ack.RoomId)
	assert.Equal(t, "general", ack.RoomName)

	event, data = nextFrame(t, bob)
	require.Equal(t, types.EventNewMessage, event)
	sys := types.NewMessagePayload{}
	require.NoError(t, json.Unmarshal(data, &sys))
	assert.Equal(t, "bob joined the room", sys.Content)
	assert.Equal(t, types.MessageTypeSystem, sys.MessageType)
	assert.Zero(t, pendingFrames(bob))

	// the earlier member sees user-joined plus the same system message
	event, data = nextFrame(t, alice)
	require.Equal(t, types.EventUserJoined, event)
	joined := types.UserPresencePayload{}
	require.NoError(t, json.Unmarshal(data, &joined))
	assert.Equal(t, "bob", joined.Username)
	assert.Equal(t, "u2", joined.UserId)

	event, _ = nextFrame(t, alice)
	assert.Equal(t, types.EventNewMessage, event)
	assert.Zero(t, pendingFrames(alice))

	// membership was persisted
	room, err := h.store.GetRoom("r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, room.Members)
}

func TestJoinUnknownOrInactiveRoom(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")

	h.handleJoinRoom(alice, "nope")
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventError, event)
	perr := types.ErrorPayload{}
	require.NoError(t, json.Unmarshal(data, &perr))
	assert.Equal(t, "Room not found", perr.Message)

	room := makeRoom(t, h, "r1", "general", "u1")
	room.IsActive = false
	require.NoError(t, h.store.SaveRoom(room))
	h.handleJoinRoom(alice, "r1")
	event, _ = nextFrame(t, alice)
	assert.Equal(t, types.EventError, event)
	assert.Equal(t, "", h.registry.CurrentRoom("u1"))
}

func TestRejoinRerunsSideEffects(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")

	h.handleJoinRoom(alice, "r1")
	drain(alice)

	// joining the room you are already in re-runs the ack and the
	// system message
	h.handleJoinRoom(alice, "r1")
	event, _ := nextFrame(t, alice)
	assert.Equal(t, types.EventRoomJoined, event)
	event, _ = nextFrame(t, alice)
	assert.Equal(t, types.EventNewMessage, event)

	count, err := h.store.CountRoomMessages("r1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSwitchingRoomsLeavesSilently(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u1")
	makeRoom(t, h, "r2", "random", "u1")

	h.handleJoinRoom(alice, "r1")
	h.handleJoinRoom(bob, "r1")
	drain(alice)
	drain(bob)

	h.handleJoinRoom(bob, "r2")
	assert.Equal(t, "r2", h.registry.CurrentRoom("u2"))

	// no user-left or "left the room" notice goes to the old room on a
	// switch, only on disconnect
	assert.Zero(t, pendingFrames(alice))
}

func TestSendMessageBroadcastsToAllIncludingSender(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u1")
	h.handleJoinRoom(alice, "r1")
	h.handleJoinRoom(bob, "r1")
	drain(alice)
	drain(bob)

	before, err := h.store.GetRoom("r1")
	require.NoError(t, err)

	h.handleSendMessage(alice, "r1", "hello")

	for _, c := range []*Client{alice, bob} {
		event, data := nextFrame(t, c)
		require.Equal(t, types.EventNewMessage, event)
		msg := types.NewMessagePayload{}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "alice", msg.Sender.Username)
		assert.Equal(t, "alice", msg.SenderUsername)
		assert.True(t, msg.Sender.IsOnline)
		assert.Equal(t, types.MessageTypeText, msg.MessageType)
	}

	// persist-then-broadcast: the message is durable and room activity
	// moved forward
	msgs, err := h.store.LatestRoomMessages("r1", 10)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "hello", last.Content)
	after, err := h.store.GetRoom("r1")
	require.NoError(t, err)
	assert.False(t, after.LastActivity.Before(before.LastActivity))
}

func TestSendRequiresJoinedRoom(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")
	makeRoom(t, h, "r2", "random", "u1")

	// persisted member of r1, but presence says no room joined
	require.NoError(t, h.store.AddRoomMember("r1", "u1"))
	h.handleSendMessage(alice, "r1", "hello")
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventError, event)
	perr := types.ErrorPayload{}
	require.NoError(t, json.Unmarshal(data, &perr))
	assert.Equal(t, "You must join a room before sending messages", perr.Message)

	// joined r2, still cannot send to r1
	h.handleJoinRoom(alice, "r2")
	drain(alice)
	h.handleSendMessage(alice, "r1", "hello")
	event, _ = nextFrame(t, alice)
	assert.Equal(t, types.EventError, event)
}

func TestSendContentBounds(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")
	h.handleJoinRoom(alice, "r1")
	drain(alice)

	h.handleSendMessage(alice, "r1", strings.Repeat("x", 2000))
	event, _ := nextFrame(t, alice)
	assert.Equal(t, types.EventNewMessage, event)

	h.handleSendMessage(alice, "r1", strings.Repeat("x", 2001))
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventError, event)
	perr := types.ErrorPayload{}
	require.NoError(t, json.Unmarshal(data, &perr))
	assert.Equal(t, "Invalid message content", perr.Message)

	h.handleSendMessage(alice, "r1", "   ")
	event, _ = nextFrame(t, alice)
	assert.Equal(t, types.EventError, event)
}

func TestSendRateLimited(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")
	h.handleJoinRoom(alice, "r1")
	drain(alice)

	for i := 0; i < 5; i++ {
		h.handleSendMessage(alice, "r1", fmt.Sprintf("msg %d", i))
		event, _ := nextFrame(t, alice)
		require.Equal(t, types.EventNewMessage, event, "send %d should broadcast", i+1)
	}

	h.handleSendMessage(alice, "r1", "one too many")
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventError, event)
	perr := types.ErrorPayload{}
	require.NoError(t, json.Unmarshal(data, &perr))
	assert.Equal(t, "Too many messages. Please slow down.", perr.Message)

	// denied sends are dropped, not buffered
	count, err := h.store.CountRoomMessages("r1")
	require.NoError(t, err)
	assert.Equal(t, 6, count) // 1 system join + 5 texts
}

func TestSendSanitizesMarkup(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")
	h.handleJoinRoom(alice, "r1")
	drain(alice)

	h.handleSendMessage(alice, "r1", `hi <script>alert(1)</script>there`)
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventNewMessage, event)
	msg := types.NewMessagePayload{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "hi there", msg.Content)
}

func TestTypingGoesToOthersInJoinedRoomOnly(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u1")
	makeRoom(t, h, "r2", "random", "u1")
	h.handleJoinRoom(alice, "r1")
	h.handleJoinRoom(bob, "r1")
	drain(alice)
	drain(bob)

	h.handleTyping(alice, "r1", true)
	event, data := nextFrame(t, bob)
	require.Equal(t, types.EventUserTyping, event)
	typing := types.UserTypingPayload{}
	require.NoError(t, json.Unmarshal(data, &typing))
	assert.Equal(t, "alice", typing.Username)
	assert.True(t, typing.IsTyping)
	assert.Zero(t, pendingFrames(alice), "typing is not echoed to the sender")

	// typing events for rooms the sender has not joined are dropped
	h.handleTyping(alice, "r2", true)
	assert.Zero(t, pendingFrames(alice))
	assert.Zero(t, pendingFrames(bob))
}

func TestGetRoomUsers(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u1")
	h.handleJoinRoom(alice, "r1")
	h.handleJoinRoom(bob, "r1")
	drain(alice)
	drain(bob)
	h.unregisterClient(bob) // bob stays a member but goes offline
	drain(alice)

	h.handleGetRoomUsers(alice, "r1")
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventRoomUsers, event)
	payload := types.RoomUsersPayload{}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "r1", payload.RoomId)
	require.Len(t, payload.Users, 2)
	online := map[string]bool{}
	for _, u := range payload.Users {
		online[u.Username] = u.IsOnline
	}
	assert.True(t, online["alice"])
	assert.False(t, online["bob"])
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u2")
	h.handleJoinRoom(bob, "r1")
	h.handleJoinRoom(alice, "r1")
	drain(alice)
	drain(bob)

	h.unregisterClient(alice)

	event, data := nextFrame(t, bob)
	require.Equal(t, types.EventUserLeft, event)
	left := types.UserPresencePayload{}
	require.NoError(t, json.Unmarshal(data, &left))
	assert.Equal(t, "alice", left.Username)
	assert.Equal(t, "u1", left.UserId)

	event, data = nextFrame(t, bob)
	require.Equal(t, types.EventNewMessage, event)
	sys := types.NewMessagePayload{}
	require.NoError(t, json.Unmarshal(data, &sys))
	assert.Equal(t, "alice left the room", sys.Content)
	assert.Equal(t, types.MessageTypeSystem, sys.MessageType)
	assert.Zero(t, pendingFrames(bob))

	// offline state persisted, presence entry gone
	user, err := h.store.GetUser("u1")
	require.NoError(t, err)
	assert.False(t, user.IsOnline)
	_, ok := h.registry.Lookup("u1")
	assert.False(t, ok)
}

func TestDisconnectWithoutRoomIsSilent(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	bob := connectUser(t, h, "u2", "bob")
	makeRoom(t, h, "r1", "general", "u2")
	h.handleJoinRoom(bob, "r1")
	drain(bob)

	h.unregisterClient(alice)
	assert.Zero(t, pendingFrames(bob))

	count, err := h.store.CountRoomMessages("r1")
	require.NoError(t, err)
	assert.Equal(t, 1, count) // only bob's join notice
}

func TestDispatchDecodesStringAndObjectPayloads(t *testing.T) {
	h := newTestHub(t)
	alice := connectUser(t, h, "u1", "alice")
	makeRoom(t, h, "r1", "general", "u1")

	h.dispatch(inbound{client: alice, event: types.EventJoinRoom, data: json.RawMessage(`"r1"`)})
	event, _ := nextFrame(t, alice)
	assert.Equal(t, types.EventRoomJoined, event)
	drain(alice)

	h.dispatch(inbound{client: alice, event: types.EventSendMessage,
		data: json.RawMessage(`{"roomId":"r1","content":"via dispatch"}`)})
	event, data := nextFrame(t, alice)
	require.Equal(t, types.EventNewMessage, event)
	msg := types.NewMessagePayload{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "via dispatch", msg.Content)
}

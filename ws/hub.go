package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/huddlechat/huddle/errors"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/presence"
	"github.com/huddlechat/huddle/ratelimit"
	"github.com/huddlechat/huddle/types"
	"github.com/huddlechat/huddle/validation"
	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
)

const (
	commandChannelSize = 1000
	usernameCacheSize  = 1024
)

// inbound is one decoded websocket frame waiting for dispatch.
type inbound struct {
	client *Client
	event  string
	data   json.RawMessage
}

// Hub coordinates every connection in the process: room membership
// transitions, message fan-out, typing propagation and disconnect
// cleanup. A single Run goroutine consumes Register, Unregister and the
// command queue and executes each handler to completion, so handlers
// never interleave and the clients/rooms maps need no locking.
type Hub struct {
	store    persistence.Store
	registry *presence.Registry
	limiter  *ratelimit.Limiter

	// identity id -> username, avoids a store round-trip per member
	// when projecting room user lists
	usernames *lru.ARCCache

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client
	commands   chan inbound
	quit       chan struct{}
}

func NewHub(store persistence.Store, registry *presence.Registry, limiter *ratelimit.Limiter) *Hub {
	cache, _ := lru.NewARC(usernameCacheSize)
	return &Hub{
		store:      store,
		registry:   registry,
		limiter:    limiter,
		usernames:  cache,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		commands:   make(chan inbound, commandChannelSize),
		quit:       make(chan struct{}),
	}
}

// Run is the hub dispatch loop. It also drives the periodic rate-limit
// window sweep.
func (h *Hub) Run() {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := cronRunner.AddFunc("@every 1m", h.limiter.Sweep); err != nil {
		panic(err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case cmd := <-h.commands:
			h.dispatch(cmd)

		case <-h.quit:
			for client := range h.clients {
				h.unregisterClient(client)
			}
			return
		}
	}
}

// Stop terminates the dispatch loop and tears down all connections.
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) dispatch(cmd inbound) {
	switch cmd.event {
	case types.EventJoinRoom:
		roomId, err := decodeRoomId(cmd.data)
		if err != nil {
			h.sendError(cmd.client, "Error joining room")
			return
		}
		h.handleJoinRoom(cmd.client, roomId)

	case types.EventSendMessage:
		payload := types.SendMessagePayload{}
		if err := decodePayload(cmd.data, &payload); err != nil {
			h.sendError(cmd.client, "Error sending message")
			return
		}
		h.handleSendMessage(cmd.client, payload.RoomId, payload.Content)

	case types.EventTyping:
		payload := types.TypingPayload{}
		if err := decodePayload(cmd.data, &payload); err != nil {
			return // fire-and-forget, nothing to report
		}
		h.handleTyping(cmd.client, payload.RoomId, payload.IsTyping)

	case types.EventGetRoomUsers:
		roomId, err := decodeRoomId(cmd.data)
		if err != nil {
			return
		}
		h.handleGetRoomUsers(cmd.client, roomId)

	default:
		globals.AppLogger.Debug("unknown event", "event", cmd.event)
	}
}

// decodeRoomId accepts either a bare JSON string (what the original
// client emits) or an object payload with a roomId field.
func decodeRoomId(data json.RawMessage) (string, error) {
	var roomId string
	if err := json.Unmarshal(data, &roomId); err == nil {
		return roomId, nil
	}
	payload := types.JoinRoomPayload{}
	if err := decodePayload(data, &payload); err != nil {
		return "", err
	}
	return payload.RoomId, nil
}

func decodePayload(data json.RawMessage, out interface{}) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return mapstructure.WeakDecode(raw, out)
}

// registerClient attaches a freshly authenticated connection: presence
// entry with no room, online flag persisted.
func (h *Hub) registerClient(c *Client) {
	h.clients[c] = struct{}{}
	h.registry.Register(c.user.Id, c.user.Username, c)
	h.usernames.Add(c.user.Id, c.user.Username)

	c.user.IsOnline = true
	c.user.LastSeen = time.Now()
	c.user.CurrentRoomId = ""
	if err := h.store.SaveUser(c.user); err != nil {
		globals.AppLogger.Error("could not persist online status", "user", c.user.Id, "error", err)
	}
	globals.AppLogger.Info("user connected", "user", c.user.Username, "online", h.registry.Online())
}

// unregisterClient is the disconnect path: presence teardown plus the
// user-left notification and system message if the identity was in a
// room.
func (h *Hub) unregisterClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)

	roomId := h.registry.Unregister(c.user.Id)

	c.user.IsOnline = false
	c.user.LastSeen = time.Now()
	c.user.CurrentRoomId = ""
	if err := h.store.SaveUser(c.user); err != nil {
		globals.AppLogger.Error("could not persist offline status", "user", c.user.Id, "error", err)
	}

	if roomId != "" {
		h.unsubscribe(c, roomId)
		h.broadcastToRoom(roomId, types.EventUserLeft, types.UserPresencePayload{
			Username:  c.user.Username,
			UserId:    c.user.Id,
			Timestamp: time.Now(),
		}, nil)
		h.systemMessage(roomId, c.user, fmt.Sprintf("%s left the room", c.user.Username))
	}

	close(c.Send)
	globals.AppLogger.Info("user disconnected", "user", c.user.Username, "online", h.registry.Online())
}

// handleJoinRoom implements the join transition. Re-joining the current
// room re-runs the full side effect set; that matches the original
// behavior and is deliberately not deduplicated.
func (h *Hub) handleJoinRoom(c *Client, roomId string) {
	room, err := h.store.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			h.sendError(c, errors.ErrRoomNotFound.Error())
		} else {
			globals.AppLogger.Error("join room failed", "room", roomId, "error", err)
			h.sendError(c, "Error joining room")
		}
		return
	}
	if !room.IsActive {
		h.sendError(c, errors.ErrRoomNotFound.Error())
		return
	}

	// leaving the previous room produces no notification, only
	// explicit disconnects do
	if prev := h.registry.CurrentRoom(c.user.Id); prev != "" && prev != roomId {
		h.unsubscribe(c, prev)
	}

	h.subscribe(c, roomId)
	h.registry.SetCurrentRoom(c.user.Id, roomId)
	c.user.CurrentRoomId = roomId
	if err := h.store.SaveUser(c.user); err != nil {
		globals.AppLogger.Error("could not persist current room", "user", c.user.Id, "error", err)
	}

	if !lo.Contains(room.Members, c.user.Id) {
		if err := h.store.AddRoomMember(roomId, c.user.Id); err != nil {
			globals.AppLogger.Error("could not persist room membership", "room", roomId, "error", err)
		}
	}

	h.broadcastToRoom(roomId, types.EventUserJoined, types.UserPresencePayload{
		Username:  c.user.Username,
		UserId:    c.user.Id,
		Timestamp: time.Now(),
	}, c)
	h.send(c, types.EventRoomJoined, types.RoomJoinedPayload{RoomId: roomId, RoomName: room.Name})

	h.systemMessage(roomId, c.user, fmt.Sprintf("%s joined the room", c.user.Username))
}

// handleSendMessage validates, persists and fans out one text message.
// The sender receives the broadcast too; there is no local echo.
func (h *Hub) handleSendMessage(c *Client, roomId, content string) {
	if !h.limiter.Allow(c.user.Id) {
		h.sendError(c, errors.ErrRateLimited.Error())
		return
	}
	if !validation.IsValidMessage(content) {
		h.sendError(c, errors.ErrInvalidContent.Error())
		return
	}
	// the sender must have explicitly joined, stored membership alone
	// is not sufficient
	if h.registry.CurrentRoom(c.user.Id) != roomId {
		h.sendError(c, errors.ErrNotInRoom.Error())
		return
	}

	msg := &types.Message{
		Id:             uuid.NewString(),
		Content:        validation.SanitizeMessage(content),
		SenderId:       c.user.Id,
		SenderUsername: c.user.Username,
		RoomId:         roomId,
		MessageType:    types.MessageTypeText,
		Timestamp:      time.Now(),
	}
	if err := h.store.CreateMessage(msg); err != nil {
		globals.AppLogger.Error("could not persist message", "room", roomId, "error", err)
		h.sendError(c, "Error sending message")
		return
	}
	h.touchRoom(roomId)

	h.broadcastToRoom(roomId, types.EventNewMessage, types.NewMessagePayload{
		Id:      msg.Id,
		Content: msg.Content,
		Sender: types.MessageSender{
			Id:       c.user.Id,
			Username: c.user.Username,
			IsOnline: true,
		},
		SenderUsername: msg.SenderUsername,
		Timestamp:      msg.Timestamp,
		MessageType:    msg.MessageType,
	}, nil)
}

// handleTyping propagates an ephemeral typing flag to the other room
// subscribers. Unlike the original, the room is checked against the
// sender's actual joined room; mismatches are dropped without an error
// event since typing is fire-and-forget.
func (h *Hub) handleTyping(c *Client, roomId string, isTyping bool) {
	if h.registry.CurrentRoom(c.user.Id) != roomId {
		globals.AppLogger.Debug("typing event for room not joined", "user", c.user.Id, "room", roomId)
		return
	}
	h.broadcastToRoom(roomId, types.EventUserTyping, types.UserTypingPayload{
		Username: c.user.Username,
		UserId:   c.user.Id,
		IsTyping: isTyping,
	}, c)
}

// handleGetRoomUsers answers with the persisted member list, resolving
// usernames via the cache and the online flag via the presence
// registry.
func (h *Hub) handleGetRoomUsers(c *Client, roomId string) {
	room, err := h.store.GetRoom(roomId)
	if err != nil {
		globals.AppLogger.Debug("get room users failed", "room", roomId, "error", err)
		return
	}
	users := make([]types.PublicUser, 0, len(room.Members))
	for _, userId := range room.Members {
		username, ok := h.lookupUsername(userId)
		if !ok {
			continue
		}
		_, online := h.registry.Lookup(userId)
		users = append(users, types.PublicUser{Id: userId, Username: username, IsOnline: online})
	}
	h.send(c, types.EventRoomUsers, types.RoomUsersPayload{RoomId: roomId, Users: users})
}

func (h *Hub) lookupUsername(userId string) (string, bool) {
	if v, ok := h.usernames.Get(userId); ok {
		return v.(string), true
	}
	user, err := h.store.GetUser(userId)
	if err != nil {
		return "", false
	}
	h.usernames.Add(userId, user.Username)
	return user.Username, true
}

// systemMessage persists and broadcasts a server-generated notice to
// every subscriber of the room, the triggering user included.
func (h *Hub) systemMessage(roomId string, user *types.User, content string) {
	msg := &types.Message{
		Id:             uuid.NewString(),
		Content:        content,
		SenderId:       user.Id,
		SenderUsername: user.Username,
		RoomId:         roomId,
		MessageType:    types.MessageTypeSystem,
		Timestamp:      time.Now(),
	}
	if err := h.store.CreateMessage(msg); err != nil {
		globals.AppLogger.Error("could not persist system message", "room", roomId, "error", err)
		return
	}
	h.broadcastToRoom(roomId, types.EventNewMessage, types.NewMessagePayload{
		Id:             msg.Id,
		Content:        msg.Content,
		Sender:         types.MessageSender{Id: user.Id, Username: user.Username},
		SenderUsername: msg.SenderUsername,
		Timestamp:      msg.Timestamp,
		MessageType:    msg.MessageType,
	}, nil)
}

func (h *Hub) touchRoom(roomId string) {
	room, err := h.store.GetRoom(roomId)
	if err != nil {
		globals.AppLogger.Error("could not load room for activity update", "room", roomId, "error", err)
		return
	}
	room.LastActivity = time.Now()
	if err := h.store.SaveRoom(room); err != nil {
		globals.AppLogger.Error("could not update room activity", "room", roomId, "error", err)
	}
}

func (h *Hub) subscribe(c *Client, roomId string) {
	subscribers, ok := h.rooms[roomId]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.rooms[roomId] = subscribers
	}
	subscribers[c] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, roomId string) {
	if subscribers, ok := h.rooms[roomId]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.rooms, roomId)
		}
	}
}

// broadcastToRoom fans one event out to every subscriber of the room,
// optionally excluding one client (the typical "to others" pattern).
func (h *Hub) broadcastToRoom(roomId, event string, payload interface{}, except *Client) {
	frame, err := types.NewWebsocketMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal broadcast", "event", event, "error", err)
		return
	}
	for client := range h.rooms[roomId] {
		if client == except {
			continue
		}
		h.deliver(client, frame)
	}
}

func (h *Hub) send(c *Client, event string, payload interface{}) {
	frame, err := types.NewWebsocketMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "event", event, "error", err)
		return
	}
	h.deliver(c, frame)
}

func (h *Hub) sendError(c *Client, message string) {
	h.send(c, types.EventError, types.ErrorPayload{Message: message})
}

// deliver writes a frame without blocking the dispatch loop. A client
// with a full send buffer loses the frame; the write loop's ping
// timeout eventually reaps genuinely dead connections.
func (h *Hub) deliver(c *Client, frame []byte) {
	select {
	case c.Send <- frame:
	default:
		globals.AppLogger.Warn("dropping frame, send buffer full", "user", c.user.Id)
	}
}

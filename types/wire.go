package types

import (
	"encoding/json"
	"time"
)

// Event names of the bidirectional wire protocol. A connection carries a
// stream of JSON-serialized WebsocketMessage frames in both directions.
const (
	// client -> server
	EventJoinRoom     = "join-room"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventGetRoomUsers = "get-room-users"

	// server -> client
	EventRoomJoined = "room-joined"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventRoomUsers  = "room-users"
	EventError      = "error"
)

// WebsocketMessage is what is actually sent over the websocket
// connection.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewWebsocketMessage marshals data into a ready-to-send frame.
func NewWebsocketMessage(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: raw})
}

// Inbound payloads. Field names are weak-decoded via mapstructure, so
// clients may send any JSON-compatible scalar types.

type JoinRoomPayload struct {
	RoomId string `json:"roomId" mapstructure:"roomId"`
}

type SendMessagePayload struct {
	RoomId  string `json:"roomId" mapstructure:"roomId"`
	Content string `json:"content" mapstructure:"content"`
}

type TypingPayload struct {
	RoomId   string `json:"roomId" mapstructure:"roomId"`
	IsTyping bool   `json:"isTyping" mapstructure:"isTyping"`
}

// Outbound payloads.

type RoomJoinedPayload struct {
	RoomId   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// UserPresencePayload is shared by user-joined and user-left.
type UserPresencePayload struct {
	Username  string    `json:"username"`
	UserId    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSender struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type NewMessagePayload struct {
	Id             string        `json:"id"`
	Content        string        `json:"content"`
	Sender         MessageSender `json:"sender"`
	SenderUsername string        `json:"senderUsername"`
	Timestamp      time.Time     `json:"timestamp"`
	MessageType    string        `json:"messageType"`
}

type UserTypingPayload struct {
	Username string `json:"username"`
	UserId   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type RoomUsersPayload struct {
	RoomId string       `json:"roomId"`
	Users  []PublicUser `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

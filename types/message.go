package types

import "time"

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// Message is immutable once created (the edit fields exist for schema
// fidelity, no operation mutates them). SenderUsername is captured at
// send time instead of joined live.
type Message struct {
	Id             string     `json:"id" gorm:"primaryKey"`
	Content        string     `json:"content" gorm:"size:2000"`
	SenderId       string     `json:"sender"`
	SenderUsername string     `json:"senderUsername"`
	RoomId         string     `json:"room" gorm:"index:idx_messages_room_ts,priority:1"`
	MessageType    string     `json:"messageType"`
	IsEdited       bool       `json:"isEdited"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	Timestamp      time.Time  `json:"timestamp" gorm:"index:idx_messages_room_ts,priority:2"`
}

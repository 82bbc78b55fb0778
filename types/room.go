package types

import "time"

// Room is a named channel. Deactivation is a soft transition: IsActive
// flips to false, members and messages stay around for audit.
//
// Members is the persisted membership set. The BuntDB backend stores it
// inline in the room document, the GORM backend keeps it in the
// room_members join table and fills this slice on load.
type Room struct {
	Id           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"uniqueIndex;size:50"`
	Description  string    `json:"description" gorm:"size:200"`
	CreatedById  string    `json:"createdBy"`
	Members      []string  `json:"members,omitempty" gorm:"-"`
	IsActive     bool      `json:"isActive"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoomMember is one row of the GORM backend's membership join table.
type RoomMember struct {
	RoomId string `gorm:"primaryKey;index"`
	UserId string `gorm:"primaryKey"`
}

func (RoomMember) TableName() string { return "room_members" }

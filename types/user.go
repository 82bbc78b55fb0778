package types

import "time"

// User is a registered account. PasswordHash is never serialized and is
// only selected by the auth handlers.
type User struct {
	Id            string    `json:"id" gorm:"primaryKey"`
	Username      string    `json:"username" gorm:"uniqueIndex;size:20"`
	PasswordHash  string    `json:"-"`
	IsOnline      bool      `json:"isOnline"`
	LastSeen      time.Time `json:"lastSeen"`
	CurrentRoomId string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicUser is the projection exposed via the REST API and the
// room-users event.
type PublicUser struct {
	Id       string    `json:"id"`
	Username string    `json:"username"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		Id:       u.Id,
		Username: u.Username,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}

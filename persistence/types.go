package persistence

import (
	"errors"
	"fmt"

	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/types"
)

// ErrNotFound is returned by all Get* methods when the entity does not
// exist, regardless of backend.
var ErrNotFound = errors.New("not found")

// Store is the durable storage consumed by the REST handlers and the
// chat core. Presence and rate-limit state never go through here.
type Store interface {
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	SaveUser(user *types.User) error

	CreateRoom(room *types.Room) error
	GetRoom(id string) (*types.Room, error)
	GetRoomByName(name string) (*types.Room, error)
	ActiveRooms() ([]*types.Room, error)
	SaveRoom(room *types.Room) error
	AddRoomMember(roomId, userId string) error

	CreateMessage(msg *types.Message) error
	// RoomMessages returns one page of a room's history, oldest first
	// within the page; page 1 holds the most recent messages.
	RoomMessages(roomId string, page, limit int) ([]*types.Message, error)
	LatestRoomMessages(roomId string, limit int) ([]*types.Message, error)
	CountRoomMessages(roomId string) (int, error)

	Close() error
}

// NewStore picks the backend from the persistence configuration.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.Persistence.Type {
	case "buntdb", "":
		return NewBuntStore(cfg)
	case "sqlite", "postgres":
		return NewGormStore(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.Persistence.Type)
}

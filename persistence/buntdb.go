package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/types"
	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
)

// BuntStore keeps every entity as a JSON document:
//
//	user:<id>                          user document
//	room:<id>                          room document (membership inline)
//	message:<roomId>:<padded-ns>:<id>  message document
//
// The zero-padded nanosecond timestamp in the message key makes plain
// key order equal to timestamp order, so history queries are key scans.
type BuntStore struct {
	db *buntdb.DB
}

func NewBuntStore(cfg *config.Config) (*BuntStore, error) {
	db, err := buntdb.Open(cfg.Persistence.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("username", "user:*", buntdb.IndexJSON("username")); err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	if err := db.CreateIndex("roomname", "room:*", buntdb.IndexJSON("name")); err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	if err := db.CreateIndex("roomactivity", "room:*", buntdb.IndexJSON("lastActivity")); err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func messageKey(roomId string, ts time.Time, id string) string {
	return fmt.Sprintf("message:%s:%020d:%s", roomId, ts.UnixNano(), id)
}

func (s *BuntStore) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(raw), nil)
		return err
	})
}

func (s *BuntStore) getJSON(key string, v interface{}) error {
	err := s.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), v)
	})
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (s *BuntStore) CreateUser(user *types.User) error {
	return s.setJSON("user:"+user.Id, user)
}

func (s *BuntStore) GetUser(id string) (*types.User, error) {
	user := &types.User{}
	if err := s.getJSON("user:"+id, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BuntStore) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	pivot := fmt.Sprintf(`{"username":%q}`, username)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual("username", pivot, func(key, val string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(val), user); err == nil {
				found = user
			}
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BuntStore) SaveUser(user *types.User) error {
	return s.setJSON("user:"+user.Id, user)
}

func (s *BuntStore) CreateRoom(room *types.Room) error {
	return s.setJSON("room:"+room.Id, room)
}

func (s *BuntStore) GetRoom(id string) (*types.Room, error) {
	room := &types.Room{}
	if err := s.getJSON("room:"+id, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *BuntStore) GetRoomByName(name string) (*types.Room, error) {
	var found *types.Room
	pivot := fmt.Sprintf(`{"name":%q}`, name)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual("roomname", pivot, func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				found = room
			}
			return false
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BuntStore) ActiveRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend("roomactivity", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil && room.IsActive {
				rooms = append(rooms, room)
			}
			return true
		})
	})
	return rooms, err
}

func (s *BuntStore) SaveRoom(room *types.Room) error {
	return s.setJSON("room:"+room.Id, room)
}

func (s *BuntStore) AddRoomMember(roomId, userId string) error {
	room, err := s.GetRoom(roomId)
	if err != nil {
		return err
	}
	if lo.Contains(room.Members, userId) {
		return nil
	}
	room.Members = append(room.Members, userId)
	return s.SaveRoom(room)
}

func (s *BuntStore) CreateMessage(msg *types.Message) error {
	return s.setJSON(messageKey(msg.RoomId, msg.Timestamp, msg.Id), msg)
}

func (s *BuntStore) RoomMessages(roomId string, page, limit int) ([]*types.Message, error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * limit
	messages := make([]*types.Message, 0, limit)
	err := s.db.View(func(tx *buntdb.Tx) error {
		current := -1
		return tx.DescendKeys("message:"+roomId+":*", func(key, val string) bool {
			current++
			if current < skip {
				return true
			}
			msg := &types.Message{}
			if err := json.Unmarshal([]byte(val), msg); err == nil {
				messages = append(messages, msg)
			}
			return len(messages) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil // oldest first within the page
}

func (s *BuntStore) LatestRoomMessages(roomId string, limit int) ([]*types.Message, error) {
	return s.RoomMessages(roomId, 1, limit)
}

func (s *BuntStore) CountRoomMessages(roomId string) (int, error) {
	count := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("message:"+roomId+":*", func(key, val string) bool {
			count++
			return true
		})
	})
	return count, err
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}

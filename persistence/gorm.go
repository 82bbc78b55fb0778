package persistence

import (
	"errors"
	"fmt"

	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/types"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is the relational backend. Room membership lives in the
// room_members join table instead of an array on the room document.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(cfg *config.Config) (*GormStore, error) {
	var dial gorm.Dialector
	switch cfg.Persistence.Type {
	case "postgres":
		dial = postgres.Open(cfg.Persistence.DSN)
	case "sqlite":
		dial = sqlite.Open(cfg.Persistence.DSN)
	default:
		return nil, fmt.Errorf("invalid gorm configuration %q", cfg.Persistence.Type)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&types.User{}, &types.Room{}, &types.RoomMember{}, &types.Message{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) CreateUser(user *types.User) error {
	return s.db.Create(user).Error
}

func (s *GormStore) GetUser(id string) (*types.User, error) {
	user := &types.User{}
	if err := s.db.First(user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *GormStore) GetUserByUsername(username string) (*types.User, error) {
	user := &types.User{}
	if err := s.db.First(user, "username = ?", username).Error; err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (s *GormStore) SaveUser(user *types.User) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

func (s *GormStore) CreateRoom(room *types.Room) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		members := lo.Map(room.Members, func(userId string, _ int) types.RoomMember {
			return types.RoomMember{RoomId: room.Id, UserId: userId}
		})
		if len(members) == 0 {
			return nil
		}
		return tx.Create(&members).Error
	})
}

func (s *GormStore) loadMembers(room *types.Room) error {
	var rows []types.RoomMember
	if err := s.db.Find(&rows, "room_id = ?", room.Id).Error; err != nil {
		return err
	}
	room.Members = lo.Map(rows, func(m types.RoomMember, _ int) string { return m.UserId })
	return nil
}

func (s *GormStore) GetRoom(id string) (*types.Room, error) {
	room := &types.Room{}
	if err := s.db.First(room, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	if err := s.loadMembers(room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *GormStore) GetRoomByName(name string) (*types.Room, error) {
	room := &types.Room{}
	if err := s.db.First(room, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	if err := s.loadMembers(room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *GormStore) ActiveRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := s.db.Where("is_active = ?", true).Order("last_activity DESC").Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if err := s.loadMembers(room); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

func (s *GormStore) SaveRoom(room *types.Room) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error
}

func (s *GormStore) AddRoomMember(roomId, userId string) error {
	member := types.RoomMember{RoomId: roomId, UserId: userId}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
}

func (s *GormStore) CreateMessage(msg *types.Message) error {
	return s.db.Create(msg).Error
}

func (s *GormStore) RoomMessages(roomId string, page, limit int) ([]*types.Message, error) {
	if page < 1 {
		page = 1
	}
	messages := make([]*types.Message, 0, limit)
	err := s.db.Where("room_id = ?", roomId).
		Order("timestamp DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func (s *GormStore) LatestRoomMessages(roomId string, limit int) ([]*types.Message, error) {
	return s.RoomMessages(roomId, 1, limit)
}

func (s *GormStore) CountRoomMessages(roomId string) (int, error) {
	var count int64
	err := s.db.Model(&types.Message{}).Where("room_id = ?", roomId).Count(&count).Error
	return int(count), err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

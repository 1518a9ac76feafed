package store

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

// SessionRecord is the durable shape of a reconnect session. Only
// sessions persist; rooms and boards are rebuilt in memory and a token
// whose room died with the process simply expires on lookup.
type SessionRecord struct {
	Token      string    `gorm:"primaryKey;size:64"`
	RoomCode   string    `gorm:"size:16"`
	PlayerID   string    `gorm:"size:64"`
	PlayerName string    `gorm:"size:64"`
	ExpiresAt  time.Time `gorm:"index"`
}

func (SessionRecord) TableName() string { return "sessions" }

type gormBackend struct {
	db *gorm.DB
}

// OpenSessionBackend connects to postgres and migrates the sessions
// table. Pass the resulting backend to Options.SessionBackend.
func OpenSessionBackend(dsn string) (SessionBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, err
	}
	return &gormBackend{db: db}, nil
}

func (b *gormBackend) Save(s *domain.Session) error {
	rec := SessionRecord{
		Token:      s.Token,
		RoomCode:   s.RoomCode,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		ExpiresAt:  s.ExpiresAt,
	}
	return b.db.Save(&rec).Error
}

func (b *gormBackend) Find(token string) (*domain.Session, error) {
	var rec SessionRecord
	if err := b.db.First(&rec, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Session{
		Token:      rec.Token,
		RoomCode:   rec.RoomCode,
		PlayerID:   rec.PlayerID,
		PlayerName: rec.PlayerName,
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (b *gormBackend) Delete(token string) error {
	return b.db.Delete(&SessionRecord{}, "token = ?", token).Error
}

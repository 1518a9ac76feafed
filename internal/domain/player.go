package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxPlayerNameLen = 24

var (
	ErrNameEmpty   = errors.New("player name empty")
	ErrNameTooLong = errors.New("player name too long")
)

// Player is one seat in a room. ConnID is the current transport handle and
// is empty while the player is disconnected; ID is stable for the seat's
// lifetime and is what sessions and slot ownership refer to.
type Player struct {
	ID       string  `json:"id"`
	ConnID   string  `json:"-"`
	Name     string  `json:"name"`
	Slots    []int   `json:"slots"`
	Boards   []Board `json:"boards"`
	IsHost   bool    `json:"isHost"`
	IsCaller bool    `json:"isCaller"`

	Connected      bool      `json:"connected"`
	JoinedAt       time.Time `json:"-"`
	DisconnectedAt time.Time `json:"-"`
}

// NewPlayer seats a named player bound to a connection handle.
func NewPlayer(name, connID string, now time.Time) (*Player, error) {
	name, err := CleanPlayerName(name)
	if err != nil {
		return nil, err
	}
	return &Player{
		ID:        uuid.NewString(),
		ConnID:    connID,
		Name:      name,
		Connected: true,
		JoinedAt:  now,
	}, nil
}

// CleanPlayerName trims and validates a display name.
func CleanPlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameEmpty
	}
	if len([]rune(name)) > MaxPlayerNameLen {
		return "", ErrNameTooLong
	}
	return name, nil
}

// SameName compares display names the way room uniqueness does.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

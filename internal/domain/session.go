package domain

import "time"

// Session maps an opaque client-held token to a seat so a dropped
// connection can be re-bound without creating a duplicate player. It
// carries no transport state.
type Session struct {
	Token      string    `json:"token"`
	RoomCode   string    `json:"roomCode"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

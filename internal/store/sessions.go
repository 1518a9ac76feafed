package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

// SessionBackend is an optional durable table behind the in-memory
// session registry, so reconnect tokens survive a process restart. The
// registry stays authoritative; the backend is written through on every
// change and consulted only on a cache miss.
type SessionBackend interface {
	Save(s *domain.Session) error
	Find(token string) (*domain.Session, error)
	Delete(token string) error
}

type sessionRegistry struct {
	mu       sync.Mutex
	byToken  map[string]*domain.Session
	byPlayer map[string]string // playerID -> token
	backend  SessionBackend
	ttl      time.Duration
}

func newSessionRegistry(ttl time.Duration, backend SessionBackend) *sessionRegistry {
	return &sessionRegistry{
		byToken:  make(map[string]*domain.Session),
		byPlayer: make(map[string]string),
		backend:  backend,
		ttl:      ttl,
	}
}

// save records (or refreshes) the seat mapping for a token.
func (sr *sessionRegistry) save(token, roomCode, playerID, playerName string, now time.Time) {
	if token == "" {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s := &domain.Session{
		Token:      token,
		RoomCode:   roomCode,
		PlayerID:   playerID,
		PlayerName: playerName,
		ExpiresAt:  now.Add(sr.ttl),
	}
	sr.byToken[token] = s
	sr.byPlayer[playerID] = token
	if sr.backend != nil {
		if err := sr.backend.Save(s); err != nil {
			log.Error().Err(err).Str("module", "store").Msg("session write-through failed")
		}
	}
}

// find returns the live session for a token, falling back to the durable
// backend on a miss. Expired entries are purged and reported as such.
func (sr *sessionRegistry) find(token string, now time.Time) (*domain.Session, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s, ok := sr.byToken[token]
	if !ok && sr.backend != nil {
		durable, err := sr.backend.Find(token)
		if err == nil && durable != nil {
			s, ok = durable, true
			sr.byToken[token] = s
			sr.byPlayer[s.PlayerID] = token
		}
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.Expired(now) {
		sr.dropLocked(token)
		return nil, domain.ErrSessionExpired
	}
	return s, nil
}

// rename keeps a session's display name in step with the seat and
// refreshes its TTL.
func (sr *sessionRegistry) rename(playerID, name string, now time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	token, ok := sr.byPlayer[playerID]
	if !ok {
		return
	}
	s := sr.byToken[token]
	if s == nil {
		return
	}
	s.PlayerName = name
	s.ExpiresAt = now.Add(sr.ttl)
	if sr.backend != nil {
		if err := sr.backend.Save(s); err != nil {
			log.Error().Err(err).Str("module", "store").Msg("session write-through failed")
		}
	}
}

func (sr *sessionRegistry) drop(token string) {
	if token == "" {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.dropLocked(token)
}

func (sr *sessionRegistry) dropByPlayer(playerID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if token, ok := sr.byPlayer[playerID]; ok {
		sr.dropLocked(token)
	}
}

func (sr *sessionRegistry) dropLocked(token string) {
	if s, ok := sr.byToken[token]; ok {
		delete(sr.byPlayer, s.PlayerID)
	}
	delete(sr.byToken, token)
	if sr.backend != nil {
		if err := sr.backend.Delete(token); err != nil {
			log.Error().Err(err).Str("module", "store").Msg("session delete failed")
		}
	}
}

// sweepExpired purges sessions past their TTL.
func (sr *sessionRegistry) sweepExpired(now time.Time) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for token, s := range sr.byToken {
		if s.Expired(now) {
			sr.dropLocked(token)
		}
	}
}

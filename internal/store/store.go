// Package store owns the authoritative in-memory room registry and the
// reconnect-session registry. Every mutation of a room happens inside
// that room's own lock, so rooms serialize independently while the
// registry stays contention-free. Nothing here knows about the game
// rules; seat admission, reconnection and teardown live here, the state
// machine lives in internal/game on top of WithRoom.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomView is a consistent post-mutation snapshot taken under the room
// lock, together with the connections it should fan out to.
type RoomView struct {
	Snap     *domain.RoomSnapshot
	Conns    []string
	PlayerID string
}

// SweepResult reports what one cleanup pass changed.
type SweepResult struct {
	Closed  []string    // rooms torn down
	Updated []*RoomView // rooms that lost timed-out seats
}

type roomEntry struct {
	mu     sync.Mutex
	room   *domain.Room
	closed bool
}

// Options configures a Store. Zero values fall back to sane defaults.
type Options struct {
	ReconnectGrace time.Duration // how long a dropped seat is held
	SessionTTL     time.Duration
	SessionBackend SessionBackend // optional durable table
}

type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*roomEntry
	byConn map[string]string // connID -> room code

	sessions *sessionRegistry
	grace    time.Duration

	// test seams
	now     func() time.Time
	newCode func() string
}

func New(opts Options) *Store {
	if opts.ReconnectGrace <= 0 {
		opts.ReconnectGrace = 60 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &Store{
		rooms:    make(map[string]*roomEntry),
		byConn:   make(map[string]string),
		sessions: newSessionRegistry(opts.SessionTTL, opts.SessionBackend),
		grace:    opts.ReconnectGrace,
		now:      time.Now,
	}
	s.newCode = func() string {
		b := make([]byte, 6)
		for i := range b {
			b[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
		}
		return string(b)
	}
	return s
}

// WithRoom runs fn holding the room's lock. Any error from fn is
// returned as-is; a missing or torn-down room yields ErrRoomNotFound.
func (s *Store) WithRoom(code string, fn func(r *domain.Room) error) error {
	s.mu.RLock()
	e, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrRoomNotFound
	}
	return fn(e.room)
}

// WithRoomByConn resolves the room and seat of a connection handle and
// runs fn under the room lock.
func (s *Store) WithRoomByConn(connID string, fn func(r *domain.Room, p *domain.Player) error) error {
	s.mu.RLock()
	code, ok := s.byConn[connID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrRoomNotFound
	}
	return s.WithRoom(code, func(r *domain.Room) error {
		p := r.PlayerByConn(connID)
		if p == nil {
			return domain.ErrPlayerNotFound
		}
		return fn(r, p)
	})
}

// CreateRoom allocates a fresh code and seats the creator as host and
// caller. A non-empty token records a reconnect session for the seat.
func (s *Store) CreateRoom(hostName string, mode domain.CallMode, interval time.Duration, connID, token string) (*RoomView, error) {
	now := s.now()
	host, err := domain.NewPlayer(hostName, connID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	host.IsHost = true
	host.IsCaller = true

	s.mu.Lock()
	code := s.newCode()
	for _, taken := s.rooms[code]; taken; _, taken = s.rooms[code] {
		code = s.newCode()
	}
	room := domain.NewRoom(code, mode, interval, now)
	room.Players = append(room.Players, host)
	s.rooms[code] = &roomEntry{room: room}
	s.byConn[connID] = code
	s.mu.Unlock()

	s.sessions.save(token, code, host.ID, host.Name, now)
	log.Info().Str("module", "store").Str("room", code).Str("host", host.Name).Msg("room created")
	return &RoomView{Snap: room.Snapshot(), Conns: room.ConnIDs(), PlayerID: host.ID}, nil
}

// JoinRoom seats a new player in a waiting room. A client whose token
// already maps to a seat in this room reactivates that seat instead of
// creating a duplicate.
func (s *Store) JoinRoom(code, name, connID, token string) (*RoomView, error) {
	now := s.now()
	var view *RoomView
	err := s.WithRoom(code, func(r *domain.Room) error {
		if token != "" {
			if sess, err := s.sessions.find(token, now); err == nil && sess.RoomCode == code {
				if p := r.PlayerByID(sess.PlayerID); p != nil {
					s.rebind(r, p, connID, token, now)
					view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
					return nil
				}
			}
		}
		if r.Phase != domain.PhaseWaiting {
			return fmt.Errorf("%w: game already started", domain.ErrPhase)
		}
		p, err := domain.NewPlayer(name, connID, now)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrValidation, err)
		}
		if r.PlayerByName(p.Name) != nil {
			return fmt.Errorf("%w: name %q taken", domain.ErrConflict, p.Name)
		}
		r.Players = append(r.Players, p)
		r.EmptySince = time.Time{}

		s.mu.Lock()
		s.byConn[connID] = code
		s.mu.Unlock()
		s.sessions.save(token, code, p.ID, p.Name, now)

		log.Info().Str("module", "store").Str("room", code).Str("player", p.Name).Msg("player joined")
		view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
		return nil
	})
	return view, err
}

// Reconnect re-binds the seat behind a session token to a new connection
// handle, preserving boards and slot ownership. It runs inside the room
// lock, so a racing sweep either completes first (token expires) or
// observes the seat connected again.
func (s *Store) Reconnect(token, newConnID string) (*RoomView, error) {
	now := s.now()
	sess, err := s.sessions.find(token, now)
	if err != nil {
		return nil, err
	}
	var view *RoomView
	err = s.WithRoom(sess.RoomCode, func(r *domain.Room) error {
		p := r.PlayerByID(sess.PlayerID)
		if p == nil {
			s.sessions.drop(token)
			return domain.ErrSessionExpired
		}
		s.rebind(r, p, newConnID, token, now)
		view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		// the room died before the token did
		s.sessions.drop(token)
		return nil, domain.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("room", sess.RoomCode).Str("player", sess.PlayerName).Msg("player reconnected")
	return view, nil
}

// rebind points a seat at a live connection. Caller holds the room lock.
func (s *Store) rebind(r *domain.Room, p *domain.Player, connID, token string, now time.Time) {
	s.mu.Lock()
	if p.ConnID != "" {
		delete(s.byConn, p.ConnID)
	}
	s.byConn[connID] = r.Code
	s.mu.Unlock()
	p.ConnID = connID
	p.Connected = true
	p.DisconnectedAt = time.Time{}
	r.EmptySince = time.Time{}
	s.sessions.save(token, r.Code, p.ID, p.Name, now)
}

// Disconnect marks a seat inactive without freeing it; the sweep frees
// it once the grace period passes. Returns nil when the handle was not
// seated anywhere (an idle socket dropping is not an error).
func (s *Store) Disconnect(connID string) *RoomView {
	now := s.now()
	var view *RoomView
	_ = s.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		p.Connected = false
		p.ConnID = ""
		p.DisconnectedAt = now
		if r.ConnectedCount() == 0 {
			r.EmptySince = now
		}
		view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
		return nil
	})
	s.mu.Lock()
	delete(s.byConn, connID)
	s.mu.Unlock()
	return view
}

// Leave frees the seat immediately, transferring host and caller roles
// per join order, and drops the reconnect session. When the last seat
// leaves, the room is torn down and its code is returned so the caller
// can release any scheduler tied to it.
func (s *Store) Leave(connID string) (*RoomView, string, error) {
	var view *RoomView
	var code string
	err := s.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		code = r.Code
		s.sessions.dropByPlayer(p.ID)
		r.RemovePlayer(p.ID)
		log.Info().Str("module", "store").Str("room", r.Code).Str("player", p.Name).Msg("player left")
		if len(r.Players) > 0 {
			view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	delete(s.byConn, connID)
	s.mu.Unlock()
	if view == nil {
		if s.closeRoom(code) {
			return nil, code, nil
		}
		// a racing join revived the room; nothing left to announce
		return nil, "", nil
	}
	return view, "", nil
}

// Rename updates a seat's display name, rechecking room uniqueness, and
// keeps the reconnect session's name in step.
func (s *Store) Rename(connID, newName string) (*RoomView, error) {
	now := s.now()
	var view *RoomView
	err := s.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		name, err := domain.CleanPlayerName(newName)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrValidation, err)
		}
		if other := r.PlayerByName(name); other != nil && other.ID != p.ID {
			return fmt.Errorf("%w: name %q taken", domain.ErrConflict, name)
		}
		p.Name = name
		s.sessions.rename(p.ID, name, now)
		view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: p.ID}
		return nil
	})
	return view, err
}

// Kick removes another player's seat. Only the host may kick, and never
// itself. Returns the kicked seat's connection handle (empty when the
// target was offline) so the gateway can notify and hang up.
func (s *Store) Kick(actorConnID, targetID string) (*RoomView, string, error) {
	var view *RoomView
	var kickedConn string
	err := s.WithRoomByConn(actorConnID, func(r *domain.Room, actor *domain.Player) error {
		if !actor.IsHost {
			return fmt.Errorf("%w: only the host can kick", domain.ErrPermissionDenied)
		}
		if actor.ID == targetID {
			return fmt.Errorf("%w: cannot kick yourself", domain.ErrValidation)
		}
		target := r.PlayerByID(targetID)
		if target == nil {
			return domain.ErrPlayerNotFound
		}
		kickedConn = target.ConnID
		// drop the session too, so a stale reconnect cannot restore the seat
		s.sessions.dropByPlayer(target.ID)
		r.RemovePlayer(target.ID)
		log.Info().Str("module", "store").Str("room", r.Code).Str("player", target.Name).Msg("player kicked")
		view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs(), PlayerID: target.ID}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if kickedConn != "" {
		s.mu.Lock()
		delete(s.byConn, kickedConn)
		s.mu.Unlock()
	}
	return view, kickedConn, nil
}

// closeRoom marks the entry closed under its lock, then unregisters it.
// The closed flag linearizes against WithRoom: a reconnect that already
// resolved the entry will find it closed and fail cleanly. Reports
// whether the entry was actually torn down, so callers never treat a
// room that a racing reconnect revived as closed.
func (s *Store) closeRoom(code string) bool {
	s.mu.RLock()
	e, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	// a join or reconnect that slipped in keeps the room alive
	if e.closed || e.room.ConnectedCount() > 0 {
		e.mu.Unlock()
		return false
	}
	e.closed = true
	for _, p := range e.room.Players {
		s.sessions.dropByPlayer(p.ID)
	}
	e.mu.Unlock()

	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
	log.Info().Str("module", "store").Str("room", code).Msg("room closed")
	return true
}

// Sweep frees seats disconnected past the grace period, tears down rooms
// empty past the grace period, and purges expired sessions.
func (s *Store) Sweep() SweepResult {
	now := s.now()
	var res SweepResult

	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	for _, code := range codes {
		var stale bool
		var view *RoomView
		err := s.WithRoom(code, func(r *domain.Room) error {
			changed := false
			for _, p := range append([]*domain.Player(nil), r.Players...) {
				if p.Connected || p.DisconnectedAt.IsZero() {
					continue
				}
				if now.Sub(p.DisconnectedAt) >= s.grace {
					s.sessions.dropByPlayer(p.ID)
					r.RemovePlayer(p.ID)
					changed = true
					log.Info().Str("module", "store").Str("room", code).Str("player", p.Name).Msg("seat expired")
				}
			}
			if len(r.Players) == 0 ||
				(r.ConnectedCount() == 0 && !r.EmptySince.IsZero() && now.Sub(r.EmptySince) >= s.grace) {
				stale = true
				return nil
			}
			if changed {
				view = &RoomView{Snap: r.Snapshot(), Conns: r.ConnIDs()}
			}
			return nil
		})
		if err != nil {
			continue
		}
		if stale {
			if s.closeRoom(code) {
				res.Closed = append(res.Closed, code)
			}
		} else if view != nil {
			res.Updated = append(res.Updated, view)
		}
	}
	s.sessions.sweepExpired(now)
	return res
}

// RunSweeper ticks Sweep until the context is cancelled, reporting each
// pass's changes through onPass (which may be nil).
func (s *Store) RunSweeper(ctx context.Context, every time.Duration, onPass func(SweepResult)) {
	if every <= 0 {
		every = 15 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res := s.Sweep()
			if onPass != nil && (len(res.Closed) > 0 || len(res.Updated) > 0) {
				onPass(res)
			}
		}
	}
}

// RoomSummary is the public listing shape of one room.
type RoomSummary struct {
	Code    string          `json:"code"`
	Players int             `json:"players"`
	Phase   domain.Phase    `json:"phase"`
	Mode    domain.CallMode `json:"mode"`
}

// List summarizes every live room, for the REST listing.
func (s *Store) List() []RoomSummary {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for c := range s.rooms {
		codes = append(codes, c)
	}
	s.mu.RUnlock()

	out := make([]RoomSummary, 0, len(codes))
	for _, code := range codes {
		_ = s.WithRoom(code, func(r *domain.Room) error {
			out = append(out, RoomSummary{
				Code:    r.Code,
				Players: len(r.Players),
				Phase:   r.Phase,
				Mode:    r.Mode,
			})
			return nil
		})
	}
	return out
}

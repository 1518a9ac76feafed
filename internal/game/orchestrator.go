// Package game drives the room state machine. Every command validates
// its guards inside the store's per-room serialization point, mutates,
// and hands exactly one consistent snapshot to the notifier, so no
// participant can ever observe a half-applied command.
package game

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khanhnq1406/lo-to-sub001/internal/board"
	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
	"github.com/khanhnq1406/lo-to-sub001/internal/store"
)

// Notifier delivers outbound events. The ws gateway implements it; tests
// substitute a recorder.
type Notifier interface {
	Unicast(connID, event string, data map[string]any)
	Broadcast(connIDs []string, event string, data map[string]any)
	// Hangup closes a connection whose seat was removed server-side.
	Hangup(connID string)
}

// Config bounds the gameplay knobs.
type Config struct {
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration
	MaxBoards       int
}

func (c *Config) fill() {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 5 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 250 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	if c.MaxBoards <= 0 {
		c.MaxBoards = 2
	}
}

type Orchestrator struct {
	st     *store.Store
	cfg    Config
	notify Notifier

	// scheduler arena: roomCode -> live caller, cancel-on-teardown
	cmu     sync.Mutex
	callers map[string]*caller

	rmu sync.Mutex
	rng *rand.Rand
}

func New(st *store.Store, cfg Config, n Notifier) *Orchestrator {
	cfg.fill()
	if n == nil {
		n = nopNotifier{}
	}
	return &Orchestrator{
		st:      st,
		cfg:     cfg,
		notify:  n,
		callers: make(map[string]*caller),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type nopNotifier struct{}

func (nopNotifier) Unicast(string, string, map[string]any)     {}
func (nopNotifier) Broadcast([]string, string, map[string]any) {}
func (nopNotifier) Hangup(string)                              {}

func (o *Orchestrator) emit(conns []string, event string, snap *domain.RoomSnapshot, extra map[string]any) {
	data := map[string]any{"room": snap}
	for k, v := range extra {
		data[k] = v
	}
	o.notify.Broadcast(conns, event, data)
}

func (o *Orchestrator) checkInterval(d time.Duration) error {
	if d < o.cfg.MinInterval || d > o.cfg.MaxInterval {
		return fmt.Errorf("%w: interval %s out of range", domain.ErrValidation, d)
	}
	return nil
}

// CreateRoom seats the creator as host and caller of a fresh room. An
// omitted mode falls back to manual calling, an interval of zero takes
// the configured default.
func (o *Orchestrator) CreateRoom(connID, token, name, mode string, interval time.Duration) error {
	m := domain.ModeManual
	if mode != "" {
		var err error
		m, err = domain.ParseCallMode(mode)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrValidation, err)
		}
	}
	if interval == 0 {
		interval = o.cfg.DefaultInterval
	}
	if err := o.checkInterval(interval); err != nil {
		return err
	}
	view, err := o.st.CreateRoom(name, m, interval, connID, token)
	if err != nil {
		return err
	}
	o.notify.Unicast(connID, "room_state", map[string]any{"room": view.Snap, "you": view.PlayerID})
	return nil
}

// Join seats a player in a waiting room, or reactivates their seat when
// the token already maps into this room.
func (o *Orchestrator) Join(connID, token, code, name string) error {
	view, err := o.st.JoinRoom(code, name, connID, token)
	if err != nil {
		return err
	}
	o.notify.Unicast(connID, "room_state", map[string]any{"room": view.Snap, "you": view.PlayerID})
	o.emit(view.Conns, "player_joined", view.Snap, map[string]any{"playerId": view.PlayerID})
	return nil
}

// Reconnect rebinds the seat behind a token to a new connection.
func (o *Orchestrator) Reconnect(connID, token string) error {
	view, err := o.st.Reconnect(token, connID)
	if err != nil {
		return err
	}
	o.notify.Unicast(connID, "room_state", map[string]any{"room": view.Snap, "you": view.PlayerID})
	o.emit(view.Conns, "player_joined", view.Snap, map[string]any{"playerId": view.PlayerID, "reconnected": true})
	return nil
}

// Leave frees the seat immediately.
func (o *Orchestrator) Leave(connID string) error {
	view, closedCode, err := o.st.Leave(connID)
	if err != nil {
		return err
	}
	if closedCode != "" {
		o.stopCaller(closedCode)
		return nil
	}
	if view != nil {
		o.emit(view.Conns, "player_left", view.Snap, map[string]any{"playerId": view.PlayerID})
	}
	return nil
}

// Disconnect marks the seat inactive; the sweep frees it after the
// grace period. Safe to call for connections that never joined a room.
func (o *Orchestrator) Disconnect(connID string) {
	if view := o.st.Disconnect(connID); view != nil {
		o.emit(view.Conns, "room_state", view.Snap, nil)
	}
}

// Kick removes another seat, host only. The target gets told before the
// room sees the departure.
func (o *Orchestrator) Kick(connID, targetID string) error {
	view, kickedConn, err := o.st.Kick(connID, targetID)
	if err != nil {
		return err
	}
	if kickedConn != "" {
		o.notify.Unicast(kickedConn, "kicked", map[string]any{"room": view.Snap.Code})
		o.notify.Hangup(kickedConn)
	}
	o.emit(view.Conns, "player_left", view.Snap, map[string]any{"playerId": view.PlayerID, "kicked": true})
	return nil
}

// Rename changes a display name, rechecking room uniqueness.
func (o *Orchestrator) Rename(connID, newName string) error {
	view, err := o.st.Rename(connID, newName)
	if err != nil {
		return err
	}
	o.emit(view.Conns, "room_state", view.Snap, nil)
	return nil
}

// StartGame moves a waiting room into play. Host only, and somebody has
// to be holding a ticket. Auto mode starts the room's scheduler.
func (o *Orchestrator) StartGame(connID string) error {
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host can start", domain.ErrPermissionDenied)
		}
		if r.Phase != domain.PhaseWaiting {
			return fmt.Errorf("%w: game already started", domain.ErrPhase)
		}
		anyBoards := false
		for _, sp := range r.Players {
			if len(sp.Boards) > 0 {
				anyBoards = true
				break
			}
		}
		if !anyBoards {
			return fmt.Errorf("%w: nobody holds a board", domain.ErrValidation)
		}
		r.Phase = domain.PhasePlaying
		if r.Mode == domain.ModeAuto {
			o.startCaller(r.Code, r.Interval)
		}
		log.Info().Str("module", "game").Str("room", r.Code).Str("mode", string(r.Mode)).Msg("game started")
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "game_started", snap, nil)
	return nil
}

// CallNumber is the manual draw, caller only.
func (o *Orchestrator) CallNumber(connID string, n int) error {
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if r.Phase != domain.PhasePlaying {
			return fmt.Errorf("%w: not playing", domain.ErrPhase)
		}
		if r.Mode != domain.ModeManual {
			return fmt.Errorf("%w: room calls automatically", domain.ErrPhase)
		}
		if !p.IsCaller {
			return fmt.Errorf("%w: only the caller draws", domain.ErrPermissionDenied)
		}
		if n < 1 || n > domain.MaxNumber {
			return fmt.Errorf("%w: number %d out of range", domain.ErrValidation, n)
		}
		if r.Called(n) {
			return fmt.Errorf("%w: %d already called", domain.ErrConflict, n)
		}
		applyCall(r, n)
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emitCalled(conns, snap)
	return nil
}

// applyCall appends a drawn number. Caller holds the room lock. The
// claim gate reopens: a player who misfired may claim again now.
func applyCall(r *domain.Room, n int) {
	r.History = append(r.History, n)
	cur := n
	r.Current = &cur
	for id := range r.Claimed {
		delete(r.Claimed, id)
	}
}

func (o *Orchestrator) emitCalled(conns []string, snap *domain.RoomSnapshot) {
	o.emit(conns, "number_called", snap, map[string]any{
		"number":    snap.Current,
		"history":   snap.History,
		"remaining": snap.Remaining,
	})
}

// autoCall is one scheduler tick. It reports whether the scheduler
// should keep running; phase and mode are re-checked under the room
// lock, so a cancelled game can never gain another number.
func (o *Orchestrator) autoCall(code string) bool {
	keep := true
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoom(code, func(r *domain.Room) error {
		if r.Phase != domain.PhasePlaying || r.Mode != domain.ModeAuto {
			keep = false
			return nil
		}
		left := make([]int, 0, r.Remaining())
		called := r.CalledSet()
		for n := 1; n <= domain.MaxNumber; n++ {
			if !called[n] {
				left = append(left, n)
			}
		}
		if len(left) == 0 {
			keep = false
			return nil
		}
		o.rmu.Lock()
		n := left[o.rng.Intn(len(left))]
		o.rmu.Unlock()
		applyCall(r, n)
		if len(left) == 1 {
			keep = false
		}
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return false
	}
	if snap != nil {
		o.emitCalled(conns, snap)
	}
	return keep
}

// ClaimWin checks the claimant's own tickets against the called set. A
// boardIndex below zero means any of their tickets; the scan order
// (board assignment order, rows top to bottom) breaks ties. A false
// claim is an explicit rejection, and closes the claim gate for that
// player until the next number is drawn.
func (o *Orchestrator) ClaimWin(connID string, boardIndex int) error {
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if r.Phase != domain.PhasePlaying {
			return fmt.Errorf("%w: not playing", domain.ErrPhase)
		}
		if boardIndex >= len(p.Boards) {
			return fmt.Errorf("%w: no board %d", domain.ErrValidation, boardIndex)
		}
		if r.Claimed[p.ID] {
			return fmt.Errorf("%w: wait for the next number to claim again", domain.ErrConflict)
		}
		called := r.CalledSet()
		var hit board.Hit
		var won bool
		if boardIndex < 0 {
			hit, won = board.Evaluate(p.Boards, called)
		} else {
			if rows := board.RowsCompleted(p.Boards[boardIndex], called); len(rows) > 0 {
				hit, won = board.Hit{BoardIndex: boardIndex, Row: rows[0]}, true
			}
		}
		if !won {
			r.Claimed[p.ID] = true
			return domain.ErrInvalidClaim
		}
		r.Winner = &domain.WinResult{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			BoardIndex: hit.BoardIndex,
			Row:        hit.Row,
			Type:       domain.WinRow,
		}
		r.Phase = domain.PhaseFinished
		o.stopCaller(r.Code)
		log.Info().Str("module", "game").Str("room", r.Code).Str("winner", p.Name).Int("row", hit.Row).Msg("game finished")
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "game_finished", snap, map[string]any{"winner": snap.Winner})
	return nil
}

// SelectBoard takes ownership of a catalog slot and materializes its
// ticket in one step, keyed into the player's list by slot rank.
func (o *Orchestrator) SelectBoard(connID string, slot int) error {
	var snap *domain.RoomSnapshot
	var conns []string
	var playerID string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if r.Phase != domain.PhaseWaiting {
			return fmt.Errorf("%w: boards are picked before the game", domain.ErrPhase)
		}
		b, err := board.FromSlot(slot)
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrValidation, err)
		}
		if owner, taken := r.SlotOwners[slot]; taken {
			if who := r.PlayerByID(owner); who != nil {
				return fmt.Errorf("%w: slot %d held by %s", domain.ErrConflict, slot, who.Name)
			}
			return fmt.Errorf("%w: slot %d already held", domain.ErrConflict, slot)
		}
		if len(p.Slots) >= o.cfg.MaxBoards {
			return fmt.Errorf("%w: at most %d boards", domain.ErrConflict, o.cfg.MaxBoards)
		}
		pos := 0
		for _, s := range p.Slots {
			if s < slot {
				pos++
			}
		}
		p.Slots = append(p.Slots, 0)
		copy(p.Slots[pos+1:], p.Slots[pos:])
		p.Slots[pos] = slot
		p.Boards = append(p.Boards, domain.Board{})
		copy(p.Boards[pos+1:], p.Boards[pos:])
		p.Boards[pos] = b
		r.SlotOwners[slot] = p.ID
		playerID = p.ID
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "board_selected", snap, map[string]any{"slot": slot, "playerId": playerID})
	return nil
}

// DeselectBoard releases a held slot and its ticket, preserving the
// order of the rest. Releasing a slot you do not hold is a conflict.
func (o *Orchestrator) DeselectBoard(connID string, slot int) error {
	var snap *domain.RoomSnapshot
	var conns []string
	var playerID string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if r.Phase != domain.PhaseWaiting {
			return fmt.Errorf("%w: boards are picked before the game", domain.ErrPhase)
		}
		pos := -1
		for i, s := range p.Slots {
			if s == slot {
				pos = i
				break
			}
		}
		if pos < 0 || r.SlotOwners[slot] != p.ID {
			return fmt.Errorf("%w: slot %d not held", domain.ErrConflict, slot)
		}
		p.Slots = append(p.Slots[:pos], p.Slots[pos+1:]...)
		p.Boards = append(p.Boards[:pos], p.Boards[pos+1:]...)
		delete(r.SlotOwners, slot)
		playerID = p.ID
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "board_deselected", snap, map[string]any{"slot": slot, "playerId": playerID})
	return nil
}

// ChangeMode switches between manual and automatic calling. Host only,
// and only before the game starts. A positive interval applies as well.
func (o *Orchestrator) ChangeMode(connID, mode string, interval time.Duration) error {
	m, err := domain.ParseCallMode(mode)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	var snap *domain.RoomSnapshot
	var conns []string
	err = o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host changes the mode", domain.ErrPermissionDenied)
		}
		if r.Phase != domain.PhaseWaiting {
			return fmt.Errorf("%w: mode is fixed once playing", domain.ErrPhase)
		}
		if interval > 0 {
			if err := o.checkInterval(interval); err != nil {
				return err
			}
			r.Interval = interval
		}
		r.Mode = m
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "mode_changed", snap, map[string]any{"mode": m})
	return nil
}

// ChangeInterval retunes the call pace, allowed mid-game; a live
// scheduler restarts with the new interval atomically under the room
// lock.
func (o *Orchestrator) ChangeInterval(connID string, interval time.Duration) error {
	if err := o.checkInterval(interval); err != nil {
		return err
	}
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host changes the pace", domain.ErrPermissionDenied)
		}
		if r.Phase == domain.PhaseFinished {
			return fmt.Errorf("%w: game is over", domain.ErrPhase)
		}
		r.Interval = interval
		if r.Phase == domain.PhasePlaying && r.Mode == domain.ModeAuto {
			o.startCaller(r.Code, interval)
		}
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "interval_changed", snap, map[string]any{"intervalMs": interval.Milliseconds()})
	return nil
}

// ChangeCaller hands the drawing privilege to another seat.
func (o *Orchestrator) ChangeCaller(connID, targetID string) error {
	var snap *domain.RoomSnapshot
	var conns []string
	var from string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host transfers the caller", domain.ErrPermissionDenied)
		}
		if r.Phase == domain.PhaseFinished {
			return fmt.Errorf("%w: game is over", domain.ErrPhase)
		}
		if cur := r.Caller(); cur != nil {
			from = cur.ID
		}
		if !r.PromoteCaller(targetID) {
			return domain.ErrPlayerNotFound
		}
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "caller_changed", snap, map[string]any{"from": from, "to": targetID})
	return nil
}

// SetAutoMark flips the shared marking-mode flag, host only.
func (o *Orchestrator) SetAutoMark(connID string, on bool) error {
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host changes marking", domain.ErrPermissionDenied)
		}
		r.AutoMark = on
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "marking_changed", snap, map[string]any{"autoMark": on})
	return nil
}

// Reset returns a playing or finished room to waiting: history, current
// number and winner go, players and their boards stay.
func (o *Orchestrator) Reset(connID string) error {
	var snap *domain.RoomSnapshot
	var conns []string
	err := o.st.WithRoomByConn(connID, func(r *domain.Room, p *domain.Player) error {
		if !p.IsHost {
			return fmt.Errorf("%w: only the host resets", domain.ErrPermissionDenied)
		}
		if r.Phase == domain.PhaseWaiting {
			return fmt.Errorf("%w: nothing to reset", domain.ErrPhase)
		}
		o.stopCaller(r.Code)
		r.Phase = domain.PhaseWaiting
		r.History = nil
		r.Current = nil
		r.Winner = nil
		for id := range r.Claimed {
			delete(r.Claimed, id)
		}
		log.Info().Str("module", "game").Str("room", r.Code).Msg("game reset")
		snap, conns = r.Snapshot(), r.ConnIDs()
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(conns, "game_reset", snap, nil)
	return nil
}

// RunSweeper drives the store's cleanup loop, stopping schedulers of
// torn-down rooms and broadcasting rooms that lost timed-out seats.
func (o *Orchestrator) RunSweeper(ctx context.Context, every time.Duration) {
	o.st.RunSweeper(ctx, every, func(res store.SweepResult) {
		for _, code := range res.Closed {
			o.stopCaller(code)
		}
		for _, v := range res.Updated {
			o.emit(v.Conns, "room_state", v.Snap, nil)
		}
	})
}

// Rooms exposes the store's public listing for the REST layer.
func (o *Orchestrator) Rooms() []store.RoomSummary {
	return o.st.List()
}

package domain

import (
	"errors"
	"time"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type CallMode string

const (
	// ModeAuto draws numbers on a per-room scheduler.
	ModeAuto CallMode = "auto"
	// ModeManual leaves drawing to the player holding the caller role.
	ModeManual CallMode = "manual"
)

var ErrUnknownMode = errors.New("unknown calling mode")

// ParseCallMode accepts the wire spelling of a calling mode.
func ParseCallMode(s string) (CallMode, error) {
	switch s {
	case string(ModeAuto), "automatic":
		return ModeAuto, nil
	case string(ModeManual):
		return ModeManual, nil
	default:
		return "", ErrUnknownMode
	}
}

type WinType string

// WinRow is the only winning pattern: a fully-called horizontal row.
const WinRow WinType = "row"

// WinResult records the claim that ended a game. Immutable once set.
type WinResult struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	BoardIndex int     `json:"boardIndex"`
	Row        int     `json:"row"`
	Type       WinType `json:"type"`
}

// Room is the authoritative state of one game. All mutation happens under
// the store's per-room lock; nothing here synchronizes on its own.
type Room struct {
	Code      string
	Players   []*Player
	Phase     Phase
	Mode      CallMode
	Current   *int  // most recently called number
	History   []int // call order, no duplicates, subset of 1..MaxNumber
	Winner    *WinResult
	Interval  time.Duration
	AutoMark  bool // shared marking-mode flag, host-controlled
	CreatedAt time.Time

	// SlotOwners maps a catalog slot to the seat holding it.
	SlotOwners map[int]string

	// Claimed gates claim_win to one rejected attempt per player per
	// called number; cleared on every call and on reset.
	Claimed map[string]bool

	// EmptySince is set when the last connected player drops and cleared
	// on any reconnect/join; the sweeper tears the room down once it is
	// older than the grace period.
	EmptySince time.Time
}

func NewRoom(code string, mode CallMode, interval time.Duration, now time.Time) *Room {
	return &Room{
		Code:       code,
		Phase:      PhaseWaiting,
		Mode:       mode,
		Interval:   interval,
		CreatedAt:  now,
		SlotOwners: make(map[int]string),
		Claimed:    make(map[string]bool),
	}
}

// PlayerByID returns the seat with the given stable ID.
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByConn returns the seat currently bound to a connection handle.
func (r *Room) PlayerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

// PlayerByName matches case-insensitively, the same rule join uses.
func (r *Room) PlayerByName(name string) *Player {
	for _, p := range r.Players {
		if SameName(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func (r *Room) Caller() *Player {
	for _, p := range r.Players {
		if p.IsCaller {
			return p
		}
	}
	return nil
}

// ConnectedCount counts seats with a live connection.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// ConnIDs lists the live connection handles of the room, for fan-out.
func (r *Room) ConnIDs() []string {
	out := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected && p.ConnID != "" {
			out = append(out, p.ConnID)
		}
	}
	return out
}

// Called reports whether n is already in the history.
func (r *Room) Called(n int) bool {
	for _, h := range r.History {
		if h == n {
			return true
		}
	}
	return false
}

// Remaining is how many numbers are still drawable.
func (r *Room) Remaining() int {
	return MaxNumber - len(r.History)
}

// CalledSet returns the history as a membership set.
func (r *Room) CalledSet() map[int]bool {
	set := make(map[int]bool, len(r.History))
	for _, n := range r.History {
		set[n] = true
	}
	return set
}

// RemovePlayer drops a seat, preserving join order of the rest, and
// releases every slot the seat held. Host and caller roles move to the
// first remaining seat in join order (caller falls back to the host when
// only the caller left). Returns false if the seat was not present.
func (r *Room) RemovePlayer(id string) bool {
	idx := -1
	for i, p := range r.Players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	leaving := r.Players[idx]
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	for slot, owner := range r.SlotOwners {
		if owner == id {
			delete(r.SlotOwners, slot)
		}
	}
	delete(r.Claimed, id)

	if len(r.Players) == 0 {
		return true
	}
	if leaving.IsHost {
		next := r.Players[0]
		next.IsHost = true
		if cur := r.Caller(); cur == nil {
			next.IsCaller = true
		}
	} else if leaving.IsCaller {
		// Keep a caller seated so manual games stay drivable.
		if h := r.Host(); h != nil {
			h.IsCaller = true
		}
	}
	return true
}

func (r *Room) demoteCaller() {
	for _, p := range r.Players {
		p.IsCaller = false
	}
}

// PromoteCaller moves the caller role to the given seat.
func (r *Room) PromoteCaller(id string) bool {
	target := r.PlayerByID(id)
	if target == nil {
		return false
	}
	r.demoteCaller()
	target.IsCaller = true
	return true
}

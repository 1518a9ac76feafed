package domain

import "time"

// PlayerView is the broadcastable slice of a Player. Boards are included:
// every participant sees everyone's tickets, as at a physical table.
type PlayerView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slots     []int   `json:"slots"`
	Boards    []Board `json:"boards"`
	IsHost    bool    `json:"isHost"`
	IsCaller  bool    `json:"isCaller"`
	Connected bool    `json:"connected"`
}

// RoomSnapshot is the full-room state sent after every mutation. It is a
// deep copy taken under the room lock, so all recipients of one broadcast
// observe the same post-mutation state.
type RoomSnapshot struct {
	Code       string         `json:"code"`
	Phase      Phase          `json:"phase"`
	Mode       CallMode       `json:"mode"`
	IntervalMS int64          `json:"intervalMs"`
	AutoMark   bool           `json:"autoMark"`
	Current    *int           `json:"current,omitempty"`
	History    []int          `json:"history"`
	Remaining  int            `json:"remaining"`
	Winner     *WinResult     `json:"winner,omitempty"`
	Players    []PlayerView   `json:"players"`
	SlotOwners map[int]string `json:"slotOwners"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Snapshot deep-copies the room into its broadcast form.
func (r *Room) Snapshot() *RoomSnapshot {
	snap := &RoomSnapshot{
		Code:       r.Code,
		Phase:      r.Phase,
		Mode:       r.Mode,
		IntervalMS: r.Interval.Milliseconds(),
		AutoMark:   r.AutoMark,
		History:    append([]int(nil), r.History...),
		Remaining:  r.Remaining(),
		Players:    make([]PlayerView, 0, len(r.Players)),
		SlotOwners: make(map[int]string, len(r.SlotOwners)),
		CreatedAt:  r.CreatedAt,
	}
	if r.History == nil {
		snap.History = []int{}
	}
	if r.Current != nil {
		n := *r.Current
		snap.Current = &n
	}
	if r.Winner != nil {
		w := *r.Winner
		snap.Winner = &w
	}
	for slot, owner := range r.SlotOwners {
		snap.SlotOwners[slot] = owner
	}
	for _, p := range r.Players {
		slots := append([]int(nil), p.Slots...)
		if slots == nil {
			slots = []int{}
		}
		boards := append([]Board(nil), p.Boards...)
		if boards == nil {
			boards = []Board{}
		}
		snap.Players = append(snap.Players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Slots:     slots,
			Boards:    boards,
			IsHost:    p.IsHost,
			IsCaller:  p.IsCaller,
			Connected: p.Connected,
		})
	}
	return snap
}

package game

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnq1406/lo-to-sub001/internal/board"
	"github.com/khanhnq1406/lo-to-sub001/internal/domain"
	"github.com/khanhnq1406/lo-to-sub001/internal/store"
)

// recorder captures notifier traffic so tests can assert on the event
// stream and pull room state out of snapshots.
type recorder struct {
	mu      sync.Mutex
	events  []recordedEvent
	hangups []string
}

type recordedEvent struct {
	event string
	to    []string // nil for unicast
	data  map[string]any
}

func (r *recorder) Unicast(connID, event string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, to: []string{connID}, data: data})
}

func (r *recorder) Broadcast(connIDs []string, event string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, to: connIDs, data: data})
}

func (r *recorder) Hangup(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hangups = append(r.hangups, connID)
}

// lastRoom returns the snapshot attached to the latest event.
func (r *recorder) lastRoom(t *testing.T) *domain.RoomSnapshot {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if snap, ok := r.events[i].data["room"].(*domain.RoomSnapshot); ok {
			return snap
		}
	}
	t.Fatal("no snapshot recorded yet")
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestOrch(t *testing.T) (*Orchestrator, *recorder) {
	t.Helper()
	rec := &recorder{}
	st := store.New(store.Options{ReconnectGrace: time.Minute, SessionTTL: time.Hour})
	o := New(st, Config{
		DefaultInterval: 50 * time.Millisecond,
		MinInterval:     10 * time.Millisecond,
		MaxInterval:     time.Minute,
		MaxBoards:       2,
	}, rec)
	t.Cleanup(o.Shutdown)
	return o, rec
}

// makeRoom seats Alice as host in manual mode and returns the room code
// and her player ID.
func makeRoom(t *testing.T, o *Orchestrator, rec *recorder, mode string) (code, aliceID string) {
	t.Helper()
	require.NoError(t, o.CreateRoom("conn-alice", "tok-alice", "Alice", mode, 0))
	snap := rec.lastRoom(t)
	return snap.Code, snap.Players[0].ID
}

func joinBob(t *testing.T, o *Orchestrator, rec *recorder, code string) (bobID string) {
	t.Helper()
	require.NoError(t, o.Join("conn-bob", "tok-bob", code, "Bob"))
	snap := rec.lastRoom(t)
	for _, p := range snap.Players {
		if p.Name == "Bob" {
			return p.ID
		}
	}
	t.Fatal("Bob not seated")
	return ""
}

// Omitted knobs on creation fall back to defaults; only an unknown mode
// spelling is rejected.
func TestCreateRoomDefaults(t *testing.T) {
	o, rec := newTestOrch(t)
	require.NoError(t, o.CreateRoom("conn-alice", "tok-alice", "Alice", "", 0))
	snap := rec.lastRoom(t)
	assert.Equal(t, domain.ModeManual, snap.Mode)
	assert.Equal(t, int64(50), snap.IntervalMS)

	assert.ErrorIs(t, o.CreateRoom("conn-x", "tok-x", "Xena", "turbo", 0), domain.ErrValidation)
}

// Scenario: selection is exclusive per slot and atomic with the ticket.
func TestBoardSelection(t *testing.T) {
	o, rec := newTestOrch(t)
	code, aliceID := makeRoom(t, o, rec, "manual")

	require.NoError(t, o.SelectBoard("conn-alice", 1))
	snap := rec.lastRoom(t)
	require.Len(t, snap.Players[0].Boards, 1)
	assert.Equal(t, []int{1}, snap.Players[0].Slots)
	assert.Equal(t, aliceID, snap.SlotOwners[1])
	want, err := board.FromSlot(1)
	require.NoError(t, err)
	assert.Equal(t, want, snap.Players[0].Boards[0], "slot 1 materializes its catalog ticket")

	joinBob(t, o, rec, code)

	err = o.SelectBoard("conn-bob", 1)
	assert.ErrorIs(t, err, domain.ErrConflict, "slot 1 is taken")

	require.NoError(t, o.SelectBoard("conn-bob", 2))

	t.Run("per-player limit", func(t *testing.T) {
		require.NoError(t, o.SelectBoard("conn-bob", 3))
		err := o.SelectBoard("conn-bob", 4)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("slot rank orders boards", func(t *testing.T) {
		snap := rec.lastRoom(t)
		var bob domain.PlayerView
		for _, p := range snap.Players {
			if p.Name == "Bob" {
				bob = p
			}
		}
		assert.Equal(t, []int{2, 3}, bob.Slots)
		b2, _ := board.FromSlot(2)
		b3, _ := board.FromSlot(3)
		assert.Equal(t, []domain.Board{b2, b3}, bob.Boards)
	})

	t.Run("unknown slot", func(t *testing.T) {
		assert.ErrorIs(t, o.SelectBoard("conn-alice", 0), domain.ErrValidation)
		assert.ErrorIs(t, o.SelectBoard("conn-alice", board.CatalogSize+1), domain.ErrValidation)
	})
}

func TestDeselectBoard(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "manual")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.SelectBoard("conn-alice", 4))

	require.NoError(t, o.DeselectBoard("conn-alice", 1))
	snap := rec.lastRoom(t)
	assert.Equal(t, []int{4}, snap.Players[0].Slots)
	b4, _ := board.FromSlot(4)
	assert.Equal(t, []domain.Board{b4}, snap.Players[0].Boards, "remaining board keeps its data")
	assert.NotContains(t, snap.SlotOwners, 1)

	// second deselect fails and mutates nothing
	err := o.DeselectBoard("conn-alice", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	again := rec.lastRoom(t)
	assert.Equal(t, snap.Players[0].Slots, again.Players[0].Slots)
}

func TestStartGameGuards(t *testing.T) {
	o, rec := newTestOrch(t)
	code, _ := makeRoom(t, o, rec, "manual")
	joinBob(t, o, rec, code)

	t.Run("needs a board somewhere", func(t *testing.T) {
		assert.ErrorIs(t, o.StartGame("conn-alice"), domain.ErrValidation)
	})

	require.NoError(t, o.SelectBoard("conn-alice", 1))

	t.Run("host only", func(t *testing.T) {
		assert.ErrorIs(t, o.StartGame("conn-bob"), domain.ErrPermissionDenied)
	})

	require.NoError(t, o.StartGame("conn-alice"))
	assert.Equal(t, domain.PhasePlaying, rec.lastRoom(t).Phase)

	t.Run("no double start", func(t *testing.T) {
		assert.ErrorIs(t, o.StartGame("conn-alice"), domain.ErrPhase)
	})
}

func TestManualCalling(t *testing.T) {
	o, rec := newTestOrch(t)
	code, _ := makeRoom(t, o, rec, "manual")
	joinBob(t, o, rec, code)
	require.NoError(t, o.SelectBoard("conn-alice", 1))

	t.Run("not before start", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-alice", 7), domain.ErrPhase)
	})

	require.NoError(t, o.StartGame("conn-alice"))

	t.Run("caller only", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-bob", 7), domain.ErrPermissionDenied)
	})

	require.NoError(t, o.CallNumber("conn-alice", 7))
	snap := rec.lastRoom(t)
	require.NotNil(t, snap.Current)
	assert.Equal(t, 7, *snap.Current)
	assert.Equal(t, []int{7}, snap.History)
	assert.Equal(t, domain.MaxNumber-1, snap.Remaining)

	t.Run("no duplicates", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-alice", 7), domain.ErrConflict)
	})

	t.Run("range checked", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-alice", 0), domain.ErrValidation)
		assert.ErrorIs(t, o.CallNumber("conn-alice", 91), domain.ErrValidation)
	})

	t.Run("caller transfer moves the privilege", func(t *testing.T) {
		bobID := ""
		for _, p := range rec.lastRoom(t).Players {
			if p.Name == "Bob" {
				bobID = p.ID
			}
		}
		require.NoError(t, o.ChangeCaller("conn-alice", bobID))
		assert.ErrorIs(t, o.CallNumber("conn-alice", 8), domain.ErrPermissionDenied)
		require.NoError(t, o.CallNumber("conn-bob", 8))
	})
}

// Scenario: machine mode draws on its own at the configured interval.
func TestAutoCalling(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "auto")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.ChangeInterval("conn-alice", 20*time.Millisecond))
	require.NoError(t, o.StartGame("conn-alice"))

	t.Run("manual call rejected in auto mode", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-alice", 7), domain.ErrPhase)
	})

	time.Sleep(110 * time.Millisecond)
	require.NoError(t, o.Reset("conn-alice")) // stops the scheduler

	snap := rec.lastRoom(t)
	assert.Equal(t, domain.PhaseWaiting, snap.Phase)

	calls := rec.count("number_called")
	assert.GreaterOrEqual(t, calls, 2, "scheduler should have drawn a few numbers")
	assert.LessOrEqual(t, calls, 8)

	// numbers drawn before the reset were unique and in range
	rec.mu.Lock()
	seen := map[int]bool{}
	for _, e := range rec.events {
		if e.event != "number_called" {
			continue
		}
		snap := e.data["room"].(*domain.RoomSnapshot)
		n := *snap.Current
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, domain.MaxNumber)
		assert.False(t, seen[n], "number %d drawn twice", n)
		seen[n] = true
	}
	rec.mu.Unlock()

	// after reset the scheduler is gone: no further draws
	time.Sleep(30 * time.Millisecond) // let any in-flight tick settle
	before := rec.count("number_called")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, rec.count("number_called"))
}

// Scenario: a true claim finishes the game; calls after that are phase
// errors; a false claim is told apart from a malformed one.
func TestClaimWin(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "manual")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.StartGame("conn-alice"))

	ticket, err := board.FromSlot(1)
	require.NoError(t, err)
	row0 := ticket.Row(0)
	require.Len(t, row0, 5)

	t.Run("premature claim rejected explicitly", func(t *testing.T) {
		assert.ErrorIs(t, o.ClaimWin("conn-alice", 0), domain.ErrInvalidClaim)
	})

	t.Run("claim gate holds until the next number", func(t *testing.T) {
		assert.ErrorIs(t, o.ClaimWin("conn-alice", 0), domain.ErrConflict)
	})

	t.Run("malformed claim is a different error", func(t *testing.T) {
		assert.ErrorIs(t, o.ClaimWin("conn-alice", 5), domain.ErrValidation)
	})

	for _, n := range row0 {
		require.NoError(t, o.CallNumber("conn-alice", n))
	}

	require.NoError(t, o.ClaimWin("conn-alice", 0))
	snap := rec.lastRoom(t)
	assert.Equal(t, domain.PhaseFinished, snap.Phase)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, "Alice", snap.Winner.PlayerName)
	assert.Equal(t, 0, snap.Winner.BoardIndex)
	assert.Equal(t, 0, snap.Winner.Row)
	assert.Equal(t, domain.WinRow, snap.Winner.Type)

	t.Run("calling after the win is a phase error", func(t *testing.T) {
		assert.ErrorIs(t, o.CallNumber("conn-alice", 90), domain.ErrPhase)
	})
}

func TestClaimWinAnyBoard(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "manual")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.SelectBoard("conn-alice", 2))
	require.NoError(t, o.StartGame("conn-alice"))

	second, err := board.FromSlot(2)
	require.NoError(t, err)
	for _, n := range second.Row(4) {
		require.NoError(t, o.CallNumber("conn-alice", n))
	}

	require.NoError(t, o.ClaimWin("conn-alice", -1))
	snap := rec.lastRoom(t)
	require.NotNil(t, snap.Winner)
	assert.Equal(t, 1, snap.Winner.BoardIndex)
	assert.Equal(t, 4, snap.Winner.Row)
}

// Scenario: reset returns to waiting, wipes the call state, keeps seats
// and tickets.
func TestReset(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "manual")
	require.NoError(t, o.SelectBoard("conn-alice", 1))

	t.Run("nothing to reset while waiting", func(t *testing.T) {
		assert.ErrorIs(t, o.Reset("conn-alice"), domain.ErrPhase)
	})

	require.NoError(t, o.StartGame("conn-alice"))
	require.NoError(t, o.CallNumber("conn-alice", 11))
	require.NoError(t, o.CallNumber("conn-alice", 12))

	require.NoError(t, o.Reset("conn-alice"))
	snap := rec.lastRoom(t)
	assert.Equal(t, domain.PhaseWaiting, snap.Phase)
	assert.Empty(t, snap.History)
	assert.Nil(t, snap.Current)
	assert.Nil(t, snap.Winner)
	assert.Len(t, snap.Players[0].Boards, 1, "tickets survive a reset")
	assert.Equal(t, []int{1}, snap.Players[0].Slots)
}

func TestChangeModeAndInterval(t *testing.T) {
	o, rec := newTestOrch(t)
	code, _ := makeRoom(t, o, rec, "manual")
	joinBob(t, o, rec, code)

	t.Run("host only", func(t *testing.T) {
		assert.ErrorIs(t, o.ChangeMode("conn-bob", "auto", 0), domain.ErrPermissionDenied)
		assert.ErrorIs(t, o.ChangeInterval("conn-bob", time.Second), domain.ErrPermissionDenied)
	})

	t.Run("unknown mode", func(t *testing.T) {
		assert.ErrorIs(t, o.ChangeMode("conn-alice", "psychic", 0), domain.ErrValidation)
	})

	t.Run("interval bounds", func(t *testing.T) {
		assert.ErrorIs(t, o.ChangeInterval("conn-alice", time.Millisecond), domain.ErrValidation)
		assert.ErrorIs(t, o.ChangeInterval("conn-alice", time.Hour), domain.ErrValidation)
	})

	require.NoError(t, o.ChangeMode("conn-alice", "automatic", time.Second))
	snap := rec.lastRoom(t)
	assert.Equal(t, domain.ModeAuto, snap.Mode)
	assert.Equal(t, int64(1000), snap.IntervalMS)

	t.Run("mode is fixed once playing", func(t *testing.T) {
		require.NoError(t, o.ChangeMode("conn-alice", "manual", 0))
		require.NoError(t, o.SelectBoard("conn-alice", 1))
		require.NoError(t, o.StartGame("conn-alice"))
		assert.ErrorIs(t, o.ChangeMode("conn-alice", "auto", 0), domain.ErrPhase)
		// but tempo changes are allowed mid-game
		require.NoError(t, o.ChangeInterval("conn-alice", 2*time.Second))
		assert.Equal(t, int64(2000), rec.lastRoom(t).IntervalMS)
	})
}

func TestMarkingMode(t *testing.T) {
	o, rec := newTestOrch(t)
	code, _ := makeRoom(t, o, rec, "manual")
	joinBob(t, o, rec, code)

	assert.ErrorIs(t, o.SetAutoMark("conn-bob", true), domain.ErrPermissionDenied)
	require.NoError(t, o.SetAutoMark("conn-alice", true))
	assert.True(t, rec.lastRoom(t).AutoMark)
}

func TestKickNotifiesTarget(t *testing.T) {
	o, rec := newTestOrch(t)
	code, _ := makeRoom(t, o, rec, "manual")
	bobID := joinBob(t, o, rec, code)

	require.NoError(t, o.Kick("conn-alice", bobID))
	assert.Equal(t, 1, rec.count("kicked"))
	assert.Equal(t, []string{"conn-bob"}, rec.hangups, "kicked connection gets hung up")
	assert.Len(t, rec.lastRoom(t).Players, 1)
}

func TestLeaveClosesEmptyRoomAndScheduler(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "auto")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.ChangeInterval("conn-alice", 20*time.Millisecond))
	require.NoError(t, o.StartGame("conn-alice"))

	require.NoError(t, o.Leave("conn-alice"))
	time.Sleep(30 * time.Millisecond) // let any in-flight tick settle
	before := rec.count("number_called")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, rec.count("number_called"), "no draws after the room died")
}

func TestReconnectKeepsSeatState(t *testing.T) {
	o, rec := newTestOrch(t)
	makeRoom(t, o, rec, "manual")
	require.NoError(t, o.SelectBoard("conn-alice", 1))
	require.NoError(t, o.SelectBoard("conn-alice", 3))

	o.Disconnect("conn-alice")
	require.NoError(t, o.Reconnect("conn-alice-2", "tok-alice"))

	snap := rec.lastRoom(t)
	p := snap.Players[0]
	assert.True(t, p.Connected)
	assert.Equal(t, []int{1, 3}, p.Slots)
	assert.Len(t, p.Boards, 2)
	assert.Equal(t, p.ID, snap.SlotOwners[1])
	assert.Equal(t, p.ID, snap.SlotOwners[3])
}

package game

import (
	"slices"
	"time"
)

// Effect tells the caller which side effects a transition asks for.
// The state machine itself never performs I/O; the coordinator reads
// these flags after a successful apply.
type Effect struct {
	Delete   bool // room emptied, delete the record instead of saving it
	Requeue  bool // random room is short a player again, put it back in the queue
	Skip     bool // nothing changed, skip the save and the broadcast
	Advanced bool // a guess was accepted and the word index moved
}

// Event is a single room mutation. Apply validates it against the
// current record and mutates the record in place; on error the record
// must be discarded by the caller.
type Event interface {
	apply(r *Room, now time.Time) (Effect, error)
}

// Apply runs one event against a room at the given instant. It is a pure
// function of its inputs: identical (room, event, now) always produce
// the identical next state.
func Apply(r *Room, ev Event, now time.Time) (Effect, error) {
	return ev.apply(r, now)
}

// Join admits a player to a room, or refreshes the nickname of a player
// who is already a member.
type Join struct {
	PlayerID string
	Nickname string
}

func (ev Join) apply(r *Room, now time.Time) (Effect, error) {
	if r.nicknameTaken(ev.PlayerID, ev.Nickname) {
		return Effect{}, ErrNicknameTaken
	}
	if r.HasPlayer(ev.PlayerID) {
		// Re-join is idempotent; only the nickname may change.
		r.Nicknames[ev.PlayerID] = ev.Nickname
		r.touch(now)
		return Effect{}, nil
	}
	if len(r.Players) >= MaxPlayers {
		return Effect{}, ErrRoomFull
	}
	r.Players = append(r.Players, ev.PlayerID)
	r.Nicknames[ev.PlayerID] = ev.Nickname
	r.Scores[ev.PlayerID] = 0
	r.touch(now)
	return Effect{}, nil
}

// MarkReady adds a player to the ready set. Readiness cannot be revoked;
// once every seat is filled and ready the countdown starts.
type MarkReady struct {
	PlayerID string
}

func (ev MarkReady) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	if !r.IsReady(ev.PlayerID) {
		r.ReadyPlayers = append(r.ReadyPlayers, ev.PlayerID)
	}
	if r.Status == StatusWaiting && r.allReady() {
		r.Status = StatusCountdown
		r.CountdownStart = now.UnixMilli()
	}
	r.touch(now)
	return Effect{}, nil
}

// SubmitGuess resolves one whole-word attempt. ExpectedWordIndex is the
// index the guessing client was solving; if the room has already moved
// past it the opponent won the race and no point is awarded here.
type SubmitGuess struct {
	PlayerID          string
	Success           bool
	Solution          string
	ExpectedWordIndex int
}

func (ev SubmitGuess) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	if r.GameOver {
		return Effect{}, ErrGameOver
	}
	if r.CurrentWordIndex > ev.ExpectedWordIndex {
		return Effect{}, &WordAdvancedError{CurrentWordIndex: r.CurrentWordIndex}
	}
	if r.CurrentWordIndex < ev.ExpectedWordIndex {
		// The client claims to be ahead of the room. That is not a race,
		// it is a desynchronized client.
		return Effect{}, ErrStaleIndex
	}

	if ev.Success {
		r.Scores[ev.PlayerID]++
	} else if opponent := r.Opponent(ev.PlayerID); opponent != "" {
		r.Scores[opponent]++
	}
	r.CurrentWordIndex++
	r.LastAction = &LastAction{
		PlayerID:  ev.PlayerID,
		Action:    actionName(ev.Success),
		Solution:  ev.Solution,
		Timestamp: now.UnixMilli(),
	}
	r.resolveWinner()
	r.touch(now)
	return Effect{Advanced: true}, nil
}

func actionName(success bool) string {
	if success {
		return ActionCorrect
	}
	return ActionFailed
}

// resolveWinner flips the room terminal once a player reaches WinScore,
// or once the word list is exhausted (higher score wins, equal is a tie).
func (r *Room) resolveWinner() {
	for _, p := range r.Players {
		if r.Scores[p] >= WinScore {
			r.GameOver = true
			r.Winner = p
			return
		}
	}
	if r.CurrentWordIndex >= len(r.Words) {
		r.GameOver = true
		if len(r.Players) == MaxPlayers {
			a, b := r.Players[0], r.Players[1]
			switch {
			case r.Scores[a] > r.Scores[b]:
				r.Winner = a
			case r.Scores[b] > r.Scores[a]:
				r.Winner = b
			}
		}
	}
}

// AdjustScore applies an additive partial-credit adjustment without
// touching the word cursor. Tallies never go below zero.
type AdjustScore struct {
	PlayerID string
	Points   int
}

func (ev AdjustScore) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	if r.GameOver {
		return Effect{}, ErrGameOver
	}
	next := r.Scores[ev.PlayerID] + ev.Points
	if next < 0 {
		next = 0
	}
	r.Scores[ev.PlayerID] = next
	r.touch(now)
	return Effect{}, nil
}

// SetWords populates the shared puzzle sequence exactly once.
type SetWords struct {
	PlayerID string
	Words    []string
}

func (ev SetWords) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	if len(r.Words) > 0 {
		return Effect{}, ErrWordsAlreadySet
	}
	r.Words = slices.Clone(ev.Words)
	r.touch(now)
	return Effect{}, nil
}

// Leave removes a player. The last player out tears the room down; a
// mid-game departure forfeits to the remaining player; a waiting random
// room goes back into the matchmaking queue.
type Leave struct {
	PlayerID string
}

func (ev Leave) apply(r *Room, now time.Time) (Effect, error) {
	idx := slices.Index(r.Players, ev.PlayerID)
	if idx < 0 {
		return Effect{}, ErrPlayerNotInRoom
	}
	wasLive := r.Status == StatusCountdown || r.Status == StatusInProgress
	r.Players = slices.Delete(r.Players, idx, idx+1)
	delete(r.Scores, ev.PlayerID)
	delete(r.Nicknames, ev.PlayerID)
	if ri := slices.Index(r.ReadyPlayers, ev.PlayerID); ri >= 0 {
		r.ReadyPlayers = slices.Delete(r.ReadyPlayers, ri, ri+1)
	}
	r.touch(now)

	if len(r.Players) == 0 {
		return Effect{Delete: true}, nil
	}
	var eff Effect
	if wasLive && !r.GameOver {
		r.GameOver = true
		r.Winner = r.Players[0]
	}
	if r.Type == RoomRandom && r.Status == StatusWaiting && !r.GameOver {
		eff.Requeue = true
	}
	return eff, nil
}

// ForceGameOver is the administrative terminal override (explicit
// forfeit). Winner may be empty for "no winner".
type ForceGameOver struct {
	PlayerID string
	Winner   string
}

func (ev ForceGameOver) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	r.GameOver = true
	r.Winner = ev.Winner
	r.touch(now)
	return Effect{}, nil
}

// Touch refreshes the room's keep-alive. Recent activity is skipped
// entirely so a chatty client does not generate write traffic.
type Touch struct {
	PlayerID string
}

func (ev Touch) apply(r *Room, now time.Time) (Effect, error) {
	if !r.HasPlayer(ev.PlayerID) {
		return Effect{}, ErrPlayerNotInRoom
	}
	if now.UnixMilli()-r.LastActivity < ActivityThrottle.Milliseconds() {
		return Effect{Skip: true}, nil
	}
	r.touch(now)
	return Effect{}, nil
}

// BeginPlay persists the time-derived countdown-to-in-progress
// transition. Multiple readers may observe the elapsed countdown at
// once, so the event is idempotent and safe to race: whoever wins the
// write produces the same record every other writer would have.
type BeginPlay struct{}

func (ev BeginPlay) apply(r *Room, now time.Time) (Effect, error) {
	if r.Status != StatusCountdown || r.RemainingCountdown(now) > 0 {
		return Effect{Skip: true}, nil
	}
	r.Status = StatusInProgress
	r.CountdownStart = 0
	return Effect{}, nil
}

package game

import (
	"slices"
	"strings"
	"time"
)

// Game configuration constants
const (
	MaxPlayers        = 2                // A room pairs exactly two players
	WinScore          = 5                // First player to reach this score wins
	CountdownDuration = 10 * time.Second // Pre-game countdown length
	ActivityThrottle  = 10 * time.Second // Minimum gap between persisted keep-alives
)

// Status is the stored lifecycle phase of a room. Game-over is a flag on
// top of the status rather than a status of its own, so a finished room
// still reports the phase it ended in.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusCountdown  Status = "countdown"
	StatusInProgress Status = "in-progress"
)

// RoomType distinguishes code-joined rooms from queue-matched ones.
type RoomType string

const (
	RoomCustom RoomType = "custom"
	RoomRandom RoomType = "random"
)

// LastAction records the most recent scoring event. It is informational
// only: clients use it to show "opponent solved CRANE", transitions never
// read it.
type LastAction struct {
	PlayerID  string `json:"playerId"`
	Action    string `json:"action"` // "correct" or "failed"
	Solution  string `json:"solution"`
	Timestamp int64  `json:"timestamp"`
}

const (
	ActionCorrect = "correct"
	ActionFailed  = "failed"
)

// Room is the serialized aggregate stored under a single key. All times
// are unix milliseconds; CountdownStart is zero unless a countdown has
// been started.
type Room struct {
	Code             string            `json:"code"`
	Type             RoomType          `json:"type"`
	Players          []string          `json:"players"`
	Nicknames        map[string]string `json:"nicknames"`
	Scores           map[string]int    `json:"scores"`
	Words            []string          `json:"words"`
	CurrentWordIndex int               `json:"currentWordIndex"`
	ReadyPlayers     []string          `json:"readyPlayers"`
	Status           Status            `json:"status"`
	CountdownStart   int64             `json:"countdownStart"`
	GameOver         bool              `json:"gameOver"`
	Winner           string            `json:"winner"`
	LastAction       *LastAction       `json:"lastAction,omitempty"`
	CreatedAt        int64             `json:"createdAt"`
	LastActivity     int64             `json:"lastActivity"`
}

// NewRoom creates a fresh room containing only its creator.
func NewRoom(code, playerID, nickname string, roomType RoomType, now time.Time) *Room {
	ms := now.UnixMilli()
	return &Room{
		Code:         code,
		Type:         roomType,
		Players:      []string{playerID},
		Nicknames:    map[string]string{playerID: nickname},
		Scores:       map[string]int{playerID: 0},
		Words:        []string{},
		ReadyPlayers: []string{},
		Status:       StatusWaiting,
		CreatedAt:    ms,
		LastActivity: ms,
	}
}

// HasPlayer reports whether the given player is a member of the room.
func (r *Room) HasPlayer(playerID string) bool {
	return slices.Contains(r.Players, playerID)
}

// Opponent returns the other member of a room, or "" if the player is
// alone (or not a member at all).
func (r *Room) Opponent(playerID string) string {
	for _, p := range r.Players {
		if p != playerID {
			return p
		}
	}
	return ""
}

// IsReady reports whether the player has marked themselves ready.
func (r *Room) IsReady(playerID string) bool {
	return slices.Contains(r.ReadyPlayers, playerID)
}

func (r *Room) allReady() bool {
	if len(r.Players) < MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !r.IsReady(p) {
			return false
		}
	}
	return true
}

// nicknameTaken reports whether another player already uses this
// nickname. The comparison is case-insensitive; empty nicknames never
// conflict.
func (r *Room) nicknameTaken(playerID, nickname string) bool {
	if nickname == "" {
		return false
	}
	for p, n := range r.Nicknames {
		if p != playerID && strings.EqualFold(n, nickname) {
			return true
		}
	}
	return false
}

// RemainingCountdown returns how much of the countdown is left at the
// given instant, or zero when the room is not counting down. The value
// is always derived from CountdownStart so every reader computes the
// same answer regardless of network delay.
func (r *Room) RemainingCountdown(now time.Time) time.Duration {
	if r.Status != StatusCountdown || r.CountdownStart <= 0 {
		return 0
	}
	elapsed := now.Sub(time.UnixMilli(r.CountdownStart))
	if elapsed >= CountdownDuration {
		return 0
	}
	return CountdownDuration - elapsed
}

// EffectiveStatus upgrades a countdown whose timer has elapsed to
// in-progress without waiting for any writer to persist the transition.
func (r *Room) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusCountdown && r.RemainingCountdown(now) == 0 {
		return StatusInProgress
	}
	return r.Status
}

func (r *Room) touch(now time.Time) {
	r.LastActivity = now.UnixMilli()
}

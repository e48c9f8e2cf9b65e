package game

import "time"

// View is the client-facing snapshot of a room. Status and
// RemainingCountdown are derived at read time so a snapshot is correct
// the moment it is rendered, however stale the stored record is.
type View struct {
	RoomCode           string            `json:"roomCode"`
	Type               RoomType          `json:"type"`
	Players            []string          `json:"players"`
	Nicknames          map[string]string `json:"nicknames"`
	Scores             map[string]int    `json:"scores"`
	Words              []string          `json:"words"`
	CurrentWordIndex   int               `json:"currentWordIndex"`
	ReadyPlayers       []string          `json:"readyPlayers"`
	Status             Status            `json:"status"`
	CountdownStart     *int64            `json:"countdownStart"`
	RemainingCountdown *int64            `json:"remainingCountdown"` // millis, only while counting down
	GameOver           bool              `json:"gameOver"`
	Winner             *string           `json:"winner"`
	LastAction         *LastAction       `json:"lastAction,omitempty"`
	Timestamp          int64             `json:"timestamp"`
}

// Snapshot renders a room as seen at the given instant.
func Snapshot(r *Room, now time.Time) View {
	v := View{
		RoomCode:         r.Code,
		Type:             r.Type,
		Players:          r.Players,
		Nicknames:        r.Nicknames,
		Scores:           r.Scores,
		Words:            r.Words,
		CurrentWordIndex: r.CurrentWordIndex,
		ReadyPlayers:     r.ReadyPlayers,
		Status:           r.EffectiveStatus(now),
		GameOver:         r.GameOver,
		LastAction:       r.LastAction,
		Timestamp:        now.UnixMilli(),
	}
	if r.Winner != "" {
		v.Winner = &r.Winner
	}
	if r.Status == StatusCountdown {
		remaining := r.RemainingCountdown(now).Milliseconds()
		v.RemainingCountdown = &remaining
		if remaining > 0 {
			start := r.CountdownStart
			v.CountdownStart = &start
		}
	}
	return v
}

package game

import (
	"errors"
	"fmt"
)

// Semantic rejections. These describe business-rule outcomes, not
// concurrency artifacts, and must never be retried by callers.
var (
	ErrRoomFull        = errors.New("room is already full")
	ErrNicknameTaken   = errors.New("nickname is already taken in this room")
	ErrPlayerNotInRoom = errors.New("player not in this room")
	ErrGameOver        = errors.New("game is already over")
	ErrWordsAlreadySet = errors.New("word list has already been set")
	ErrStaleIndex      = errors.New("expected word index is ahead of the room")
)

// WordAdvancedError reports that an opponent's guess already advanced the
// word past the index this guess was made against. It carries the
// post-advance index so the losing client can resynchronize.
type WordAdvancedError struct {
	CurrentWordIndex int
}

func (e *WordAdvancedError) Error() string {
	return fmt.Sprintf("word already advanced by opponent (current index %d)", e.CurrentWordIndex)
}

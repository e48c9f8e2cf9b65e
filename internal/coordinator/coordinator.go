// Package coordinator serializes room mutations over the shared store.
// Every client action funnels through Apply: load the record with a
// version token, run the pure state machine, compare-and-save, and
// decide on conflict whether the race was already semantically resolved
// (report it) or merely transient (retry with backoff). It is the only
// layer allowed to retry anything.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"wordrace/internal/game"
	"wordrace/internal/store"
)

const (
	maxSaveRetries   = 3  // CAS attempts per event before giving up
	maxCodeAttempts  = 10 // room-code collisions tolerated per create
	maxMatchAttempts = 10 // dead queue entries skipped per random join
	retryBackoffStep = 10 * time.Millisecond
)

var (
	// ErrTryAgain reports exhausted CAS retries with no semantic
	// resolution. Distinct from every semantic rejection so callers can
	// offer the user a retry.
	ErrTryAgain = errors.New("could not apply action due to concurrent updates")

	// ErrNoFreeCode means code generation kept colliding, which only
	// happens when the code space is nearly saturated.
	ErrNoFreeCode = errors.New("could not allocate a unique room code")
)

// Coordinator applies events to rooms with optimistic concurrency.
type Coordinator struct {
	Store   *store.Store
	RoomTTL time.Duration
}

// Apply runs one event against a room. Semantic rejections from the
// state machine come back verbatim and are never retried; version
// conflicts are retried unless the contested outcome (a guess losing the
// word race) has already happened.
func (c *Coordinator) Apply(ctx context.Context, code string, ev game.Event) (*game.Room, game.Effect, error) {
	for attempt := 0; attempt <= maxSaveRetries; attempt++ {
		room, version, err := c.Store.LoadRoom(ctx, code)
		if err != nil {
			return nil, game.Effect{}, err
		}

		eff, err := game.Apply(room, ev, time.Now())
		if err != nil {
			return nil, game.Effect{}, err
		}
		if eff.Skip {
			return room, eff, nil
		}
		if eff.Delete {
			if err := c.Store.DeleteRoom(ctx, code); err != nil {
				return nil, game.Effect{}, err
			}
			c.runSideEffects(ctx, room, ev, eff)
			return room, eff, nil
		}

		err = c.Store.CompareAndSaveRoom(ctx, code, version, room, c.RoomTTL)
		if err == nil {
			c.runSideEffects(ctx, room, ev, eff)
			c.publish(ctx, room)
			return room, eff, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, game.Effect{}, err
		}

		// Lost the write. If this was a guess and the word has moved past
		// the index it was made against, the race is semantically decided:
		// report it, never retry, or we would credit a different word.
		if guess, ok := ev.(game.SubmitGuess); ok {
			if current, _, lerr := c.Store.LoadRoom(ctx, code); lerr == nil &&
				current.CurrentWordIndex > guess.ExpectedWordIndex {
				return nil, game.Effect{}, &game.WordAdvancedError{CurrentWordIndex: current.CurrentWordIndex}
			}
		}
		sleepBackoff(attempt)
	}
	return nil, game.Effect{}, ErrTryAgain
}

// Create allocates a fresh room for its first player, generating codes
// until one is unclaimed. Random rooms go straight into the matchmaking
// queue.
func (c *Coordinator) Create(ctx context.Context, playerID, nickname string, roomType game.RoomType) (*game.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := game.NewRoom(randomCode(), playerID, nickname, roomType, time.Now())
		err := c.Store.CreateRoom(ctx, room, c.RoomTTL)
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if roomType == game.RoomRandom {
			if err := c.Store.EnqueueWaiting(ctx, room.Code); err != nil {
				return nil, err
			}
		}
		c.publish(ctx, room)
		return room, nil
	}
	return nil, ErrNoFreeCode
}

// JoinRandom matches a player against the oldest waiting random room,
// skipping entries whose room has expired or filled up in the meantime.
// An empty queue means this player opens a new room and waits.
func (c *Coordinator) JoinRandom(ctx context.Context, playerID, nickname string) (*game.Room, error) {
	for attempt := 0; attempt < maxMatchAttempts; attempt++ {
		code, ok, err := c.Store.PopWaiting(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return c.Create(ctx, playerID, nickname, game.RoomRandom)
		}
		room, _, err := c.Apply(ctx, code, game.Join{PlayerID: playerID, Nickname: nickname})
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, game.ErrRoomFull) {
			// Stale queue entry; the pop already removed it.
			continue
		}
		if err != nil {
			// The pop consumed the entry; a room that failed to gain its
			// second player must stay matchable.
			_ = c.Store.EnqueueWaiting(ctx, code)
			return nil, err
		}
		if len(room.Players) < game.MaxPlayers {
			// Self-rejoin: the player popped their own waiting room. Put it
			// back so the next caller can still match against it.
			_ = c.Store.EnqueueWaiting(ctx, code)
		}
		return room, nil
	}
	return c.Create(ctx, playerID, nickname, game.RoomRandom)
}

// runSideEffects performs the repository-level work a transition asked
// for: matchmaking requeue and player-mapping upkeep. Failures here are
// logged at the store level and do not undo the committed transition.
func (c *Coordinator) runSideEffects(ctx context.Context, room *game.Room, ev game.Event, eff game.Effect) {
	if eff.Requeue {
		_ = c.Store.EnqueueWaiting(ctx, room.Code)
	}
	switch e := ev.(type) {
	case game.Join:
		_ = c.Store.SetPlayerRoom(ctx, e.PlayerID, room.Code, c.RoomTTL)
	case game.Touch:
		_ = c.Store.SetPlayerRoom(ctx, e.PlayerID, room.Code, c.RoomTTL)
	case game.Leave:
		_ = c.Store.ClearPlayerRoom(ctx, e.PlayerID)
	}
}

// publish pushes the post-transition snapshot to the room's channel.
// Delivery is best effort; the subscribers' poll interval is the
// correctness backstop.
func (c *Coordinator) publish(ctx context.Context, room *game.Room) {
	snapshot, err := json.Marshal(game.Snapshot(room, time.Now()))
	if err != nil {
		return
	}
	_ = c.Store.PublishRoomUpdate(ctx, room.Code, snapshot)
}

// randomCode produces a 5-digit room code.
func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return fmt.Sprintf("%05d", mrand.Intn(90000)+10000)
	}
	return fmt.Sprintf("%d", n.Int64()+10000)
}

// sleepBackoff spaces retries apart with jitter so two losers of the
// same conflict do not collide again in lockstep.
func sleepBackoff(attempt int) {
	base := retryBackoffStep * time.Duration(attempt+1)
	time.Sleep(base + time.Duration(mrand.Int63n(int64(retryBackoffStep))))
}

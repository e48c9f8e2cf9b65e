// Package store adapts Redis into the coordination substrate the game
// needs: an expiring room repository with compare-and-save semantics, a
// recency-ordered liveness index, a FIFO matchmaking queue, presence
// counters, and a per-room pub/sub channel. Redis is the only shared
// mutable state in the system; no caller holds room truth in memory.
package store

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Key layout. Every live room is one JSON value under roomKeyPrefix with
// a TTL; everything else is bookkeeping around those keys.
const (
	roomKeyPrefix     = "room:"
	playerKeyPrefix   = "player:"
	sessionKeyPrefix  = "session:"
	activeRoomsKey    = "active_rooms"
	activeSessionsKey = "active_sessions"
	waitingRoomsKey   = "waiting_rooms"
	roomChannelPrefix = "room-updates:"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("concurrent modification")
)

// Store wraps a Redis client with the game's key conventions.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing client (used by tests).
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Open connects to the Redis instance described by a redis:// URL.
func Open(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// Client exposes the underlying connection for health checks.
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func roomKey(code string) string {
	return roomKeyPrefix + code
}

func playerKey(playerID string) string {
	return playerKeyPrefix + playerID
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records answer two questions without replaying room history:
// "which room does this player belong to" and "how many people are on
// the site right now". Both are TTL-expired; nothing here is
// authoritative for game state.

// SetPlayerRoom records (and keeps alive) the player→room mapping.
func (s *Store) SetPlayerRoom(ctx context.Context, playerID, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, playerKey(playerID), code, ttl).Err()
}

// PlayerRoom returns the room a player is mapped to, or ErrNotFound if
// the mapping has expired.
func (s *Store) PlayerRoom(ctx context.Context, playerID string) (string, error) {
	code, err := s.rdb.Get(ctx, playerKey(playerID)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return code, err
}

// ClearPlayerRoom drops the player→room mapping.
func (s *Store) ClearPlayerRoom(ctx context.Context, playerID string) error {
	return s.rdb.Del(ctx, playerKey(playerID)).Err()
}

// TouchSession registers a browsing session and refreshes its expiry.
func (s *Store) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, activeSessionsKey, sessionID)
		pipe.Set(ctx, sessionKey(sessionID), "active", ttl)
		return nil
	})
	return err
}

// RemoveSession drops a session immediately (explicit tab close).
func (s *Store) RemoveSession(ctx context.Context, sessionID string) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, activeSessionsKey, sessionID)
		pipe.Del(ctx, sessionKey(sessionID))
		return nil
	})
	return err
}

// SessionCount returns the number of live sessions. Membership in the
// set outlives the per-session keys, so each read validates members and
// sweeps the expired ones out — the same cooperative cleanup the
// liveness index uses. On a sweep failure it falls back to the raw set
// size rather than failing the read.
func (s *Store) SessionCount(ctx context.Context) (int64, error) {
	ids, err := s.rdb.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Exists(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return s.rdb.SCard(ctx, activeSessionsKey).Result()
	}

	var valid int64
	var expired []interface{}
	for i, id := range ids {
		if cmds[i].Val() == 1 {
			valid++
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		if err := s.rdb.SRem(ctx, activeSessionsKey, expired...).Err(); err != nil {
			return valid, err
		}
	}
	return valid, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"wordrace/internal/game"
)

// CreateRoom stores a brand-new room under its code. The code is claimed
// with SET NX so two racing creators can never both win the same code;
// the liveness index entry and the creator's player mapping ride along
// once the claim succeeds.
func (s *Store) CreateRoom(ctx context.Context, room *game.Room, ttl time.Duration) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(room.Code), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, activeRoomsKey, redis.Z{Score: float64(room.LastActivity), Member: room.Code})
		if len(room.Players) > 0 {
			pipe.Set(ctx, playerKey(room.Players[0]), room.Code, ttl)
		}
		return nil
	})
	return err
}

// LoadRoom fetches a room and the version token to pass to
// CompareAndSaveRoom. The token is the serialized record exactly as
// read; any interleaved mutation changes it.
func (s *Store) LoadRoom(ctx context.Context, code string) (*game.Room, string, error) {
	raw, err := s.rdb.Get(ctx, roomKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	var room game.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, "", err
	}
	return &room, raw, nil
}

// CompareAndSaveRoom persists a mutated room only if nobody else wrote
// the key since version was read. The check runs under WATCH so the
// verify-then-write pair is atomic; every successful save refreshes the
// record's TTL and its liveness index entry in one transaction.
func (s *Store) CompareAndSaveRoom(ctx context.Context, code, version string, room *game.Room, ttl time.Duration) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	key := roomKey(code)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current != version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			pipe.ZAdd(ctx, activeRoomsKey, redis.Z{Score: float64(room.LastActivity), Member: code})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// DeleteRoom removes a room and all bookkeeping that points at it.
func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(code))
		pipe.ZRem(ctx, activeRoomsKey, code)
		pipe.LRem(ctx, waitingRoomsKey, 0, code)
		return nil
	})
	return err
}

// RoomCount returns the raw size of the liveness index, orphans
// included. Use CleanActiveRooms for an accurate figure.
func (s *Store) RoomCount(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, activeRoomsKey).Result()
}

// CleanActiveRooms walks the liveness index and evicts entries whose
// room key has expired or whose last refresh is older than the liveness
// window. Any reader may run this; there is no dedicated sweeper. It
// returns the codes of the rooms that are still alive.
func (s *Store) CleanActiveRooms(ctx context.Context, window time.Duration) ([]string, error) {
	entries, err := s.rdb.ZRangeWithScores(ctx, activeRoomsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(entries))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, entry := range entries {
			cmds[i] = pipe.Exists(ctx, roomKey(entry.Member.(string)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cutoff := float64(time.Now().Add(-window).UnixMilli())
	var alive []string
	var stale []interface{}
	for i, entry := range entries {
		code := entry.Member.(string)
		if cmds[i].Val() == 1 && entry.Score >= cutoff {
			alive = append(alive, code)
		} else {
			stale = append(stale, code)
		}
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, activeRoomsKey, stale...).Err(); err != nil {
			return alive, err
		}
	}
	return alive, nil
}

package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// EnqueueWaiting puts a room code at the tail of the matchmaking queue.
// The code is removed first so a re-enqueued room cannot appear twice.
func (s *Store) EnqueueWaiting(ctx context.Context, code string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, waitingRoomsKey, 0, code)
		pipe.RPush(ctx, waitingRoomsKey, code)
		return nil
	})
	return err
}

// PopWaiting takes the oldest waiting room code off the queue. The
// second return is false when the queue is empty.
func (s *Store) PopWaiting(ctx context.Context) (string, bool, error) {
	code, err := s.rdb.LPop(ctx, waitingRoomsKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

// RemoveWaiting drops a code from the queue wherever it sits.
func (s *Store) RemoveWaiting(ctx context.Context, code string) error {
	return s.rdb.LRem(ctx, waitingRoomsKey, 0, code).Err()
}

// WaitingCount returns the current queue depth.
func (s *Store) WaitingCount(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, waitingRoomsKey).Result()
}

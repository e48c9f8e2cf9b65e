package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PublishRoomUpdate fans the full room snapshot out to everybody
// watching the room's channel. Snapshots are complete, never diffs, so
// a dropped message heals itself on the next delivery.
func (s *Store) PublishRoomUpdate(ctx context.Context, code string, snapshot []byte) error {
	return s.rdb.Publish(ctx, roomChannelPrefix+code, snapshot).Err()
}

// SubscribeRoomUpdates opens a subscription on a room's channel. The
// caller owns the returned subscription and must Close it when the
// viewer disconnects.
func (s *Store) SubscribeRoomUpdates(ctx context.Context, code string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, roomChannelPrefix+code)
}

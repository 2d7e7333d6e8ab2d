package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"codeshare/internal/models"
)

// Room mirror entries expire on their own; a destroyed room stays readable
// for this long as an audit trail.
const roomTTL = 24 * time.Hour

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func roomKey(roomID string) string { return "room:" + roomID }

func (s *RedisStore) Save(ctx context.Context, status models.RoomStatus) error {
	key := roomKey(status.RoomID)
	if err := s.rdb.HSet(ctx, key, map[string]interface{}{
		"roomId":    status.RoomID,
		"ownerId":   status.OwnerID,
		"members":   status.Members,
		"active":    strconv.FormatBool(status.Active),
		"createdAt": status.CreatedAt,
	}).Err(); err != nil {
		return fmt.Errorf("save room %s: %w", status.RoomID, err)
	}
	if err := s.rdb.Expire(ctx, key, roomTTL).Err(); err != nil {
		return fmt.Errorf("expire room %s: %w", status.RoomID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (models.RoomStatus, error) {
	fields, err := s.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return models.RoomStatus{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if len(fields) == 0 {
		return models.RoomStatus{}, ErrNotFound
	}

	members, _ := strconv.Atoi(fields["members"])
	active, _ := strconv.ParseBool(fields["active"])
	return models.RoomStatus{
		RoomID:    fields["roomId"],
		OwnerID:   fields["ownerId"],
		Members:   members,
		Active:    active,
		CreatedAt: fields["createdAt"],
	}, nil
}

// Package store mirrors room status into Redis so the HTTP surface can report
// on rooms (including recently destroyed ones) and other instances can
// observe them. The in-memory hub stays authoritative; the mirror is
// best-effort.
package store

import (
	"context"
	"errors"

	"codeshare/internal/models"
)

// ErrNotFound is returned when a room has no mirror entry.
var ErrNotFound = errors.New("room not found")

// RoomStore persists room status snapshots.
type RoomStore interface {
	Save(ctx context.Context, status models.RoomStatus) error
	Get(ctx context.Context, roomID string) (models.RoomStatus, error)
}

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Save(context.Context, models.RoomStatus) error { return nil }

func (Noop) Get(context.Context, string) (models.RoomStatus, error) {
	return models.RoomStatus{}, ErrNotFound
}

package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"codeshare/internal/models"
)

// Room ids are short human-shareable tokens; the alphabet omits characters
// that are easy to misread (0/o, 1/l/i).
const (
	roomIDAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	roomIDLength   = 6
	createAttempts = 5
)

// ErrRoomIDExhausted is returned when id generation keeps colliding, which
// only happens when the registry is effectively full.
var ErrRoomIDExhausted = errors.New("could not allocate a unique room id")

// Hub is the session registry: it owns the roomId->Room mapping and is the
// only place rooms are created and deleted. Room state itself is guarded by
// each room's own lock, so traffic in independent rooms never contends here
// beyond the map access.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*Room)}
}

// CreateRoom allocates a unique room id, creates the room with the owner as
// its sole member, and registers it. Generation collisions retry internally
// and are never surfaced.
func (h *Hub) CreateRoom(owner models.Identity, c *Client) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i < createAttempts; i++ {
		id, err := generateRoomID()
		if err != nil {
			return nil, fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := h.rooms[id]; taken {
			continue
		}
		room := NewRoom(id, owner)
		room.Join(owner, c)
		h.rooms[id] = room
		return room, nil
	}
	return nil, ErrRoomIDExhausted
}

func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// JoinRoom resolves id and adds the member while the registry lock is held,
// so a concurrent empty-room deletion cannot slip between lookup and join.
func (h *Hub) JoinRoom(id string, identity models.Identity, c *Client) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	if !ok {
		return nil, false
	}
	r.Join(identity, c)
	return r, true
}

// RejoinRoom re-binds an existing member's connection. Returns false when the
// room is gone or the uid was never a member.
func (h *Hub) RejoinRoom(id string, identity models.Identity, c *Client) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	if !ok {
		return nil, false
	}
	if !r.Rejoin(identity, c) {
		return nil, false
	}
	return r, true
}

// DeleteIfEmpty removes the room if its member set is empty. Called after
// every member removal; this is the sole garbage collection of rooms.
func (h *Hub) DeleteIfEmpty(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	if !ok || r.MemberCount() > 0 {
		return false
	}
	delete(h.rooms, id)
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Status reports a live room for the HTTP status endpoint.
func (h *Hub) Status(id string) (models.RoomStatus, bool) {
	h.mu.RLock()
	r, ok := h.rooms[id]
	h.mu.RUnlock()
	if !ok {
		return models.RoomStatus{}, false
	}
	return models.RoomStatus{
		RoomID:    r.ID,
		OwnerID:   r.OwnerID(),
		Members:   r.MemberCount(),
		Active:    true,
		CreatedAt: r.CreatedAt().Format(time.RFC3339),
	}, true
}

func generateRoomID() (string, error) {
	buf := make([]byte, roomIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(buf), nil
}

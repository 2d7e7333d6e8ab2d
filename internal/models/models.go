package models

import "encoding/json"

// Identity is the set of claims a client presents at connect time. It is
// trusted as supplied (or extracted from a signed token when the server is
// configured with a secret) and is immutable for the life of a connection.
type Identity struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Valid reports whether the required claims are present.
func (id Identity) Valid() bool {
	return id.UID != "" && id.Name != ""
}

// Position is a cursor location inside the shared buffer.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// WSFrame is the envelope for every message on the collaboration socket.
// Requests that carry a Seq receive an "ack" frame echoing it; events pushed
// by the server carry no Seq.
type WSFrame struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame types accepted from clients.
const (
	FrameAuth          = "auth"
	FrameCreateRoom    = "create-room"
	FrameJoinRoom      = "join-room"
	FrameRejoinRoom    = "rejoin-room"
	FrameLeaveRoom     = "leave-room"
	FrameCodeChange    = "code-change"
	FrameCursor        = "cursor-position"
	FrameTyping        = "user-typing"
	FrameStoppedTyping = "user-stopped-typing"
)

// Frame types pushed to clients.
const (
	FrameAck          = "ack"
	FrameError        = "error"
	FrameRoomData     = "room-data"
	FrameUserJoined   = "user-joined"
	FrameUserLeft     = "user-left"
	FrameCodeUpdate   = "code-update"
	FrameRemoteCursor = "remote-cursor-position"
	FrameRemoteTyping = "remote-user-typing"
)

// Wire error codes carried in ack/error payloads.
const (
	ErrRoomNotFound    = "room_not_found"
	ErrInvalidIdentity = "invalid_identity"
	ErrNotAuthed       = "not_authenticated"
	ErrBadPayload      = "bad_payload"
	ErrUnknownType     = "unknown_type"
)

type AuthRequest struct {
	Identity
	Token string `json:"token,omitempty"`
}

type AuthResponse struct {
	OK     bool   `json:"ok"`
	ConnID string `json:"connId"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomSnapshot is the full room state a (re)joining client initializes from.
type RoomSnapshot struct {
	RoomID  string     `json:"roomId"`
	Code    string     `json:"code"`
	OwnerID string     `json:"ownerId"`
	Users   []Identity `json:"users"`
}

type JoinResponse struct {
	Users   []Identity `json:"users"`
	Code    string     `json:"code"`
	OwnerID string     `json:"ownerId"`
	Error   string     `json:"error,omitempty"`
}

type RejoinResponse struct {
	Success bool       `json:"success"`
	Users   []Identity `json:"users,omitempty"`
	Code    string     `json:"code,omitempty"`
	OwnerID string     `json:"ownerId,omitempty"`
}

type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type CursorUpdate struct {
	RoomID   string   `json:"roomId"`
	Position Position `json:"position"`
}

type TypingUpdate struct {
	RoomID   string    `json:"roomId"`
	Position *Position `json:"position,omitempty"`
}

// RemoteCursor is broadcast to room peers for cursor and typing updates.
type RemoteCursor struct {
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	PhotoURL string   `json:"photoURL,omitempty"`
	Position Position `json:"position"`
	IsTyping bool     `json:"isTyping"`
}

type StoppedTyping struct {
	UserID string `json:"userId"`
}

// RoomStatus is served by the HTTP status endpoint, from the live hub or the
// Redis mirror for rooms that have already been destroyed.
type RoomStatus struct {
	RoomID    string `json:"roomId"`
	OwnerID   string `json:"ownerId"`
	Members   int    `json:"members"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type ServerStats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

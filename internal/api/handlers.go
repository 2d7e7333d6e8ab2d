package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"codeshare/internal/metrics"
	"codeshare/internal/models"
	"codeshare/internal/presence"
	"codeshare/internal/session"
	"codeshare/internal/store"
	"codeshare/internal/utils"
)

const mirrorTimeout = 2 * time.Second

// Handlers is the connection gateway: it accepts WebSocket clients, binds
// them to rooms, and fans room events out to peers. It also serves the small
// HTTP status surface.
type Handlers struct {
	log     *utils.Logger
	hub     *session.Hub
	tracker *presence.Tracker
	store   store.RoomStore
	metrics *metrics.Metrics
	conns   atomic.Int64
}

func NewHandlers(log *utils.Logger, roomStore store.RoomStore, m *metrics.Metrics, typingWindow, sweepInterval time.Duration) *Handlers {
	h := &Handlers{
		log:     log,
		hub:     session.NewHub(),
		store:   roomStore,
		metrics: m,
	}
	h.tracker = presence.NewTracker(typingWindow, sweepInterval, h.typingExpired)
	return h
}

// RunPresence drives the typing-inactivity sweeper until ctx is done.
func (h *Handlers) RunPresence(ctx context.Context) {
	h.tracker.Run(ctx)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) RoomStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if st, ok := h.hub.Status(id); ok {
		writeJSON(w, st)
		return
	}
	st, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, models.ServerStats{
		Rooms:       h.hub.Len(),
		Connections: int(h.conns.Load()),
	})
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// CollabWS upgrades the connection and runs its event loop. The first frame
// must be "auth" carrying identity claims; a connection that fails identity
// checks is refused with no room side effects.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	identity, seq, err := h.acceptAuth(conn, r.Header.Get("Authorization"))
	if err != nil {
		_ = conn.WriteJSON(models.ErrorFrame(models.ErrInvalidIdentity))
		return
	}

	client := session.NewClient(conn, identity)
	go client.WritePump()
	defer client.Close()

	h.conns.Add(1)
	h.metrics.ActiveConnections.Inc()
	defer func() {
		h.detach(client)
		h.conns.Add(-1)
		h.metrics.ActiveConnections.Dec()
		h.log.Info("client disconnected", "uid", identity.UID, "conn", client.ID)
	}()

	client.Send(models.AckFrame(seq, models.AuthResponse{OK: true, ConnID: client.ID}))
	h.log.Info("client connected", "uid", identity.UID, "conn", client.ID)

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		h.dispatch(client, frame)
	}
}

// acceptAuth reads and validates the initial auth frame. Claims may arrive
// raw or, when a JWT secret is configured, inside a signed token carried in
// the frame or in the upgrade request's Authorization header.
func (h *Handlers) acceptAuth(conn *websocket.Conn, authHeader string) (models.Identity, uint64, error) {
	var frame models.WSFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return models.Identity{}, 0, err
	}
	if frame.Type != models.FrameAuth {
		return models.Identity{}, frame.Seq, errors.New("expected auth frame")
	}
	var req models.AuthRequest
	if err := models.Decode(frame.Data, &req); err != nil {
		return models.Identity{}, frame.Seq, err
	}
	if req.Token == "" && authHeader != "" {
		token, err := utils.ExtractTokenFromHeader(authHeader)
		if err != nil {
			return models.Identity{}, frame.Seq, err
		}
		req.Token = token
	}

	identity := req.Identity
	if req.Token != "" {
		claims, err := utils.ValidateIdentityToken(req.Token)
		if err != nil {
			return models.Identity{}, frame.Seq, err
		}
		identity = models.Identity{
			UID:      claims.UID,
			Name:     claims.Name,
			PhotoURL: claims.PhotoURL,
			Email:    claims.Email,
		}
	}
	if !identity.Valid() {
		return models.Identity{}, frame.Seq, errors.New("missing required identity claims")
	}
	return identity, frame.Seq, nil
}

func (h *Handlers) dispatch(c *session.Client, frame models.WSFrame) {
	h.metrics.EventsTotal.WithLabelValues(frame.Type).Inc()

	switch frame.Type {
	case models.FrameAuth:
		// Re-auth on a live connection is a no-op; identity is immutable.
		c.Send(models.AckFrame(frame.Seq, models.AuthResponse{OK: true, ConnID: c.ID}))
	case models.FrameCreateRoom:
		h.createRoom(c, frame)
	case models.FrameJoinRoom:
		h.joinRoom(c, frame)
	case models.FrameRejoinRoom:
		h.rejoinRoom(c, frame)
	case models.FrameLeaveRoom:
		h.leaveRoom(c, frame)
	case models.FrameCodeChange:
		h.codeChange(c, frame)
	case models.FrameCursor:
		h.cursorPosition(c, frame)
	case models.FrameTyping:
		h.userTyping(c, frame)
	case models.FrameStoppedTyping:
		h.userStoppedTyping(c, frame)
	default:
		c.Send(models.ErrorFrame(models.ErrUnknownType))
	}
}

func (h *Handlers) createRoom(c *session.Client, frame models.WSFrame) {
	h.detach(c)

	room, err := h.hub.CreateRoom(c.Identity, c)
	if err != nil {
		h.log.Error("create room failed", "uid", c.Identity.UID, "error", err.Error())
		c.Send(models.AckFrame(frame.Seq, models.JoinResponse{Error: err.Error()}))
		return
	}
	c.BindRoom(room.ID)

	h.metrics.RoomsCreated.Inc()
	h.metrics.ActiveRooms.Set(float64(h.hub.Len()))
	h.saveStatus(room)

	c.Send(models.AckFrame(frame.Seq, models.CreateRoomResponse{RoomID: room.ID}))
	h.log.Info("room created", "room", room.ID, "owner", c.Identity.UID)
}

func (h *Handlers) joinRoom(c *session.Client, frame models.WSFrame) {
	var req models.RoomRequest
	if err := models.Decode(frame.Data, &req); err != nil || req.RoomID == "" {
		c.Send(models.ErrorFrame(models.ErrBadPayload))
		return
	}

	if bound := c.RoomID(); bound != "" && bound != req.RoomID {
		// One room per connection: joining a new room leaves the old one.
		h.detach(c)
	}

	room, ok := h.hub.JoinRoom(req.RoomID, c.Identity, c)
	if !ok {
		c.Send(models.AckFrame(frame.Seq, models.JoinResponse{Error: models.ErrRoomNotFound}))
		return
	}
	c.BindRoom(room.ID)

	snap := room.Snapshot()
	h.countDelivery(room.Broadcast(c.Identity.UID, models.NewFrame(models.FrameUserJoined, c.Identity)))
	c.Send(models.AckFrame(frame.Seq, models.JoinResponse{
		Users:   snap.Users,
		Code:    snap.Code,
		OwnerID: snap.OwnerID,
	}))
	c.Send(models.NewFrame(models.FrameRoomData, snap))
	h.saveStatus(room)
	h.log.Info("user joined", "room", room.ID, "uid", c.Identity.UID)
}

func (h *Handlers) rejoinRoom(c *session.Client, frame models.WSFrame) {
	var req models.RoomRequest
	if err := models.Decode(frame.Data, &req); err != nil || req.RoomID == "" {
		c.Send(models.AckFrame(frame.Seq, models.RejoinResponse{Success: false}))
		return
	}

	room, ok := h.hub.RejoinRoom(req.RoomID, c.Identity, c)
	if !ok {
		c.Send(models.AckFrame(frame.Seq, models.RejoinResponse{Success: false}))
		return
	}
	c.BindRoom(room.ID)

	snap := room.Snapshot()
	c.Send(models.AckFrame(frame.Seq, models.RejoinResponse{
		Success: true,
		Users:   snap.Users,
		Code:    snap.Code,
		OwnerID: snap.OwnerID,
	}))
	c.Send(models.NewFrame(models.FrameRoomData, snap))
	h.log.Info("user rejoined", "room", room.ID, "uid", c.Identity.UID)
}

func (h *Handlers) leaveRoom(c *session.Client, frame models.WSFrame) {
	var req models.RoomRequest
	if err := models.Decode(frame.Data, &req); err != nil {
		return
	}
	// Leaving a room the connection is not bound to is a no-op.
	if req.RoomID == "" || c.RoomID() != req.RoomID {
		return
	}
	h.detach(c)
}

func (h *Handlers) codeChange(c *session.Client, frame models.WSFrame) {
	var req models.CodeChange
	if err := models.Decode(frame.Data, &req); err != nil {
		c.Send(models.ErrorFrame(models.ErrBadPayload))
		return
	}
	room, ok := h.boundRoom(c, req.RoomID)
	if !ok {
		c.Send(models.ErrorFrame(models.ErrRoomNotFound))
		return
	}
	// Last-writer-wins; an identical rewrite mutates nothing and is not
	// re-broadcast.
	if !room.SetCode(req.Code) {
		return
	}
	h.countDelivery(room.Broadcast(c.Identity.UID, models.NewFrame(models.FrameCodeUpdate, req.Code)))
}

func (h *Handlers) cursorPosition(c *session.Client, frame models.WSFrame) {
	var req models.CursorUpdate
	if err := models.Decode(frame.Data, &req); err != nil {
		c.Send(models.ErrorFrame(models.ErrBadPayload))
		return
	}
	room, ok := h.boundRoom(c, req.RoomID)
	if !ok {
		c.Send(models.ErrorFrame(models.ErrRoomNotFound))
		return
	}
	isTyping := h.tracker.SetCursor(room.ID, c.Identity.UID, req.Position)
	h.countDelivery(room.Broadcast(c.Identity.UID, models.NewFrame(models.FrameRemoteCursor, models.RemoteCursor{
		UserID:   c.Identity.UID,
		Name:     c.Identity.Name,
		PhotoURL: c.Identity.PhotoURL,
		Position: req.Position,
		IsTyping: isTyping,
	})))
}

func (h *Handlers) userTyping(c *session.Client, frame models.WSFrame) {
	var req models.TypingUpdate
	if err := models.Decode(frame.Data, &req); err != nil {
		c.Send(models.ErrorFrame(models.ErrBadPayload))
		return
	}
	room, ok := h.boundRoom(c, req.RoomID)
	if !ok {
		c.Send(models.ErrorFrame(models.ErrRoomNotFound))
		return
	}
	h.tracker.SetTyping(room.ID, c.Identity.UID, req.Position)
	entry, _ := h.tracker.Get(room.ID, c.Identity.UID)
	h.countDelivery(room.Broadcast(c.Identity.UID, models.NewFrame(models.FrameRemoteTyping, models.RemoteCursor{
		UserID:   c.Identity.UID,
		Name:     c.Identity.Name,
		PhotoURL: c.Identity.PhotoURL,
		Position: entry.Position,
		IsTyping: true,
	})))
}

func (h *Handlers) userStoppedTyping(c *session.Client, frame models.WSFrame) {
	var req models.RoomRequest
	if err := models.Decode(frame.Data, &req); err != nil {
		c.Send(models.ErrorFrame(models.ErrBadPayload))
		return
	}
	room, ok := h.boundRoom(c, req.RoomID)
	if !ok {
		c.Send(models.ErrorFrame(models.ErrRoomNotFound))
		return
	}
	// ClearTyping reports a true edge, so the stop broadcast fires once per
	// burst even if the client repeats the message.
	if !h.tracker.ClearTyping(room.ID, c.Identity.UID) {
		return
	}
	h.countDelivery(room.Broadcast(c.Identity.UID, models.NewFrame(models.FrameStoppedTyping, models.StoppedTyping{UserID: c.Identity.UID})))
}

// typingExpired is the sweeper callback: a typing flag went stale and was
// force-cleared, so peers get the stop event the client never sent.
func (h *Handlers) typingExpired(roomID, uid string) {
	h.metrics.TypingTimeouts.Inc()
	room, ok := h.hub.Get(roomID)
	if !ok {
		return
	}
	h.countDelivery(room.Broadcast(uid, models.NewFrame(models.FrameStoppedTyping, models.StoppedTyping{UserID: uid})))
	h.log.Info("typing state expired", "room", roomID, "uid", uid)
}

// detach removes the connection from its bound room, if any: presence entry
// dropped, peers notified, empty room destroyed. Safe to call redundantly.
func (h *Handlers) detach(c *session.Client) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	c.BindRoom("")
	uid := c.Identity.UID

	room, ok := h.hub.Get(roomID)
	if !ok {
		h.tracker.Remove(roomID, uid)
		return
	}

	removed, remaining := room.Leave(uid, c)
	if !removed {
		// A newer connection for this uid owns the membership now.
		return
	}

	if wasTyping := h.tracker.Remove(roomID, uid); wasTyping {
		h.countDelivery(room.Broadcast(uid, models.NewFrame(models.FrameStoppedTyping, models.StoppedTyping{UserID: uid})))
	}
	h.countDelivery(room.Broadcast(uid, models.NewFrame(models.FrameUserLeft, uid)))

	if remaining == 0 && h.hub.DeleteIfEmpty(roomID) {
		h.tracker.RemoveRoom(roomID)
		h.metrics.ActiveRooms.Set(float64(h.hub.Len()))
		h.saveClosed(room)
		h.log.Info("room destroyed", "room", roomID)
		return
	}
	h.saveStatus(room)
}

// boundRoom resolves roomID and checks the connection is actually bound to
// it; room-scoped events from unbound connections are rejected.
func (h *Handlers) boundRoom(c *session.Client, roomID string) (*session.Room, bool) {
	if roomID == "" || c.RoomID() != roomID {
		return nil, false
	}
	return h.hub.Get(roomID)
}

func (h *Handlers) countDelivery(delivered, dropped int) {
	if delivered > 0 {
		h.metrics.FramesDelivered.Add(float64(delivered))
	}
	if dropped > 0 {
		h.metrics.FramesDropped.Add(float64(dropped))
	}
}

func (h *Handlers) saveStatus(room *session.Room) {
	h.save(models.RoomStatus{
		RoomID:    room.ID,
		OwnerID:   room.OwnerID(),
		Members:   room.MemberCount(),
		Active:    true,
		CreatedAt: room.CreatedAt().Format(time.RFC3339),
	})
}

func (h *Handlers) saveClosed(room *session.Room) {
	h.save(models.RoomStatus{
		RoomID:    room.ID,
		OwnerID:   room.OwnerID(),
		Members:   0,
		Active:    false,
		CreatedAt: room.CreatedAt().Format(time.RFC3339),
	})
}

func (h *Handlers) save(st models.RoomStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := h.store.Save(ctx, st); err != nil {
		h.log.Warn("room mirror update failed", "room", st.RoomID, "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

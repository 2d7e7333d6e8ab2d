// Package presence tracks the ephemeral per-user, per-room state that is not
// part of the authoritative buffer: cursor position and typing flag.
package presence

import (
	"context"
	"sync"
	"time"

	"codeshare/internal/models"
)

// Entry is the presence state for one uid within one room. It is overwritten
// on every cursor/typing update and removed when the user leaves the room.
type Entry struct {
	UID        string
	Position   models.Position
	IsTyping   bool
	LastUpdate time.Time
}

// Tracker owns presence entries keyed by (roomID, uid). A background sweeper
// force-clears typing flags whose LastUpdate is older than the configured
// window, so a client that disconnects mid-burst cannot leave a peer showing
// "typing" forever.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Entry

	window   time.Duration
	interval time.Duration
	onExpire func(roomID, uid string)

	now func() time.Time
}

// NewTracker builds a tracker. onExpire fires exactly once per forced clear
// and is invoked outside the tracker lock.
func NewTracker(window, interval time.Duration, onExpire func(roomID, uid string)) *Tracker {
	return &Tracker{
		rooms:    make(map[string]map[string]*Entry),
		window:   window,
		interval: interval,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// SetCursor upserts the cursor position for uid and refreshes LastUpdate.
// It returns the current typing flag so the broadcast can carry it.
func (t *Tracker) SetCursor(roomID, uid string, pos models.Position) (isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(roomID, uid)
	e.Position = pos
	e.LastUpdate = t.now()
	return e.IsTyping
}

// SetTyping marks uid as typing, refreshing the inactivity clock. It reports
// whether this was the start of a burst (flag transitioned false -> true).
func (t *Tracker) SetTyping(roomID, uid string, pos *models.Position) (started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(roomID, uid)
	started = !e.IsTyping
	e.IsTyping = true
	if pos != nil {
		e.Position = *pos
	}
	e.LastUpdate = t.now()
	return started
}

// ClearTyping clears the typing flag. It reports whether a set flag was
// actually cleared, so the stop broadcast fires at most once per burst.
func (t *Tracker) ClearTyping(roomID, uid string) (stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	e, ok := room[uid]
	if !ok || !e.IsTyping {
		return false
	}
	e.IsTyping = false
	e.LastUpdate = t.now()
	return true
}

// Remove drops the entry for uid, reporting whether it was mid-typing so the
// caller can broadcast a final stop.
func (t *Tracker) Remove(roomID, uid string) (wasTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	e, ok := room[uid]
	if !ok {
		return false
	}
	delete(room, uid)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return e.IsTyping
}

// RemoveRoom drops all entries for a destroyed room.
func (t *Tracker) RemoveRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Get returns a copy of the entry for uid, if present.
func (t *Tracker) Get(roomID, uid string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return Entry{}, false
	}
	e, ok := room[uid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Run sweeps for stale typing flags until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

type expiredEntry struct {
	roomID string
	uid    string
}

// Sweep force-clears typing flags older than the window and fires onExpire
// for each. Exposed for tests; Run calls it on every tick.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.window)

	t.mu.Lock()
	var expired []expiredEntry
	for roomID, room := range t.rooms {
		for uid, e := range room {
			if e.IsTyping && e.LastUpdate.Before(cutoff) {
				e.IsTyping = false
				e.LastUpdate = t.now()
				expired = append(expired, expiredEntry{roomID: roomID, uid: uid})
			}
		}
	}
	t.mu.Unlock()

	if t.onExpire != nil {
		for _, ex := range expired {
			t.onExpire(ex.roomID, ex.uid)
		}
	}
	return len(expired)
}

// entry returns the live entry for (roomID, uid), creating it if needed.
// Callers hold t.mu.
func (t *Tracker) entry(roomID, uid string) *Entry {
	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[string]*Entry)
		t.rooms[roomID] = room
	}
	e, ok := room[uid]
	if !ok {
		e = &Entry{UID: uid}
		room[uid] = e
	}
	return e
}

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeshare/internal/models"
)

type expireLog struct {
	mu   sync.Mutex
	seen []string
}

func (l *expireLog) record(roomID, uid string) {
	l.mu.Lock()
	l.seen = append(l.seen, roomID+"/"+uid)
	l.mu.Unlock()
}

func (l *expireLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.seen))
	copy(out, l.seen)
	return out
}

func TestSetCursorUpsertsPosition(t *testing.T) {
	tr := NewTracker(time.Second, time.Second, nil)

	if typing := tr.SetCursor("r", "a", models.Position{Line: 1, Column: 2}); typing {
		t.Fatalf("fresh entry must not be typing")
	}
	tr.SetCursor("r", "a", models.Position{Line: 5, Column: 7})

	e, ok := tr.Get("r", "a")
	if !ok || e.Position.Line != 5 || e.Position.Column != 7 {
		t.Fatalf("unexpected entry: %#v ok=%v", e, ok)
	}
	if e.LastUpdate.IsZero() {
		t.Fatalf("expected LastUpdate to be set")
	}
}

func TestSetTypingIsEdgeTriggered(t *testing.T) {
	tr := NewTracker(time.Second, time.Second, nil)

	pos := &models.Position{Line: 3, Column: 4}
	if started := tr.SetTyping("r", "a", pos); !started {
		t.Fatalf("expected first typing event to start a burst")
	}
	if started := tr.SetTyping("r", "a", nil); started {
		t.Fatalf("expected repeated typing event to report no edge")
	}

	e, _ := tr.Get("r", "a")
	if !e.IsTyping || e.Position.Line != 3 {
		t.Fatalf("unexpected entry: %#v", e)
	}
}

func TestClearTypingFiresOncePerBurst(t *testing.T) {
	tr := NewTracker(time.Second, time.Second, nil)

	tr.SetTyping("r", "a", nil)
	if !tr.ClearTyping("r", "a") {
		t.Fatalf("expected clear of a set flag to report the edge")
	}
	if tr.ClearTyping("r", "a") {
		t.Fatalf("expected repeated clear to be suppressed")
	}
	if tr.ClearTyping("r", "ghost") || tr.ClearTyping("ghost", "a") {
		t.Fatalf("expected clear of unknown entries to be a no-op")
	}
}

func TestSweepForceClearsStaleTypingExactlyOnce(t *testing.T) {
	log := &expireLog{}
	tr := NewTracker(100*time.Millisecond, time.Hour, log.record)

	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.SetTyping("r", "a", nil)
	tr.SetTyping("r", "b", nil)
	tr.SetCursor("r", "c", models.Position{}) // not typing, never expires

	// b refreshes inside the window; only a goes stale.
	tr.now = func() time.Time { return base.Add(80 * time.Millisecond) }
	tr.SetTyping("r", "b", nil)

	tr.now = func() time.Time { return base.Add(150 * time.Millisecond) }
	if n := tr.Sweep(); n != 1 {
		t.Fatalf("expected exactly one expiry, got %d", n)
	}
	if got := log.list(); len(got) != 1 || got[0] != "r/a" {
		t.Fatalf("unexpected expiries: %#v", got)
	}
	if e, _ := tr.Get("r", "a"); e.IsTyping {
		t.Fatalf("expected typing force-cleared")
	}
	if e, _ := tr.Get("r", "b"); !e.IsTyping {
		t.Fatalf("expected refreshed entry to stay typing")
	}

	// A second sweep finds nothing: the transition happens exactly once.
	if n := tr.Sweep(); n != 0 {
		t.Fatalf("expected no further expiries, got %d", n)
	}
}

func TestRemoveReportsTypingState(t *testing.T) {
	tr := NewTracker(time.Second, time.Second, nil)

	tr.SetTyping("r", "a", nil)
	if !tr.Remove("r", "a") {
		t.Fatalf("expected removal of a typing entry to report it")
	}
	if _, ok := tr.Get("r", "a"); ok {
		t.Fatalf("expected entry gone")
	}
	if tr.Remove("r", "a") {
		t.Fatalf("expected repeated removal to be a no-op")
	}

	tr.SetCursor("r", "b", models.Position{})
	if tr.Remove("r", "b") {
		t.Fatalf("expected removal of a non-typing entry to report false")
	}
}

func TestRemoveRoomDropsAllEntries(t *testing.T) {
	tr := NewTracker(time.Second, time.Second, nil)
	tr.SetCursor("r", "a", models.Position{})
	tr.SetCursor("r", "b", models.Position{})

	tr.RemoveRoom("r")
	if _, ok := tr.Get("r", "a"); ok {
		t.Fatalf("expected all room entries gone")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tr := NewTracker(time.Second, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to stop after cancel")
	}
}

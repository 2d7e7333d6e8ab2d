package session

import (
	"sort"
	"sync"
	"time"

	"codeshare/internal/models"
)

// DefaultCode seeds the shared buffer of a freshly created room.
const DefaultCode = "// Start coding here..."

type member struct {
	identity models.Identity
	client   *Client
}

// Room holds the authoritative state of one collaboration session: the shared
// code buffer, the owner, and the connected members keyed by uid.
type Room struct {
	ID string

	mu        sync.Mutex
	ownerID   string
	code      string
	members   map[string]*member
	createdAt time.Time
}

func NewRoom(id string, owner models.Identity) *Room {
	return &Room{
		ID:        id,
		ownerID:   owner.UID,
		code:      DefaultCode,
		members:   make(map[string]*member),
		createdAt: time.Now(),
	}
}

// Join adds or refreshes a member. Joining with a uid that is already present
// replaces that member's connection instead of duplicating the entry, so a
// rejoin after reconnect keeps the member set stable.
func (r *Room) Join(identity models.Identity, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[identity.UID] = &member{identity: identity, client: c}
}

// Rejoin refreshes the connection backing an existing membership. Unlike
// Join it never creates membership: a reconnect can only re-bind a uid that
// was already a member.
func (r *Room) Rejoin(identity models.Identity, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[identity.UID]; !ok {
		return false
	}
	r.members[identity.UID] = &member{identity: identity, client: c}
	return true
}

// Leave removes uid from the room. When from is non-nil, the removal only
// happens if that exact connection still backs the membership — the deferred
// cleanup of a replaced connection must not evict the member that rejoined.
// Removing an absent uid is a no-op. Returns whether a member was removed and
// how many remain.
func (r *Room) Leave(uid string, from *Client) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[uid]
	if !ok {
		return false, len(r.members)
	}
	if from != nil && m.client != from {
		return false, len(r.members)
	}
	delete(r.members, uid)
	return true, len(r.members)
}

// SetCode replaces the buffer verbatim (last-writer-wins). It reports whether
// the buffer actually changed, so an identical rewrite can skip the broadcast.
func (r *Room) SetCode(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == code {
		return false
	}
	r.code = code
	return true
}

func (r *Room) Code() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

func (r *Room) OwnerID() string { return r.ownerID }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) HasMember(uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[uid]
	return ok
}

// Snapshot returns the full state a (re)joining client initializes from.
// Users are ordered by uid so snapshots are deterministic.
func (r *Room) Snapshot() models.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]models.Identity, 0, len(r.members))
	for _, m := range r.members {
		users = append(users, m.identity)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
	return models.RoomSnapshot{
		RoomID:  r.ID,
		Code:    r.code,
		OwnerID: r.ownerID,
		Users:   users,
	}
}

// Broadcast delivers frame to every member except excludeUID. Delivery is
// best-effort per recipient: a full outbox drops the frame for that member
// only. Returns how many frames were delivered and dropped.
func (r *Room) Broadcast(excludeUID string, frame models.WSFrame) (delivered, dropped int) {
	r.mu.Lock()
	targets := make([]*Client, 0, len(r.members))
	for uid, m := range r.members {
		if uid == excludeUID {
			continue
		}
		targets = append(targets, m.client)
	}
	r.mu.Unlock()

	for _, c := range targets {
		if c == nil {
			continue
		}
		if c.Send(frame) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

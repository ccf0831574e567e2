package core

import (
	"sync"

	"github.com/parlorchat/parlor-server/internal/config"
)

// Room groups sessions that receive each other's broadcasts. Membership is
// kept in join order, mutated only under the room mutex, and broadcasts
// never block on a slow member.
type Room struct {
	ID    string
	Prefs config.RoomPrefs

	ownerGUID string
	reg       *Registry

	mu        sync.Mutex
	members   []*Session
	destroyed bool
}

func newRoom(id string, prefs config.RoomPrefs, ownerGUID string, reg *Registry) *Room {
	return &Room{
		ID:        id,
		Prefs:     prefs,
		ownerGUID: ownerGUID,
		reg:       reg,
	}
}

// Join adds s to the room and announces its public state to every member,
// including s itself. Returns false if the room filled up since login
// resolution; the caller surfaces that as a full-room rejection, so a join
// on a full room is never observed.
func (r *Room) Join(s *Session) bool {
	r.mu.Lock()
	if r.destroyed || len(r.members) >= r.Prefs.RoomMax {
		r.mu.Unlock()
		return false
	}
	r.members = append(r.members, s)
	r.mu.Unlock()

	r.UpdateUser(s)
	return true
}

// Leave announces the departure, removes s, and destroys the room if s was
// the last member. Leaving a room s is not in is a no-op; disconnect paths
// can fire more than once.
func (r *Room) Leave(s *Session) {
	r.Broadcast(EventLeave, LeavePayload{GUID: s.GUID})

	r.mu.Lock()
	idx := -1
	for i, m := range r.members {
		if m == s {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return
	}
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		r.reg.DestroyIfEmpty(r)
	}
}

// Broadcast delivers an event to every current member, fire-and-forget.
func (r *Room) Broadcast(name string, data any) {
	ev := Event{Name: name, Data: data}
	for _, m := range r.snapshotMembers() {
		m.send(ev)
	}
}

// UpdateUser broadcasts s's current public state to the room.
func (r *Room) UpdateUser(s *Session) {
	r.Broadcast(EventUpdate, UpdatePayload{GUID: s.GUID, UserPublic: s.Public()})
}

// IsFull reports whether membership has reached capacity.
func (r *Room) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) >= r.Prefs.RoomMax
}

// Snapshot maps each member's guid to its current public state.
func (r *Room) Snapshot() map[string]Public {
	members := r.snapshotMembers()
	users := make(map[string]Public, len(members))
	for _, m := range members {
		users[m.GUID] = m.Public()
	}
	return users
}

// Members returns the current membership in join order.
func (r *Room) Members() []*Session {
	return r.snapshotMembers()
}

func (r *Room) snapshotMembers() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]*Session, len(r.members))
	copy(members, r.members)
	return members
}

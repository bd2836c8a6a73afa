package websocket

import "sync"

// Participant is the ephemeral presence entry for one connected user in one
// project room. The emitter is the live connection handle and is never
// serialized.
type Participant struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`

	conn Emitter
}

// Presence tracks which participants are currently connected to which
// project room. It is purely in-memory: a process restart loses all
// presence even though project and session records survive.
//
// At most one entry exists per (project, user); re-registering the same
// user replaces the previous entry in place, which is what a reconnect
// does. Member order is insertion order.
type Presence struct {
	mu    sync.RWMutex
	rooms map[string][]*Participant
}

func NewPresence() *Presence {
	return &Presence{rooms: make(map[string][]*Participant)}
}

// Register adds p to the project's room, replacing any existing entry for
// the same user id.
func (pr *Presence) Register(projectID string, p *Participant) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	members := pr.rooms[projectID]
	for i, existing := range members {
		if existing.UserID == p.UserID {
			members[i] = p
			return
		}
	}
	pr.rooms[projectID] = append(members, p)
}

// Unregister removes the user's entry from the project's room. Removing an
// absent entry is a no-op. Emptied rooms are forgotten entirely.
func (pr *Presence) Unregister(projectID, userID string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	members := pr.rooms[projectID]
	for i, existing := range members {
		if existing.UserID == userID {
			pr.rooms[projectID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(pr.rooms[projectID]) == 0 {
		delete(pr.rooms, projectID)
	}
}

// Members returns a snapshot of the project's participants in insertion
// order, safe to serialize and send to clients.
func (pr *Presence) Members(projectID string) []Participant {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	members := pr.rooms[projectID]
	snapshot := make([]Participant, 0, len(members))
	for _, p := range members {
		snapshot = append(snapshot, *p)
	}
	return snapshot
}

// Empty reports whether the project's room has no participants.
func (pr *Presence) Empty(projectID string) bool {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return len(pr.rooms[projectID]) == 0
}

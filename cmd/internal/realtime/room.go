package realtime

import (
	"sync"

	v1 "predixa/shared/contracts/realtime/v1"
)

// Room is the set of live connections that share one organization.
//
// Membership changes are made by the Hub under its own lock so that an empty room is
// never observed by a later Join. Broadcast only needs the room lock.
type Room struct {
	OrgID string

	mu      sync.RWMutex
	members map[string]*Client
}

func newRoom(orgID string) *Room {
	return &Room{
		OrgID:   orgID,
		members: make(map[string]*Client),
	}
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	r.members[c.ID] = c
	r.mu.Unlock()
}

// remove deletes clientID and returns the removed client and the remaining size.
func (r *Room) remove(clientID string) (*Client, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.members[clientID]
	delete(r.members, clientID)
	return c, len(r.members)
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast delivers m to every member and returns how many queues accepted it.
// It never blocks: closing clients are skipped and full queues drop the message.
func (r *Room) Broadcast(m v1.Message) int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, c := range r.members {
		if c == nil {
			continue
		}
		if c.trySend(m) {
			delivered++
		}
	}
	return delivered
}

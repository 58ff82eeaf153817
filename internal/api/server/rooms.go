package server

import "sync"

// rooms tracks which registered users joined which conversation; message
// fan-out is scoped to a conversation's current members.
type rooms struct {
	mu      sync.Mutex
	members map[string]map[string]struct{} // conversationID -> set of userIDs
	joined  map[string]map[string]struct{} // userID -> set of conversationIDs
}

func newRooms() *rooms {
	return &rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (r *rooms) Join(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[conversationID]
	if !ok {
		set = make(map[string]struct{})
		r.members[conversationID] = set
	}
	set[userID] = struct{}{}
	convos, ok := r.joined[userID]
	if !ok {
		convos = make(map[string]struct{})
		r.joined[userID] = convos
	}
	convos[conversationID] = struct{}{}
}

func (r *rooms) Leave(conversationID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, userID)
}

// LeaveAll detaches a disconnecting user from every room.
func (r *rooms) LeaveAll(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conversationID := range r.joined[userID] {
		r.leaveLocked(conversationID, userID)
	}
}

func (r *rooms) leaveLocked(conversationID, userID string) {
	if set, ok := r.members[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(r.members, conversationID)
		}
	}
	if convos, ok := r.joined[userID]; ok {
		delete(convos, conversationID)
		if len(convos) == 0 {
			delete(r.joined, userID)
		}
	}
}

func (r *rooms) IsMember(conversationID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[conversationID][userID]
	return ok
}

// Members returns a snapshot of the room's current membership.
func (r *rooms) Members(conversationID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.members[conversationID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

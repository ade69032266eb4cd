package engine

import (
	"time"

	"livequiz-service/internal/domain"
)

// participant is the registry's mutable record for one user. Scores live here
// and are keyed by user ID, so a reconnect with a fresh connection keeps them.
type participant struct {
	userID      string
	displayName string
	connID      string // empty while disconnected
	score       int
	joinedAt    time.Time
	joinSeq     int
	scoredAt    time.Time // last time the score changed, drives tie-breaks
}

// registry tracks membership for one room. It is not safe for concurrent use;
// the owning room's lock serializes access.
type registry struct {
	byUser  map[string]*participant
	order   []*participant // join order, stable
	nextSeq int
}

func newRegistry() *registry {
	return &registry{byUser: make(map[string]*participant)}
}

// join registers a user or, on reconnect, reattaches the existing record to
// the new connection with its score preserved.
func (r *registry) join(userID, connID, displayName string, now time.Time) (*participant, bool) {
	if p, ok := r.byUser[userID]; ok {
		p.connID = connID
		if displayName != "" {
			p.displayName = displayName
		}
		return p, true
	}
	p := &participant{
		userID:      userID,
		displayName: displayName,
		connID:      connID,
		joinedAt:    now,
		joinSeq:     r.nextSeq,
	}
	r.nextSeq++
	r.byUser[userID] = p
	r.order = append(r.order, p)
	return p, false
}

// markDisconnected detaches the connection but keeps the participant so a
// later reconnect finds the score intact.
func (r *registry) markDisconnected(connID string) (*participant, bool) {
	if connID == "" {
		return nil, false
	}
	for _, p := range r.order {
		if p.connID == connID {
			p.connID = ""
			return p, true
		}
	}
	return nil, false
}

// remove permanently drops a participant (explicit leave).
func (r *registry) remove(userID string) bool {
	p, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(r.byUser, userID)
	for i, cur := range r.order {
		if cur == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *registry) get(userID string) (*participant, bool) {
	p, ok := r.byUser[userID]
	return p, ok
}

// active returns connected participants in join order.
func (r *registry) active() []*participant {
	out := make([]*participant, 0, len(r.order))
	for _, p := range r.order {
		if p.connID != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *registry) views() []domain.ParticipantView {
	out := make([]domain.ParticipantView, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, domain.ParticipantView{
			UserID:      p.userID,
			DisplayName: p.displayName,
			Score:       p.score,
			Connected:   p.connID != "",
		})
	}
	return out
}

func (r *registry) size() int { return len(r.order) }

func (r *registry) connected() int {
	n := 0
	for _, p := range r.order {
		if p.connID != "" {
			n++
		}
	}
	return n
}

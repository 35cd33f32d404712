package hub

import (
	"slices"
	"sync"

	"github.com/tvasek/gridball-backend/pkg/wire"
)

// Roster tracks the participants of one session in join order. It is shared
// between the session actor and the authority router, which reads it from
// flow goroutines, hence the lock.
type Roster struct {
	mu    sync.Mutex
	order []string
	info  map[string]wire.Participant
}

func NewRoster() *Roster {
	return &Roster{info: make(map[string]wire.Participant)}
}

func (r *Roster) Add(p wire.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.info[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.info[p.ID] = p
}

func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.info, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

// ActivePrivileged implements authority.Participants: active privileged
// participant ids in join order.
func (r *Roster) ActivePrivileged() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range r.order {
		if r.info[id].Privileged {
			out = append(out, id)
		}
	}
	return out
}

// List returns every participant in join order.
func (r *Roster) List() []wire.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.info[id])
	}
	return out
}

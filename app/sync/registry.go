package sync

import (
	"sort"
	"sync"
)

// Registry holds the live coordinator of every configured account. The
// accounts file watcher swaps coordinators in and out as the configuration
// changes; the scheduler and the API layer always resolve through here.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]Coordinator
}

func NewRegistry() *Registry {
	return &Registry{coordinators: make(map[string]Coordinator)}
}

func (r *Registry) Set(c Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinators[c.AccountID()] = c
}

func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.coordinators, accountID)
}

func (r *Registry) Get(accountID string) (Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coordinators[accountID]
	return c, ok
}

// All returns the coordinators in stable account id order.
func (r *Registry) All() []Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.coordinators))
	for id := range r.coordinators {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Coordinator, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.coordinators[id])
	}
	return out
}

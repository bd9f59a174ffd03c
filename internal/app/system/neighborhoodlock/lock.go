// internal/app/system/neighborhoodlock/lock.go

// Package neighborhoodlock serializes balancer events per neighborhood.
// Two concurrent supervisor removals on the same neighborhood would each
// compute remaining-supervisor counts from a snapshot and could reassign
// the same workers twice; holding the neighborhood's lock for the duration
// of the event removes that race within a single process.
package neighborhoodlock

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registry hands out one mutex per neighborhood ID. Locks are never
// discarded; the set of neighborhoods is small and bounded.
type Registry struct {
	mu    sync.Mutex
	locks map[primitive.ObjectID]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[primitive.ObjectID]*sync.Mutex)}
}

// Lock acquires the mutex for the given neighborhood and returns the
// unlock function.
//
//	unlock := reg.Lock(neighborhoodID)
//	defer unlock()
func (r *Registry) Lock(neighborhoodID primitive.ObjectID) func() {
	r.mu.Lock()
	m, ok := r.locks[neighborhoodID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[neighborhoodID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

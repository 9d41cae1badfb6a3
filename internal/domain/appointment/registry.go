package appointment

import (
	"context"
	"sync"
)

// Registry hands out the single Manager for each patient so that no two
// managers write the same persisted list.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	opts     Options
}

func NewRegistry(opts Options) *Registry {
	return &Registry{managers: make(map[string]*Manager), opts: opts}
}

func (r *Registry) For(patientID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[patientID]
	if !ok {
		m = NewManager(patientID, r.opts)
		r.managers[patientID] = m
	}
	return m
}

// Len reports how many patients have a live manager.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Catalog returns the doctor catalog the managers book against.
func (r *Registry) Catalog() Catalog { return r.opts.Catalog }

// FlushAll retries pending writes for every patient and returns the errors
// of those that still failed.
func (r *Registry) FlushAll(ctx context.Context) []error {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.mu.Unlock()

	var errs []error
	for _, m := range managers {
		if err := m.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

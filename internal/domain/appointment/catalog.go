package appointment

import (
	"context"
	"sort"
	"sync"
)

// Catalog is the read-only doctor directory consumed by booking.
type Catalog interface {
	Doctor(ctx context.Context, id string) (*Doctor, bool)
	Doctors(ctx context.Context) []Doctor
}

// StaticCatalog is an in-memory catalog.
type StaticCatalog struct {
	mu      sync.RWMutex
	doctors map[string]Doctor
}

func NewStaticCatalog(doctors ...Doctor) *StaticCatalog {
	c := &StaticCatalog{doctors: make(map[string]Doctor, len(doctors))}
	for _, d := range doctors {
		c.doctors[d.ID] = d
	}
	return c
}

// DefaultDoctors is the catalog the portal ships with.
func DefaultDoctors() []Doctor {
	return []Doctor{
		{
			ID:             "1",
			Name:           "Dr. Sarah Wilson",
			Speciality:     "General Physician",
			AvailableTimes: []string{"10:00 AM", "2:00 PM", "4:00 PM"},
			Fees:           500,
		},
		{
			ID:             "2",
			Name:           "Dr. Michael Chen",
			Speciality:     "Cardiologist",
			AvailableTimes: []string{"9:00 AM", "1:00 PM", "3:00 PM"},
			Fees:           800,
		},
	}
}

func (c *StaticCatalog) Doctor(_ context.Context, id string) (*Doctor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.doctors[id]
	if !ok {
		return nil, false
	}
	d.AvailableTimes = append([]string(nil), d.AvailableTimes...)
	return &d, true
}

func (c *StaticCatalog) Doctors(_ context.Context) []Doctor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Doctor, 0, len(c.doctors))
	for _, d := range c.doctors {
		d.AvailableTimes = append([]string(nil), d.AvailableTimes...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops a doctor from the catalog. Existing appointments keep their
// snapshot of the doctor.
func (c *StaticCatalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.doctors, id)
}

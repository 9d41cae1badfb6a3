package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carepoint/portal/internal/platform/kv"
)

var (
	// ErrCorrupt means the stored list exists but could not be parsed.
	ErrCorrupt = errors.New("stored appointments are corrupt")
	// ErrConflict means another writer saved since the list was loaded.
	ErrConflict = errors.New("appointments were modified concurrently")
)

// AppointmentRepository persists a patient's full appointment list. Every
// save replaces the whole list and succeeds only if revision still matches
// what was loaded.
type AppointmentRepository interface {
	Load(ctx context.Context, patientID string) ([]Appointment, int64, error)
	Save(ctx context.Context, patientID string, appts []Appointment, revision int64) (int64, error)
}

type kvRepository struct {
	store kv.Store
}

// NewRepository stores each patient's list as a JSON array under
// appointments:<patientID>.
func NewRepository(store kv.Store) AppointmentRepository {
	return &kvRepository{store: store}
}

func listKey(patientID string) string { return "appointments:" + patientID }

// Load returns an empty list at revision 0 when nothing is stored. A
// corrupt value yields ErrCorrupt together with its revision so the caller
// can overwrite it.
func (r *kvRepository) Load(ctx context.Context, patientID string) ([]Appointment, int64, error) {
	raw, rev, err := r.store.Get(ctx, listKey(patientID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []Appointment{}, 0, nil
		}
		return nil, 0, fmt.Errorf("load appointments: %w", err)
	}

	var appts []Appointment
	if err := json.Unmarshal([]byte(raw), &appts); err != nil {
		return nil, rev, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, rev, nil
}

func (r *kvRepository) Save(ctx context.Context, patientID string, appts []Appointment, revision int64) (int64, error) {
	data, err := json.Marshal(appts)
	if err != nil {
		return 0, fmt.Errorf("encode appointments: %w", err)
	}
	next, err := r.store.CompareAndSwap(ctx, listKey(patientID), string(data), revision)
	if err != nil {
		if errors.Is(err, kv.ErrRevisionMismatch) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("save appointments: %w", err)
	}
	return next, nil
}

package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carepoint/portal/internal/platform/kv"
)

// Repository stores prescriptions grouped by the doctor who wrote them.
type Repository interface {
	Append(ctx context.Context, doctorID string, p Prescription) error
	List(ctx context.Context, doctorID string) ([]Prescription, error)
	// Update applies fn to one prescription and saves the result.
	Update(ctx context.Context, doctorID, id string, fn func(*Prescription) error) (Prescription, error)
}

// maxCASAttempts bounds retries when another writer updates the same list.
const maxCASAttempts = 5

type kvRepository struct {
	store kv.Store
}

func NewRepository(store kv.Store) Repository {
	return &kvRepository{store: store}
}

func listKey(doctorID string) string { return "prescriptions:" + doctorID }

func (r *kvRepository) load(ctx context.Context, doctorID string) ([]Prescription, int64, error) {
	raw, rev, err := r.store.Get(ctx, listKey(doctorID))
	if errors.Is(err, kv.ErrNotFound) {
		return []Prescription{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load prescriptions: %w", err)
	}
	var list []Prescription
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, 0, fmt.Errorf("decode prescriptions: %w", err)
	}
	return list, rev, nil
}

// modify runs a read-modify-write cycle, retrying on a revision conflict.
func (r *kvRepository) modify(ctx context.Context, doctorID string, fn func([]Prescription) ([]Prescription, error)) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		list, rev, err := r.load(ctx, doctorID)
		if err != nil {
			return err
		}
		next, err := fn(list)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode prescriptions: %w", err)
		}
		_, err = r.store.CompareAndSwap(ctx, listKey(doctorID), string(data), rev)
		if errors.Is(err, kv.ErrRevisionMismatch) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save prescriptions: %w", err)
		}
		return nil
	}
	return fmt.Errorf("save prescriptions: %w", kv.ErrRevisionMismatch)
}

func (r *kvRepository) Append(ctx context.Context, doctorID string, p Prescription) error {
	return r.modify(ctx, doctorID, func(list []Prescription) ([]Prescription, error) {
		return append(list, p), nil
	})
}

func (r *kvRepository) List(ctx context.Context, doctorID string) ([]Prescription, error) {
	list, _, err := r.load(ctx, doctorID)
	return list, err
}

func (r *kvRepository) Update(ctx context.Context, doctorID, id string, fn func(*Prescription) error) (Prescription, error) {
	var out Prescription
	err := r.modify(ctx, doctorID, func(list []Prescription) ([]Prescription, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if err := fn(&list[i]); err != nil {
				return nil, err
			}
			out = list[i]
			return list, nil
		}
		return nil, ErrNotFound
	})
	return out, err
}

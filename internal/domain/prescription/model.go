// Package prescription lets doctors write prescriptions and mark them as
// filled.
package prescription

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("prescription not found")
	ErrAlreadyFilled = errors.New("prescription already filled")
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusFilled  Status = "Filled"
)

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type Prescription struct {
	ID          string       `json:"id"`
	PatientID   string       `json:"patient_id,omitempty"`
	PatientName string       `json:"patient_name"`
	DoctorName  string       `json:"doctor_name"`
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes,omitempty"`
	Status      Status       `json:"status"`
	Date        string       `json:"date"`
	CreatedAt   time.Time    `json:"created_at"`
	FilledAt    *time.Time   `json:"filled_at,omitempty"`
}

type CreateRequest struct {
	PatientID   string       `json:"patient_id"`
	PatientName string       `json:"patient_name"`
	DoctorName  string       `json:"doctor_name"`
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes"`
}

// Validate trims the request and drops medication rows left without a
// name. At least one named medication must remain.
func (r *CreateRequest) Validate() error {
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.DoctorName = strings.TrimSpace(r.DoctorName)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.PatientName == "" {
		return fmt.Errorf("%w: patient_name is required", ErrValidation)
	}

	meds := r.Medications[:0]
	for _, m := range r.Medications {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			continue
		}
		m.Dosage = strings.TrimSpace(m.Dosage)
		m.Frequency = strings.TrimSpace(m.Frequency)
		meds = append(meds, m)
	}
	if len(meds) == 0 {
		return fmt.Errorf("%w: at least one medication with a name is required", ErrValidation)
	}
	r.Medications = meds
	return nil
}

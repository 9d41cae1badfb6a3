// Package events publishes appointment lifecycle events to interested
// parties: a RabbitMQ fanout exchange, connected browsers, and the log.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const (
	AppointmentBooked    = "appointment.booked"
	AppointmentCancelled = "appointment.cancelled"
	AppointmentCompleted = "appointment.completed"
	PrescriptionCreated  = "prescription.created"
	PrescriptionFilled   = "prescription.filled"
)

// Event is the envelope published for every domain transition.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	PatientID  string    `json:"patient_id,omitempty"`
	SubjectID  string    `json:"subject_id"`
	DoctorID   string    `json:"doctor_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to a zerolog logger. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("type", event.Type).
		Str("subject_id", event.SubjectID).
		Str("patient_id", event.PatientID).
		Str("status", event.Status).
		Msg("event")
	return nil
}

// Multi fans an event out to every publisher, returning the joined errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

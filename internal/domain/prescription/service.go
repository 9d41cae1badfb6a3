package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/platform/events"
)

type Service struct {
	repo      Repository
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "prescriptions").Logger(),
		now:       time.Now,
	}
}

func (s *Service) Create(ctx context.Context, doctorID string, req CreateRequest) (*Prescription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := Prescription{
		ID:          uuid.NewString(),
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		DoctorName:  req.DoctorName,
		Medications: req.Medications,
		Notes:       req.Notes,
		Status:      StatusPending,
		Date:        now.Format("2006-01-02"),
		CreatedAt:   now,
	}
	if err := s.repo.Append(ctx, doctorID, p); err != nil {
		return nil, err
	}
	s.publish(ctx, events.PrescriptionCreated, doctorID, p)
	return &p, nil
}

// List returns a doctor's prescriptions, optionally restricted to one status.
func (s *Service) List(ctx context.Context, doctorID string, status Status) ([]Prescription, error) {
	all, err := s.repo.List(ctx, doctorID)
	if err != nil || status == "" {
		return all, err
	}
	out := make([]Prescription, 0, len(all))
	for _, p := range all {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkFilled moves a pending prescription to filled. Filling twice fails.
func (s *Service) MarkFilled(ctx context.Context, doctorID, id string) (*Prescription, error) {
	now := s.now().UTC()
	p, err := s.repo.Update(ctx, doctorID, id, func(p *Prescription) error {
		if p.Status != StatusPending {
			return fmt.Errorf("%w: status is %s", ErrAlreadyFilled, p.Status)
		}
		p.Status = StatusFilled
		p.FilledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.PrescriptionFilled, doctorID, p)
	return &p, nil
}

func (s *Service) publish(ctx context.Context, eventType, doctorID string, p Prescription) {
	ev := events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		PatientID:  p.PatientID,
		SubjectID:  p.ID,
		DoctorID:   doctorID,
		Status:     string(p.Status),
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
}

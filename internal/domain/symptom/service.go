package symptom

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// FailureRecorder counts failed backend calls.
type FailureRecorder interface {
	RemoteFailed(service string)
}

type Service struct {
	backend  Backend
	failures FailureRecorder
	logger   zerolog.Logger
}

// NewService builds a checker. A nil backend answers every non-urgent check
// with DefaultMessage.
func NewService(backend Backend, failures FailureRecorder, logger zerolog.Logger) *Service {
	return &Service{
		backend:  backend,
		failures: failures,
		logger:   logger.With().Str("component", "symptoms").Logger(),
	}
}

func (s *Service) Check(ctx context.Context, req CheckRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.hasSevere() {
		return &Result{Urgent: true, Message: SevereMessage, Conditions: []Condition{}}, nil
	}
	if s.backend == nil {
		return &Result{Message: DefaultMessage, Conditions: []Condition{}}, nil
	}

	res, err := s.backend.Assess(ctx, req.Symptoms)
	if err != nil {
		if errors.Is(err, ErrRemote) && s.failures != nil {
			s.failures.RemoteFailed("symptom")
		}
		s.logger.Warn().Err(err).Int("symptoms", len(req.Symptoms)).Msg("symptom backend failed")
		return nil, err
	}
	return res, nil
}

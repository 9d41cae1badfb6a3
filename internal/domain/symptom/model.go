// Package symptom assesses a patient's self-reported symptoms, locally for
// urgent cases and through a consultation backend otherwise.
package symptom

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrRemote     = errors.New("remote service failed")
)

const (
	SevereMessage  = "You have severe symptoms. Please seek immediate medical attention."
	DefaultMessage = "Based on your symptoms, we recommend consulting with a healthcare provider."
)

type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Symptom struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Duration string   `json:"duration"`
}

type CheckRequest struct {
	Symptoms []Symptom `json:"symptoms"`
}

// Validate requires at least one symptom, each with a name. A missing
// severity defaults to mild.
func (r *CheckRequest) Validate() error {
	if len(r.Symptoms) == 0 {
		return fmt.Errorf("%w: please add at least one symptom", ErrValidation)
	}
	for i := range r.Symptoms {
		s := &r.Symptoms[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Duration = strings.TrimSpace(s.Duration)
		if s.Name == "" {
			return fmt.Errorf("%w: please enter a symptom", ErrValidation)
		}
		switch s.Severity {
		case "":
			s.Severity = SeverityMild
		case SeverityMild, SeverityModerate, SeveritySevere:
		default:
			return fmt.Errorf("%w: severity must be mild, moderate or severe", ErrValidation)
		}
	}
	return nil
}

func (r *CheckRequest) hasSevere() bool {
	for _, s := range r.Symptoms {
		if s.Severity == SeveritySevere {
			return true
		}
	}
	return false
}

type Condition struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// Result is what the patient sees. Urgent is set when the local severity
// check short-circuited the backend.
type Result struct {
	Urgent     bool        `json:"urgent"`
	Message    string      `json:"message"`
	Conditions []Condition `json:"conditions"`
}

// RemoteServiceError is a failed call to the consultation backend.
type RemoteServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend returned %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s backend unreachable: %v", e.Service, e.Err)
}

func (e *RemoteServiceError) Unwrap() error        { return e.Err }
func (e *RemoteServiceError) Is(target error) bool { return target == ErrRemote }

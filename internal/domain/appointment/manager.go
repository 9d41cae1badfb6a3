package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/platform/events"
)

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	Transition(op, outcome string)
	PersistenceFailed()
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, string) {}
func (nopRecorder) PersistenceFailed()        {}

// Options configures managers. Repo and Catalog are required.
type Options struct {
	Repo      AppointmentRepository
	Catalog   Catalog
	Publisher events.Publisher
	Recorder  Recorder
	Logger    zerolog.Logger
	// Seed fills a patient's list with demo appointments the first time it
	// is loaded and nothing is stored.
	Seed bool
	Now  func() time.Time
}

// Manager is the single owner of one patient's appointment list. Every
// operation applies its change in memory first and then persists the whole
// list; a failed write is reported as a *PersistenceError while the
// in-memory change stays.
type Manager struct {
	mu        sync.Mutex
	patientID string
	opts      Options
	logger    zerolog.Logger

	loaded bool
	appts  []Appointment
	rev    int64
	dirty  bool
}

func NewManager(patientID string, opts Options) *Manager {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		patientID: patientID,
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "appointments").Str("patient_id", patientID).Logger(),
	}
}

// Load reads the persisted list on first use. Missing or unparseable data
// yields an empty list; only an unreachable store is reported.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoaded(ctx)
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	appts, rev, err := m.opts.Repo.Load(ctx, m.patientID)
	switch {
	case err == nil:
	case errors.Is(err, ErrCorrupt):
		m.logger.Warn().Err(err).Int64("revision", rev).Msg("stored appointments unreadable, starting empty")
		appts = []Appointment{}
	default:
		return &PersistenceError{Op: "load appointments", Err: err}
	}

	if len(appts) == 0 && rev == 0 && m.opts.Seed {
		appts = DemoAppointments(m.patientID, DateOf(m.opts.Now()), m.opts.Catalog.Doctors(ctx), m.opts.Now().UTC())
		m.dirty = len(appts) > 0
	}
	m.appts, m.rev, m.loaded = appts, rev, true
	return nil
}

func (m *Manager) Book(ctx context.Context, req BookRequest, today Date) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Appointment{}, err
	}

	if strings.TrimSpace(req.DoctorID) == "" || req.Date.IsZero() || strings.TrimSpace(req.Time) == "" {
		return Appointment{}, m.reject("book", invalid(MissingFieldsMessage))
	}
	if req.Date.Before(today) {
		return Appointment{}, m.reject("book", invalid("appointment date %s is in the past", req.Date))
	}
	doc, ok := m.opts.Catalog.Doctor(ctx, req.DoctorID)
	if !ok {
		return Appointment{}, m.reject("book", &NotFoundError{Kind: "doctor", ID: req.DoctorID})
	}
	if !doc.HasSlot(req.Time) {
		return Appointment{}, m.reject("book", invalid("%s is not an available time for %s", req.Time, doc.Name))
	}

	status := StatusUpcoming
	if req.Date.Equal(today) {
		status = StatusOngoing
	}
	now := m.opts.Now().UTC()
	a := Appointment{
		ID:         uuid.NewString(),
		PatientID:  m.patientID,
		DoctorID:   doc.ID,
		DoctorName: doc.Name,
		Speciality: doc.Speciality,
		Date:       req.Date,
		Time:       req.Time,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.appts = append(m.appts, a)

	err := m.persistLocked(ctx, "book appointment")
	m.finish(ctx, "book", events.AppointmentBooked, a, err)
	return a, err
}

// Cancel moves an upcoming or ongoing appointment to cancelled. Cancelling
// a completed or cancelled appointment fails without changing anything.
func (m *Manager) Cancel(ctx context.Context, id string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Appointment{}, err
	}

	i := m.indexOf(id)
	if i < 0 {
		return Appointment{}, m.reject("cancel", &NotFoundError{Kind: "appointment", ID: id})
	}
	cur := m.appts[i]
	if cur.Status != StatusUpcoming && cur.Status != StatusOngoing {
		return cur, m.reject("cancel", invalidTransition("appointment is already %s", cur.Status))
	}

	cur.Status = StatusCancelled
	cur.UpdatedAt = m.opts.Now().UTC()
	m.appts[i] = cur

	err := m.persistLocked(ctx, "cancel appointment")
	m.finish(ctx, "cancel", events.AppointmentCancelled, cur, err)
	return cur, err
}

// Complete closes an ongoing appointment with notes and prescription. An
// upcoming appointment whose day is today counts as ongoing.
func (m *Manager) Complete(ctx context.Context, id string, req CompleteRequest, today Date) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Appointment{}, err
	}

	i := m.indexOf(id)
	if i < 0 {
		return Appointment{}, m.reject("complete", &NotFoundError{Kind: "appointment", ID: id})
	}
	cur := m.appts[i]
	if effectiveStatus(cur, today) != StatusOngoing {
		return cur, m.reject("complete", invalidTransition("only ongoing appointments can be completed, this one is %s", cur.Status))
	}

	cur.Status = StatusCompleted
	cur.Notes = strings.TrimSpace(req.Notes)
	cur.Prescription = strings.TrimSpace(req.Prescription)
	cur.UpdatedAt = m.opts.Now().UTC()
	m.appts[i] = cur

	err := m.persistLocked(ctx, "complete appointment")
	m.finish(ctx, "complete", events.AppointmentCompleted, cur, err)
	return cur, err
}

// Get returns one appointment by id.
func (m *Manager) Get(ctx context.Context, id string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Appointment{}, err
	}
	i := m.indexOf(id)
	if i < 0 {
		return Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	return m.appts[i], nil
}

// All returns the full list, cancelled appointments included.
func (m *Manager) All(ctx context.Context) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return cloneAppointments(m.appts), nil
}

func (m *Manager) Views(ctx context.Context, today Date) (Views, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Views{}, err
	}
	return DeriveViews(m.appts, today), nil
}

// BookAgain pre-fills a booking form from an earlier appointment. It fails
// with ErrDoctorUnavailable if the doctor has left the catalog.
func (m *Manager) BookAgain(ctx context.Context, id string, today Date) (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return Draft{}, err
	}

	i := m.indexOf(id)
	if i < 0 {
		return Draft{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	doc, ok := m.opts.Catalog.Doctor(ctx, m.appts[i].DoctorID)
	if !ok {
		return Draft{}, &NotFoundError{Kind: "doctor", ID: m.appts[i].DoctorID}
	}
	return Draft{
		DoctorID:       doc.ID,
		DoctorName:     doc.Name,
		Speciality:     doc.Speciality,
		Date:           today,
		AvailableTimes: doc.AvailableTimes,
		Fees:           doc.Fees,
	}, nil
}

// Flush retries persisting the list after an earlier write failed.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}
	if !m.dirty {
		return nil
	}
	return m.persistLocked(ctx, "flush appointments")
}

// Dirty reports whether the in-memory list has changes not yet persisted.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *Manager) indexOf(id string) int {
	for i := range m.appts {
		if m.appts[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the full list. On a revision conflict the stored
// list is merged with ours and the write retried once against the new
// revision.
func (m *Manager) persistLocked(ctx context.Context, op string) error {
	rev, err := m.opts.Repo.Save(ctx, m.patientID, cloneAppointments(m.appts), m.rev)
	if errors.Is(err, ErrConflict) {
		m.logger.Info().Int64("revision", m.rev).Msg("concurrent write detected, merging")
		rev, err = m.mergeAndSave(ctx)
	}
	if err != nil {
		m.dirty = true
		m.opts.Recorder.PersistenceFailed()
		m.logger.Error().Err(err).Str("op", op).Msg("appointment write failed, keeping in-memory state")
		return &PersistenceError{Op: op, Err: err}
	}
	m.rev = rev
	m.dirty = false
	return nil
}

func (m *Manager) mergeAndSave(ctx context.Context) (int64, error) {
	remote, rev, err := m.opts.Repo.Load(ctx, m.patientID)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return 0, err
	}
	m.appts = merge(remote, m.appts)
	return m.opts.Repo.Save(ctx, m.patientID, cloneAppointments(m.appts), rev)
}

// merge keeps the stored order, takes whichever copy of an appointment was
// updated last, and appends appointments only we know about.
func merge(remote, local []Appointment) []Appointment {
	byID := make(map[string]Appointment, len(local))
	for _, a := range local {
		byID[a.ID] = a
	}
	out := make([]Appointment, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		seen[r.ID] = true
		if l, ok := byID[r.ID]; ok && !l.UpdatedAt.Before(r.UpdatedAt) {
			out = append(out, l)
			continue
		}
		out = append(out, r)
	}
	for _, l := range local {
		if !seen[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func (m *Manager) reject(op string, err error) error {
	outcome := "invalid"
	if errors.Is(err, ErrNotFound) {
		outcome = "not_found"
	}
	m.opts.Recorder.Transition(op, outcome)
	return err
}

func (m *Manager) finish(ctx context.Context, op, eventType string, a Appointment, persistErr error) {
	outcome := "ok"
	if persistErr != nil {
		outcome = "persist_failed"
	}
	m.opts.Recorder.Transition(op, outcome)

	ev := events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		PatientID:  a.PatientID,
		SubjectID:  a.ID,
		DoctorID:   a.DoctorID,
		Status:     string(a.Status),
		OccurredAt: a.UpdatedAt,
	}
	if err := m.opts.Publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn().Err(err).Str("event", eventType).Msg("publish failed")
	}
}

func cloneAppointments(in []Appointment) []Appointment {
	out := make([]Appointment, len(in))
	copy(out, in)
	return out
}

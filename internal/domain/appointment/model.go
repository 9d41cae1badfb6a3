// Package appointment owns a patient's appointment list: booking,
// cancellation, completion, and the ongoing/upcoming/past views derived
// from it.
package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

const dateLayout = "2006-01-02"

// Date is a calendar day. Two Dates are equal iff they name the same day,
// whatever clock time or zone they were derived from.
type Date struct {
	t time.Time
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ParseDate accepts "2006-01-02" or an RFC 3339 timestamp, which is
// truncated to its calendar day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q", s)
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Time() time.Time    { return d.t }
func (d Date) String() string     { return d.t.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Doctor is read-only catalog data.
type Doctor struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Speciality     string   `json:"speciality"`
	AvailableTimes []string `json:"available_times"`
	Fees           int      `json:"fees"`
}

func (d *Doctor) HasSlot(slot string) bool {
	for _, s := range d.AvailableTimes {
		if s == slot {
			return true
		}
	}
	return false
}

// Appointment holds a snapshot of the doctor taken at booking time.
type Appointment struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	DoctorID     string    `json:"doctor_id"`
	DoctorName   string    `json:"doctor_name"`
	Speciality   string    `json:"speciality"`
	Date         Date      `json:"date"`
	Time         string    `json:"time"`
	Status       Status    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	Prescription string    `json:"prescription,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BookRequest is the booking form.
type BookRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     Date   `json:"date"`
	Time     string `json:"time"`
}

// CompleteRequest carries the terminal content attached on completion.
type CompleteRequest struct {
	Notes        string `json:"notes"`
	Prescription string `json:"prescription"`
}

// Draft pre-fills the booking form from an earlier appointment.
type Draft struct {
	DoctorID       string   `json:"doctor_id"`
	DoctorName     string   `json:"doctor_name"`
	Speciality     string   `json:"speciality"`
	Date           Date     `json:"date"`
	AvailableTimes []string `json:"available_times"`
	Fees           int      `json:"fees"`
}

// Views are the derived buckets shown on the appointments page.
type Views struct {
	Ongoing  []Appointment `json:"ongoing"`
	Upcoming []Appointment `json:"upcoming"`
	Past     []Appointment `json:"past"`
}

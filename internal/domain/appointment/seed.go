package appointment

import (
	"time"

	"github.com/google/uuid"
)

// DemoAppointments builds a small history for a new patient: one completed
// visit last week and one visit later this week.
func DemoAppointments(patientID string, today Date, doctors []Doctor, now time.Time) []Appointment {
	if len(doctors) == 0 {
		return nil
	}
	first := doctors[0]
	second := first
	if len(doctors) > 1 {
		second = doctors[1]
	}

	past := Appointment{
		ID:           uuid.NewString(),
		PatientID:    patientID,
		DoctorID:     first.ID,
		DoctorName:   first.Name,
		Speciality:   first.Speciality,
		Date:         today.AddDays(-7),
		Time:         firstSlot(first),
		Status:       StatusCompleted,
		Notes:        "Routine checkup. Vitals normal.",
		Prescription: "Vitamin D 1000 IU daily",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	next := Appointment{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		DoctorID:   second.ID,
		DoctorName: second.Name,
		Speciality: second.Speciality,
		Date:       today.AddDays(3),
		Time:       firstSlot(second),
		Status:     StatusUpcoming,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return []Appointment{past, next}
}

func firstSlot(d Doctor) string {
	if len(d.AvailableTimes) == 0 {
		return ""
	}
	return d.AvailableTimes[0]
}

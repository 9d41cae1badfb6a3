package prescription

import (
	"sort"
	"strings"
)

// ReferenceMedication is a read-only drug monograph doctors consult while
// writing a prescription.
type ReferenceMedication struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Dosage      string `json:"dosage"`
	SideEffects string `json:"side_effects"`
}

// DefaultReference is the medication reference the portal ships with,
// sorted by name.
func DefaultReference() []ReferenceMedication {
	ref := []ReferenceMedication{
		{
			Name:        "Lisinopril",
			Usage:       "High blood pressure, heart failure",
			Dosage:      "10mg once daily",
			SideEffects: "Dry cough, dizziness, headache",
		},
		{
			Name:        "Metformin",
			Usage:       "Type 2 diabetes",
			Dosage:      "500mg twice daily with meals",
			SideEffects: "Nausea, upset stomach, diarrhea",
		},
		{
			Name:        "Amoxicillin",
			Usage:       "Bacterial infections",
			Dosage:      "500mg every 8 hours",
			SideEffects: "Rash, nausea, diarrhea",
		},
		{
			Name:        "Atorvastatin",
			Usage:       "High cholesterol",
			Dosage:      "20mg once daily",
			SideEffects: "Muscle pain, joint pain",
		},
		{
			Name:        "Ibuprofen",
			Usage:       "Pain, fever, inflammation",
			Dosage:      "200-400mg every 6 hours as needed",
			SideEffects: "Stomach upset, heartburn",
		},
	}
	sort.Slice(ref, func(i, j int) bool { return ref[i].Name < ref[j].Name })
	return ref
}

// searchReference returns the entries whose name contains q, ignoring case.
// An empty q matches everything.
func searchReference(ref []ReferenceMedication, q string) []ReferenceMedication {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]ReferenceMedication, 0, len(ref))
	for _, m := range ref {
		if q == "" || strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	return out
}

package clinical

import "slices"

// Organisation is the static department identity stamped onto every record.
// It comes from configuration and is never extracted from a transcript.
type Organisation struct {
	Department        string    `yaml:"department"         json:"department"`
	DivisionHead      string    `yaml:"division_head"      json:"division_head"`
	ServiceHead       string    `yaml:"service_head"       json:"service_head"`
	Unit              string    `yaml:"unit"               json:"unit"`
	Doctors           []string  `yaml:"doctors"            json:"doctors"`
	EmergencyContacts []Contact `yaml:"emergency_contacts" json:"emergency_contacts"`
}

// DefaultOrganisation returns the paediatric oncology department identity
// used when no organisation is configured.
func DefaultOrganisation() Organisation {
	return Organisation{
		Department:   "Department of Paediatric Oncology",
		DivisionHead: "Dr. Priyakumari T (Professor)",
		ServiceHead:  "Dr. Priyakumari T (Professor)",
		Doctors: []string{
			"Dr. Manjusha Nair (Assoc. Professor)",
			"Dr. Prasanth VR (Asst. Professor)",
			"Dr. Binitha R (Assoc. Professor)",
			"Dr. Guruprasad CS (Assoc. Professor)",
			"Dr. Kalasekhar VS (Asst. Professor)",
		},
		EmergencyContacts: []Contact{
			{Label: "Casualty", Number: "04712522458 (24 Hrs)"},
			{Label: "A Clinic", Number: "04712522317/2522392/2522391"},
			{Label: "B Clinic", Number: "04712522379/2522398"},
			{Label: "C Clinic", Number: "04712522202/2522371"},
			{Label: "D Clinic", Number: "04712522372/2522374"},
			{Label: "E Clinic", Number: "04712522334/2522397"},
			{Label: "F Clinic", Number: "04712522368/8289897454"},
		},
	}
}

// IsZero reports whether no organisation field is set.
func (o Organisation) IsZero() bool {
	return o.Department == "" && o.DivisionHead == "" && o.ServiceHead == "" &&
		o.Unit == "" && len(o.Doctors) == 0 && len(o.EmergencyContacts) == 0
}

// Clone returns a deep copy of o.
func (o Organisation) Clone() Organisation {
	o.Doctors = slices.Clone(o.Doctors)
	o.EmergencyContacts = slices.Clone(o.EmergencyContacts)
	return o
}

// Package clinical defines the structured clinical record produced from a
// dictated transcript and consumed by the discharge-summary renderer.
//
// A [Record] is a concrete struct in which every leaf field carries a
// deterministic default: "not found" is represented by an empty string (or a
// named sentinel such as "NIL" or "WNL"), never by an absent key. This lets
// consumers compare fields against their defaults instead of checking for
// presence, and keeps the JSON wire shape stable regardless of how much was
// extracted.
//
// Records are created per transcript with [NewRecord], populated once by an
// extractor, and treated as immutable afterwards. Use [Record.Clone] when a
// caller needs an independent copy (for example before persisting).
package clinical

import (
	"slices"
	"time"
)

// Default sentinel values used by [NewRecord].
const (
	// DefaultHistology is the histology value used when none is dictated.
	DefaultHistology = "NIL"

	// DefaultSystemFinding is the systems-examination value meaning
	// "within normal limits".
	DefaultSystemFinding = "WNL"
)

// Sex is the patient's recorded sex. The zero value means "not captured".
type Sex string

const (
	SexUnknown Sex = ""
	SexMale    Sex = "M"
	SexFemale  Sex = "F"
)

// Record is the structured clinical record for one admission episode.
//
// The JSON field names are the wire shape exchanged with calling services and
// persisted by the store layer.
type Record struct {
	// Department, DivisionHead, ServiceHead, Doctors and EmergencyContacts are
	// organisation identity copied from an [Organisation]; they are never
	// extracted from the transcript.
	Department   string   `json:"department"`
	DivisionHead string   `json:"division_head"`
	ServiceHead  string   `json:"service_head"`
	Doctors      []string `json:"doctors"`

	Patient        Patient        `json:"patient_details"`
	Admission      Admission      `json:"admission_details"`
	History        History        `json:"history"`
	Examination    Examination    `json:"clinical_examination"`
	Investigations Investigations `json:"investigations"`
	Treatment      Treatment      `json:"treatment"`

	// CourseInHospital is a free-text narrative of the hospital stay.
	CourseInHospital string `json:"course_in_hospital"`

	EmergencyContacts []Contact `json:"emergency_contacts"`

	// OriginalTranscript is the verbatim input the record was built from.
	OriginalTranscript string `json:"original_transcript"`

	Metadata Metadata `json:"metadata"`
}

// Patient holds demographic details.
type Patient struct {
	CRNo                string `json:"cr_no"`
	Name                string `json:"name"`
	Age                 string `json:"age"`
	Sex                 Sex    `json:"sex"`
	Unit                string `json:"unit"`
	AttendingOncologist string `json:"attending_oncologist"`
}

// Admission holds the admission episode details.
type Admission struct {
	Diagnosis          string `json:"diagnosis"`
	Histology          string `json:"histology"`
	Stage              string `json:"stage"`
	DOA                string `json:"doa"`
	DOD                string `json:"dod"`
	ReasonForAdmission string `json:"reason_for_admission"`
}

// History holds the presenting complaint and history narrative.
type History struct {
	ChiefComplaints   string `json:"chief_complaints"`
	PresentingHistory string `json:"presenting_history"`
}

// Examination holds the clinical examination findings.
type Examination struct {
	GeneralCondition string  `json:"general_condition"`
	Vitals           Vitals  `json:"vitals"`
	Systems          Systems `json:"systems"`
}

// Vitals holds the vital signs, each already formatted with its unit
// (e.g. "120/min", "104/60mmhg", "100.3°F").
type Vitals struct {
	HR   string `json:"hr"`
	BP   string `json:"bp"`
	Temp string `json:"temp"`
	RR   string `json:"rr"`
}

// Systems holds the per-system examination findings. Each field defaults to
// [DefaultSystemFinding].
type Systems struct {
	Respiratory      string `json:"respiratory_system"`
	Cardiovascular   string `json:"cardiovascular_system"`
	Gastrointestinal string `json:"gastrointestinal_system"`
	Neurological     string `json:"neurological_system"`
	Other            string `json:"other_systems"`
}

// Investigations holds laboratory panels and other investigations.
type Investigations struct {
	// LabResults is append-only; every snapshot carries its own date so that
	// several panels can coexist in one record.
	LabResults []LabResult         `json:"lab_results"`
	Other      OtherInvestigations `json:"other_investigations"`
}

// LabResult is one dated laboratory snapshot. Values that were not measured
// are left empty and omitted from the JSON object.
type LabResult struct {
	Date        string `json:"date"`
	Hb          string `json:"hb,omitempty"`
	WBC         string `json:"wbc,omitempty"`
	Platelet    string `json:"platelet,omitempty"`
	Neutrophils string `json:"dc_neutrophils,omitempty"`
	Lymphocytes string `json:"lymphocytes,omitempty"`
}

// HasValues reports whether at least one lab value is present.
func (l LabResult) HasValues() bool {
	return l.Hb != "" || l.WBC != "" || l.Platelet != "" || l.Neutrophils != "" || l.Lymphocytes != ""
}

// OtherInvestigations holds non-laboratory investigations.
type OtherInvestigations struct {
	BloodCulture  string `json:"blood_culture"`
	Procalcitonin string `json:"procalcitonin"`
	CXR           string `json:"cxr"`
	UrineCulture  string `json:"urine_culture"`
	Other         string `json:"other"`
}

// IsEmpty reports whether no other investigation was recorded.
func (o OtherInvestigations) IsEmpty() bool {
	return o == OtherInvestigations{}
}

// Treatment holds the medication list.
type Treatment struct {
	Medications []Medication `json:"medications"`
}

// Medication is one prescribed drug. Dose, Frequency and Duration are empty
// when not dictated.
type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// Contact is a labelled emergency phone number.
type Contact struct {
	Label  string `json:"label"`
	Number string `json:"number"`
}

// Metadata describes how the record was produced.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`

	// ProcessingModel names the extraction strategy (e.g. "rule_based").
	ProcessingModel string `json:"processing_model"`

	// ConfidenceScore is [Confidence] of the finished record.
	ConfidenceScore float64 `json:"confidence_score"`
}

// NewRecord returns a record for transcript in which every field holds its
// default and the organisation block is copied from org.
func NewRecord(transcript string, org Organisation) *Record {
	return &Record{
		Department:   org.Department,
		DivisionHead: org.DivisionHead,
		ServiceHead:  org.ServiceHead,
		Doctors:      slices.Clone(org.Doctors),
		Patient: Patient{
			Unit: org.Unit,
		},
		Admission: Admission{
			Histology: DefaultHistology,
		},
		Examination: Examination{
			Systems: Systems{
				Respiratory:      DefaultSystemFinding,
				Cardiovascular:   DefaultSystemFinding,
				Gastrointestinal: DefaultSystemFinding,
				Neurological:     DefaultSystemFinding,
				Other:            DefaultSystemFinding,
			},
		},
		Investigations: Investigations{
			LabResults: []LabResult{},
		},
		Treatment: Treatment{
			Medications: []Medication{},
		},
		EmergencyContacts:  slices.Clone(org.EmergencyContacts),
		OriginalTranscript: transcript,
	}
}

// Clone returns a deep copy of r. A nil receiver returns nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Doctors = slices.Clone(r.Doctors)
	c.EmergencyContacts = slices.Clone(r.EmergencyContacts)
	c.Investigations.LabResults = slices.Clone(r.Investigations.LabResults)
	c.Treatment.Medications = slices.Clone(r.Treatment.Medications)
	return &c
}

package clinical_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nv-mldev/emr/pkg/clinical"
)

func TestNewRecord_Defaults(t *testing.T) {
	t.Parallel()

	org := clinical.DefaultOrganisation()
	rec := clinical.NewRecord("hello", org)

	if rec.OriginalTranscript != "hello" {
		t.Errorf("OriginalTranscript = %q, want %q", rec.OriginalTranscript, "hello")
	}
	if rec.Admission.Histology != clinical.DefaultHistology {
		t.Errorf("Histology = %q, want %q", rec.Admission.Histology, clinical.DefaultHistology)
	}
	sys := rec.Examination.Systems
	for name, got := range map[string]string{
		"respiratory":      sys.Respiratory,
		"cardiovascular":   sys.Cardiovascular,
		"gastrointestinal": sys.Gastrointestinal,
		"neurological":     sys.Neurological,
		"other":            sys.Other,
	} {
		if got != clinical.DefaultSystemFinding {
			t.Errorf("%s system = %q, want %q", name, got, clinical.DefaultSystemFinding)
		}
	}
	if rec.Patient.Sex != clinical.SexUnknown {
		t.Errorf("Sex = %q, want unknown", rec.Patient.Sex)
	}
	if rec.Department != org.Department {
		t.Errorf("Department = %q, want %q", rec.Department, org.Department)
	}
	if len(rec.Doctors) != len(org.Doctors) {
		t.Errorf("Doctors len = %d, want %d", len(rec.Doctors), len(org.Doctors))
	}
	if len(rec.EmergencyContacts) != 7 {
		t.Errorf("EmergencyContacts len = %d, want 7", len(rec.EmergencyContacts))
	}
}

func TestNewRecord_DoesNotAliasOrganisation(t *testing.T) {
	t.Parallel()

	org := clinical.DefaultOrganisation()
	rec := clinical.NewRecord("", org)
	rec.Doctors[0] = "changed"
	rec.EmergencyContacts[0].Number = "0"

	if org.Doctors[0] == "changed" {
		t.Error("record doctors alias the organisation roster")
	}
	if org.EmergencyContacts[0].Number == "0" {
		t.Error("record contacts alias the organisation contacts")
	}
}

func TestNewRecord_JSONShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(clinical.NewRecord("", clinical.Organisation{}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{
		`"patient_details":`,
		`"admission_details":`,
		`"clinical_examination":`,
		`"lab_results":[]`,
		`"medications":[]`,
		`"histology":"NIL"`,
		`"respiratory_system":"WNL"`,
		`"original_transcript":""`,
		`"confidence_score":0`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON missing %s\n%s", want, got)
		}
	}
}

func TestLabResult_JSONOmitsMissingValues(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(clinical.LabResult{Date: "01/02/2025", Hb: "9", Platelet: "40000"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"date":"01/02/2025","hb":"9","platelet":"40000"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestLabResult_HasValues(t *testing.T) {
	t.Parallel()

	if (clinical.LabResult{Date: "x"}).HasValues() {
		t.Error("date-only snapshot reported values")
	}
	if !(clinical.LabResult{Lymphocytes: "30"}).HasValues() {
		t.Error("snapshot with lymphocytes reported no values")
	}
}

func TestRecord_Clone(t *testing.T) {
	t.Parallel()

	rec := clinical.NewRecord("t", clinical.DefaultOrganisation())
	rec.Treatment.Medications = append(rec.Treatment.Medications, clinical.Medication{Name: "Inj. Cefoperazone"})
	rec.Investigations.LabResults = append(rec.Investigations.LabResults, clinical.LabResult{Date: "d", Hb: "9"})

	c := rec.Clone()
	c.Treatment.Medications[0].Name = "other"
	c.Investigations.LabResults[0].Hb = "1"
	c.Doctors[0] = "other"

	if rec.Treatment.Medications[0].Name != "Inj. Cefoperazone" {
		t.Error("Clone shares medications")
	}
	if rec.Investigations.LabResults[0].Hb != "9" {
		t.Error("Clone shares lab results")
	}
	if rec.Doctors[0] == "other" {
		t.Error("Clone shares doctors")
	}

	var nilRec *clinical.Record
	if nilRec.Clone() != nil {
		t.Error("nil Clone should return nil")
	}
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(r *clinical.Record)
		want   float64
	}{
		{name: "defaults", modify: func(*clinical.Record) {}, want: 0},
		{name: "age only", modify: func(r *clinical.Record) { r.Patient.Age = "7" }, want: 1.0 / 6},
		{
			name: "age and sex",
			modify: func(r *clinical.Record) {
				r.Patient.Age = "7"
				r.Patient.Sex = clinical.SexFemale
			},
			want: 2.0 / 6,
		},
		{
			name: "all indicators",
			modify: func(r *clinical.Record) {
				r.Patient.Age = "7"
				r.Patient.Sex = clinical.SexFemale
				r.Admission.Diagnosis = "B-ALL"
				r.Examination.Vitals.Temp = "100.3°F"
				r.Investigations.LabResults = append(r.Investigations.LabResults, clinical.LabResult{Date: "d", Hb: "9"})
				r.Treatment.Medications = append(r.Treatment.Medications, clinical.Medication{Name: "Inj. Cefoperazone"})
			},
			want: 1,
		},
		{
			name: "non-indicator fields ignored",
			modify: func(r *clinical.Record) {
				r.Examination.Vitals.HR = "120/min"
				r.Patient.AttendingOncologist = "Dr. Prasanth"
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := clinical.NewRecord("", clinical.Organisation{})
			tt.modify(rec)
			if got := clinical.Confidence(rec); got != tt.want {
				t.Errorf("Confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidence_Nil(t *testing.T) {
	t.Parallel()
	if got := clinical.Confidence(nil); got != 0 {
		t.Errorf("Confidence(nil) = %v, want 0", got)
	}
}

func TestOrganisation_IsZeroAndClone(t *testing.T) {
	t.Parallel()

	if !(clinical.Organisation{}).IsZero() {
		t.Error("empty organisation not zero")
	}
	org := clinical.DefaultOrganisation()
	if org.IsZero() {
		t.Error("default organisation reported zero")
	}
	c := org.Clone()
	c.Doctors[0] = "x"
	if org.Doctors[0] == "x" {
		t.Error("Clone shares doctors")
	}
}

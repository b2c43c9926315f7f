package extract_test

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nv-mldev/emr/internal/extract"
	"github.com/nv-mldev/emr/pkg/clinical"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newExtractor(opts ...extract.Option) *extract.Extractor {
	return extract.New(append([]extract.Option{extract.WithClock(fixedClock)}, opts...)...)
}

const ballScenario = "7 year old female, diagnosed with B-ALL, temperature 100.3 F, heart rate 120, " +
	"BP 104/60, Hb 9, WBC 1000, started on Cefoperazone for 3 days, Dr. Prasanth"

func TestExtract_BALLScenario(t *testing.T) {
	t.Parallel()

	rec := newExtractor().Extract(ballScenario)

	checks := []struct {
		field, got, want string
	}{
		{"age", rec.Patient.Age, "7"},
		{"sex", string(rec.Patient.Sex), "F"},
		{"temp", rec.Examination.Vitals.Temp, "100.3°F"},
		{"general_condition", rec.Examination.GeneralCondition, "Febrile (100.3°F)"},
		{"hr", rec.Examination.Vitals.HR, "120/min"},
		{"bp", rec.Examination.Vitals.BP, "104/60mmhg"},
		{"attending", rec.Patient.AttendingOncologist, "Dr. Prasanth"},
		{"processing_model", rec.Metadata.ProcessingModel, extract.StrategyRuleBased},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if !strings.Contains(rec.Admission.Diagnosis, "B-ALL") {
		t.Errorf("diagnosis = %q, want it to contain B-ALL", rec.Admission.Diagnosis)
	}

	if len(rec.Investigations.LabResults) != 1 {
		t.Fatalf("lab snapshots = %d, want 1", len(rec.Investigations.LabResults))
	}
	lab := rec.Investigations.LabResults[0]
	if lab.Hb != "9" || lab.WBC != "1000" {
		t.Errorf("lab = %+v, want hb=9 wbc=1000", lab)
	}
	if lab.Date != "14/03/2025" {
		t.Errorf("lab date = %q, want 14/03/2025", lab.Date)
	}

	if len(rec.Treatment.Medications) != 1 {
		t.Fatalf("medications = %+v, want exactly one", rec.Treatment.Medications)
	}
	if !strings.Contains(rec.Treatment.Medications[0].Name, "Cefoperazone") {
		t.Errorf("medication = %q, want it to contain Cefoperazone", rec.Treatment.Medications[0].Name)
	}

	if rec.Metadata.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", rec.Metadata.ConfidenceScore)
	}
	if !rec.Metadata.GeneratedAt.Equal(fixedNow) {
		t.Errorf("generated_at = %v, want %v", rec.Metadata.GeneratedAt, fixedNow)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   \n\t "} {
		rec := newExtractor().Extract(input)
		want := clinical.NewRecord(input, clinical.DefaultOrganisation())
		want.Metadata = clinical.Metadata{
			GeneratedAt:     fixedNow,
			ProcessingModel: extract.StrategyRuleBased,
		}
		if !reflect.DeepEqual(rec, want) {
			t.Errorf("Extract(%q) = %+v, want defaults %+v", input, rec, want)
		}
		if rec.History.PresentingHistory != "" {
			t.Errorf("presenting_history = %q, want empty", rec.History.PresentingHistory)
		}
	}
}

func TestExtract_TwoDoctorsKeepsFirst(t *testing.T) {
	t.Parallel()

	rec := newExtractor().Extract("Seen by Dr. Manjusha Nair in casualty, later reviewed by Dr. Prasanth.")
	if got, want := rec.Patient.AttendingOncologist, "Dr. Manjusha Nair"; got != want {
		t.Errorf("attending = %q, want %q", got, want)
	}
}

func TestExtract_Rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		get   func(*clinical.Record) string
		want  string
	}{
		{"age label", "Age: 12, admitted", func(r *clinical.Record) string { return r.Patient.Age }, "12"},
		{"aged", "child aged 4 presented", func(r *clinical.Record) string { return r.Patient.Age }, "4"},
		{"age hyphenated", "a 3-year-old boy", func(r *clinical.Record) string { return r.Patient.Age }, "3"},
		{"age not in stage", "stage 3 disease", func(r *clinical.Record) string { return r.Patient.Age }, ""},
		{"sex label", "Sex: M", func(r *clinical.Record) string { return string(r.Patient.Sex) }, "M"},
		{"gender word", "gender female", func(r *clinical.Record) string { return string(r.Patient.Sex) }, "F"},
		{"boy", "a 3-year-old boy", func(r *clinical.Record) string { return string(r.Patient.Sex) }, "M"},
		{"girl", "the girl was febrile", func(r *clinical.Record) string { return string(r.Patient.Sex) }, "F"},
		{"male inside female", "female", func(r *clinical.Record) string { return string(r.Patient.Sex) }, "F"},
		{
			"leukemia family",
			"Known case of acute lymphoblastic leukemia on maintenance. Fever.",
			func(r *clinical.Record) string { return r.Admission.Diagnosis },
			"leukemia on maintenance",
		},
		{
			"diagnosed with family",
			"She was diagnosed with Wilms tumour. Now stable.",
			func(r *clinical.Record) string { return r.Admission.Diagnosis },
			"diagnosed with Wilms tumour",
		},
		{
			"condition family",
			"Condition: febrile neutropenia.",
			func(r *clinical.Record) string { return r.Admission.Diagnosis },
			"Condition: febrile neutropenia",
		},
		{
			"B-ALL wins over later families",
			"diagnosed with B ALL in remission. Condition: stable.",
			func(r *clinical.Record) string { return r.Admission.Diagnosis },
			"B ALL in remission",
		},
		{"ball is not B-ALL", "playing with a ball", func(r *clinical.Record) string { return r.Admission.Diagnosis }, ""},
		{
			"lower-case b-all",
			"known case of b-all on induction. Fever.",
			func(r *clinical.Record) string { return r.Admission.Diagnosis },
			"b-all on induction",
		},
		{"b all is not B-ALL", "gave b all day", func(r *clinical.Record) string { return r.Admission.Diagnosis }, ""},
		{"celsius", "temp: 38.5 C", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "38.5°C"},
		{"fahrenheit word", "fever 101 fahrenheit", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "101°F"},
		{"default unit", "temperature 99", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "99°F"},
		{"degree sign", "temp 38.5°C", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "38.5°C"},
		{"degrees celsius", "temperature 38.5 degrees celsius", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "38.5°C"},
		{"centigrade", "temperature 38 centigrade", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "38°C"},
		{"degree fahrenheit", "fever 102 degree F", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "102°F"},
		{"degrees without unit", "temperature 99 degrees", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, "99°F"},
		{"fever without value", "fever for 3 days", func(r *clinical.Record) string { return r.Examination.Vitals.Temp }, ""},
		{"pulse", "pulse 96/min", func(r *clinical.Record) string { return r.Examination.Vitals.HR }, "96/min"},
		{"blood pressure", "blood pressure: 110/70", func(r *clinical.Record) string { return r.Examination.Vitals.BP }, "110/70mmhg"},
		{"respiratory rate", "RR 28", func(r *clinical.Record) string { return r.Examination.Vitals.RR }, "28/min"},
		{
			"respiratory findings joined",
			"bilateral crepitations, no retractions",
			func(r *clinical.Record) string { return r.Examination.Systems.Respiratory },
			"Crepitations present. No retractions",
		},
		{"respiratory default", "chest clear", func(r *clinical.Record) string { return r.Examination.Systems.Respiratory }, "WNL"},
		{"platelets plural", "platelets 45000", func(r *clinical.Record) string { return labValue(r, "platelet") }, "45000"},
		{"hemoglobin word", "hemoglobin: 7.8", func(r *clinical.Record) string { return labValue(r, "hb") }, "7.8"},
		{"neutrophils", "ANC 400", func(r *clinical.Record) string { return labValue(r, "neutrophils") }, "400"},
		{
			"chief complaints",
			"Chief complaints: fever and vomiting. Exam normal.",
			func(r *clinical.Record) string { return r.History.ChiefComplaints },
			"fever and vomiting",
		},
		{
			"presents with",
			"Child presents with bleeding gums. Exam normal.",
			func(r *clinical.Record) string { return r.History.ChiefComplaints },
			"bleeding gums",
		},
		{
			"fever and cough",
			"History of fever with cough since 2 days. Exam normal.",
			func(r *clinical.Record) string { return r.History.ChiefComplaints },
			"fever with cough since 2 days",
		},
		{"attending doctor word", "doctor Binitha R reviewed", func(r *clinical.Record) string { return r.Patient.AttendingOncologist }, "Dr. Binitha R"},
		{"attending lower-case name ignored", "dr. said so", func(r *clinical.Record) string { return r.Patient.AttendingOncologist }, ""},
	}

	ex := newExtractor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.get(ex.Extract(tc.input)); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func labValue(r *clinical.Record, key string) string {
	if len(r.Investigations.LabResults) == 0 {
		return ""
	}
	l := r.Investigations.LabResults[0]
	switch key {
	case "hb":
		return l.Hb
	case "platelet":
		return l.Platelet
	case "neutrophils":
		return l.Neutrophils
	}
	return ""
}

func TestExtract_Medications(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		opts  []extract.Option
		want  []string
	}{
		{
			name:  "dosage forms",
			input: "Started Inj. Meropenem 20 mg/kg, Syp. Zinc 5 ml, Tab. Dolo 650.",
			want:  []string{"Inj. Meropenem 20 mg/kg", "Syp. Zinc 5 ml", "Tab. Dolo 650"},
		},
		{
			name:  "vocabulary without prefix",
			input: "given oseltamivir twice daily, then paracetamol SOS.",
			want:  []string{"oseltamivir twice daily", "paracetamol SOS"},
		},
		{
			name:  "duplicates dropped",
			input: "Paracetamol, Paracetamol, Paracetamol.",
			want:  []string{"Paracetamol"},
		},
		{
			name:  "custom vocabulary",
			input: "continued Blinatumomab infusion, Cefoperazone.",
			opts:  []extract.Option{extract.WithVocabulary([]string{"Blinatumomab"})},
			want:  []string{"Blinatumomab infusion"},
		},
		{
			name:  "community-acquired pneumonia is not a capsule",
			input: "Chest xray shows CAP with crepitations. Started Inj. Cefoperazone.",
			want:  []string{"Inj. Cefoperazone"},
		},
		{
			name:  "capsule with dot",
			input: "Cap. Omeprazole 20 mg daily.",
			want:  []string{"Cap. Omeprazole 20 mg daily"},
		},
		{
			name:  "capitalised words are not drugs",
			input: "Patient From Kollam Was Admitted.",
			want:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := newExtractor(tc.opts...).Extract(tc.input)
			var got []string
			for _, m := range rec.Treatment.Medications {
				got = append(got, m.Name)
				if m.Dose != "" || m.Frequency != "" || m.Duration != "" {
					t.Errorf("medication %q has unexpected details %+v", m.Name, m)
				}
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("medications = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtract_PresentingHistoryTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 250)
	rec := newExtractor().Extract(long)
	want := strings.Repeat("é", 200) + "..."
	if rec.History.PresentingHistory != want {
		t.Errorf("presenting_history has %d runes, want 200 + ellipsis", len([]rune(rec.History.PresentingHistory)))
	}

	short := "short note"
	if got := newExtractor().Extract(short).History.PresentingHistory; got != short {
		t.Errorf("presenting_history = %q, want %q", got, short)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()

	ex := newExtractor()
	a := ex.Extract(ballScenario)
	b := ex.Extract(ballScenario)
	if !reflect.DeepEqual(a, b) {
		t.Error("two extractions of the same input differ")
	}
}

func TestExtract_ConfidenceMonotonic(t *testing.T) {
	t.Parallel()

	ex := newExtractor()
	inputs := []string{
		"nothing here",
		"age 5",
		"age 5, female",
		"age 5, female, diagnosed with B-ALL",
		"age 5, female, diagnosed with B-ALL, temp 101 F",
		"age 5, female, diagnosed with B-ALL, temp 101 F, Hb 8",
		"age 5, female, diagnosed with B-ALL, temp 101 F, Hb 8, Inj. Vincristine",
	}
	prev := -1.0
	for _, in := range inputs {
		c := ex.Extract(in).Metadata.ConfidenceScore
		if c < 0 || c > 1 {
			t.Fatalf("confidence %v out of range for %q", c, in)
		}
		if c <= prev {
			t.Errorf("confidence for %q = %v, want > %v", in, c, prev)
		}
		prev = c
	}
	if prev != 1 {
		t.Errorf("final confidence = %v, want 1", prev)
	}
}

func TestExtract_ConfidenceMatchesRecord(t *testing.T) {
	t.Parallel()

	rec := newExtractor().Extract("age 9, Hb 10")
	if rec.Metadata.ConfidenceScore != clinical.Confidence(rec) {
		t.Errorf("stored confidence %v != recomputed %v", rec.Metadata.ConfidenceScore, clinical.Confidence(rec))
	}
}

func TestExtract_Organisation(t *testing.T) {
	t.Parallel()

	org := clinical.Organisation{Department: "Department of Haematology", Doctors: []string{"Dr. A"}}
	rec := newExtractor(extract.WithOrganisation(org)).Extract("age 3")
	if rec.Department != "Department of Haematology" {
		t.Errorf("department = %q", rec.Department)
	}
	if len(rec.Doctors) != 1 || len(rec.EmergencyContacts) != 0 {
		t.Errorf("organisation not applied: doctors=%v contacts=%v", rec.Doctors, rec.EmergencyContacts)
	}
}

type stageRule struct{}

func (stageRule) Name() string { return "stage" }

func (stageRule) Apply(text string, rec *clinical.Record) {
	if strings.Contains(text, "standard risk") {
		rec.Admission.Stage = "Standard risk"
	}
}

func TestExtract_WithRules(t *testing.T) {
	t.Parallel()

	ex := newExtractor(extract.WithRules(stageRule{}))
	names := ex.Rules()
	if names[len(names)-1] != "stage" {
		t.Errorf("rules = %v, want custom rule last", names)
	}
	if got := ex.Extract("B-ALL standard risk").Admission.Stage; got != "Standard risk" {
		t.Errorf("stage = %q", got)
	}
}

func TestStructure(t *testing.T) {
	t.Parallel()

	var s extract.Strategy = newExtractor()
	rec, err := s.Structure(context.Background(), ballScenario)
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if rec.Metadata.ConfidenceScore != 1 {
		t.Errorf("confidence = %v", rec.Metadata.ConfidenceScore)
	}
}

func TestExtract_Concurrent(t *testing.T) {
	t.Parallel()

	ex := newExtractor()
	want := ex.Extract(ballScenario)
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			if got := ex.Extract(ballScenario); !reflect.DeepEqual(got, want) {
				t.Error("concurrent extraction differs")
			}
		})
	}
	wg.Wait()
}

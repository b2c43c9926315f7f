package llmextract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/nv-mldev/emr/internal/extract"
	"github.com/nv-mldev/emr/pkg/clinical"
)

// text is a reply value the model may send as a string, a number or null.
type text string

// UnmarshalJSON implements [json.Unmarshaler].
func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(s)
	case len(data) > 0 && (data[0] == '-' || data[0] >= '0' && data[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*t = text(n.String())
	default:
		return errNotText
	}
	return nil
}

// value returns the trimmed text, treating placeholder answers as empty.
func (t text) value() string {
	s := strings.TrimSpace(string(t))
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "not specified", "unknown":
		return ""
	}
	return s
}

// reply mirrors the record's JSON shape with lenient value types.
type reply struct {
	Patient struct {
		CRNo      text `json:"cr_no"`
		Name      text `json:"name"`
		Age       text `json:"age"`
		Sex       text `json:"sex"`
		Attending text `json:"attending_oncologist"`
	} `json:"patient_details"`

	Admission struct {
		Diagnosis text `json:"diagnosis"`
		Histology text `json:"histology"`
		Stage     text `json:"stage"`
		DOA       text `json:"doa"`
		DOD       text `json:"dod"`
		Reason    text `json:"reason_for_admission"`
	} `json:"admission_details"`

	History struct {
		ChiefComplaints text `json:"chief_complaints"`
	} `json:"history"`

	Examination struct {
		GeneralCondition text `json:"general_condition"`
		Vitals           struct {
			HR   text `json:"hr"`
			BP   text `json:"bp"`
			Temp text `json:"temp"`
			RR   text `json:"rr"`
		} `json:"vitals"`
		Systems struct {
			Respiratory      text `json:"respiratory_system"`
			Cardiovascular   text `json:"cardiovascular_system"`
			Gastrointestinal text `json:"gastrointestinal_system"`
			Neurological     text `json:"neurological_system"`
			Other            text `json:"other_systems"`
		} `json:"systems"`
	} `json:"clinical_examination"`

	Investigations struct {
		LabResults []struct {
			Date        text `json:"date"`
			Hb          text `json:"hb"`
			WBC         text `json:"wbc"`
			Platelet    text `json:"platelet"`
			Neutrophils text `json:"dc_neutrophils"`
			Lymphocytes text `json:"lymphocytes"`
		} `json:"lab_results"`
		Other struct {
			BloodCulture  text `json:"blood_culture"`
			Procalcitonin text `json:"procalcitonin"`
			CXR           text `json:"cxr"`
			UrineCulture  text `json:"urine_culture"`
			Other         text `json:"other"`
		} `json:"other_investigations"`
	} `json:"investigations"`

	Treatment struct {
		Medications []struct {
			Name      text `json:"name"`
			Dose      text `json:"dose"`
			Frequency text `json:"frequency"`
			Duration  text `json:"duration"`
		} `json:"medications"`
	} `json:"treatment"`

	CourseInHospital text `json:"course_in_hospital"`
}

// set overwrites *dst with v when v holds a value.
func set(dst *string, v text) {
	if s := v.value(); s != "" {
		*dst = s
	}
}

// mergeInto writes every field the model filled into rec. Lab snapshots
// without a date get labDate. Lab and medication lists replace the baseline
// lists only when the model returned at least one usable entry.
func (r *reply) mergeInto(rec *clinical.Record, labDate string) {
	p := &rec.Patient
	set(&p.CRNo, r.Patient.CRNo)
	set(&p.Name, r.Patient.Name)
	set(&p.Age, r.Patient.Age)
	if sex := extract.NormaliseSex(r.Patient.Sex.value()); sex != clinical.SexUnknown {
		p.Sex = sex
	}
	if name := r.Patient.Attending.value(); name != "" {
		p.AttendingOncologist = doctorName(name)
	}

	a := &rec.Admission
	set(&a.Diagnosis, r.Admission.Diagnosis)
	set(&a.Histology, r.Admission.Histology)
	set(&a.Stage, r.Admission.Stage)
	set(&a.DOA, r.Admission.DOA)
	set(&a.DOD, r.Admission.DOD)
	set(&a.ReasonForAdmission, r.Admission.Reason)

	set(&rec.History.ChiefComplaints, r.History.ChiefComplaints)

	e := &rec.Examination
	set(&e.GeneralCondition, r.Examination.GeneralCondition)
	set(&e.Vitals.HR, r.Examination.Vitals.HR)
	set(&e.Vitals.BP, r.Examination.Vitals.BP)
	set(&e.Vitals.Temp, r.Examination.Vitals.Temp)
	set(&e.Vitals.RR, r.Examination.Vitals.RR)
	set(&e.Systems.Respiratory, r.Examination.Systems.Respiratory)
	set(&e.Systems.Cardiovascular, r.Examination.Systems.Cardiovascular)
	set(&e.Systems.Gastrointestinal, r.Examination.Systems.Gastrointestinal)
	set(&e.Systems.Neurological, r.Examination.Systems.Neurological)
	set(&e.Systems.Other, r.Examination.Systems.Other)

	o := &rec.Investigations.Other
	set(&o.BloodCulture, r.Investigations.Other.BloodCulture)
	set(&o.Procalcitonin, r.Investigations.Other.Procalcitonin)
	set(&o.CXR, r.Investigations.Other.CXR)
	set(&o.UrineCulture, r.Investigations.Other.UrineCulture)
	set(&o.Other, r.Investigations.Other.Other)

	var labs []clinical.LabResult
	for _, l := range r.Investigations.LabResults {
		lab := clinical.LabResult{
			Date:        l.Date.value(),
			Hb:          l.Hb.value(),
			WBC:         l.WBC.value(),
			Platelet:    l.Platelet.value(),
			Neutrophils: l.Neutrophils.value(),
			Lymphocytes: l.Lymphocytes.value(),
		}
		if !lab.HasValues() {
			continue
		}
		if lab.Date == "" {
			lab.Date = labDate
		}
		labs = append(labs, lab)
	}
	if len(labs) > 0 {
		rec.Investigations.LabResults = labs
	}

	var meds []clinical.Medication
	seen := make(map[string]bool)
	for _, m := range r.Treatment.Medications {
		name := m.Name.value()
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		meds = append(meds, clinical.Medication{
			Name:      name,
			Dose:      m.Dose.value(),
			Frequency: m.Frequency.value(),
			Duration:  m.Duration.value(),
		})
	}
	if len(meds) > 0 {
		rec.Treatment.Medications = meds
	}

	set(&rec.CourseInHospital, r.CourseInHospital)
}

// doctorName normalises a doctor's name to "Dr. <Name>".
func doctorName(s string) string {
	for _, prefix := range []string{"dr.", "dr ", "doctor "} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return "Dr. " + s
}

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/nv-mldev/emr/pkg/clinical"
)

// ruleWidth is the width of the "=" banner lines.
const ruleWidth = 78

// Placeholders shown for fields that were not captured.
const (
	notSpecified  = "Not specified"
	notAvailable  = "Not available"
	notRecorded   = "Not recorded"
	notDocumented = "Not documented"
	defaultUnit   = "FC"
	unknown       = "Unknown"
)

// FormatSummary renders rec as the plain-text discharge summary. A nil rec
// yields an empty string.
//
// The formatter is pure and safe for concurrent use.
func FormatSummary(rec *clinical.Record) string {
	if rec == nil {
		return ""
	}

	var sb strings.Builder

	writeHeader(&sb, rec)
	writePatient(&sb, rec.Patient)
	writeAdmission(&sb, rec.Admission)
	writeHistory(&sb, rec.History)
	writeExamination(&sb, rec.Examination)
	writeInvestigations(&sb, rec.Investigations)
	writeTreatment(&sb, rec.Treatment)

	if course := strings.TrimSpace(rec.CourseInHospital); course != "" {
		sb.WriteString("\nCOURSE IN HOSPITAL:\n")
		sb.WriteString(course)
		sb.WriteString("\n")
	}

	if len(rec.Doctors) > 0 {
		sb.WriteString("\nMEDICAL TEAM:\n")
		for _, d := range rec.Doctors {
			fmt.Fprintf(&sb, "• %s\n", d)
		}
	}

	if len(rec.EmergencyContacts) > 0 {
		sb.WriteString("\nEMERGENCY CONTACTS:\n")
		for _, c := range rec.EmergencyContacts {
			fmt.Fprintf(&sb, "• %s: %s\n", c.Label, or(c.Number, notAvailable))
		}
	}

	writeFooter(&sb, rec.Metadata)

	return strings.TrimSpace(sb.String())
}

// ── Sections ─────────────────────────────────────────────────────────────────

func writeHeader(sb *strings.Builder, rec *clinical.Record) {
	rule := strings.Repeat("=", ruleWidth)
	dept := strings.ToUpper(strings.TrimSpace(rec.Department))

	sb.WriteString(rule)
	sb.WriteString("\n")
	if dept != "" {
		sb.WriteString(centre(dept, ruleWidth))
		sb.WriteString("\n")
	}
	sb.WriteString(rule)
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Division Head: %s\n", or(rec.DivisionHead, notSpecified))
	fmt.Fprintf(sb, "Service Head: %s\n", or(rec.ServiceHead, notSpecified))
	sb.WriteString("\nDISCHARGE SUMMARY\n")
}

func writePatient(sb *strings.Builder, p clinical.Patient) {
	age := notSpecified
	if p.Age != "" {
		age = p.Age + " years"
	}

	sb.WriteString("\nPATIENT DETAILS:\n")
	bullet(sb, "CR No", or(p.CRNo, notAvailable))
	bullet(sb, "Name", or(p.Name, notSpecified))
	bullet(sb, "Age", age)
	bullet(sb, "Sex", or(string(p.Sex), notSpecified))
	bullet(sb, "Unit", or(p.Unit, defaultUnit))
	bullet(sb, "Attending Oncologist", or(p.AttendingOncologist, notSpecified))
}

func writeAdmission(sb *strings.Builder, a clinical.Admission) {
	sb.WriteString("\nADMISSION DETAILS:\n")
	bullet(sb, "Diagnosis", or(a.Diagnosis, notSpecified))
	bullet(sb, "Histology", or(a.Histology, clinical.DefaultHistology))
	bullet(sb, "Stage", or(a.Stage, notSpecified))
	bullet(sb, "Date of Admission", or(a.DOA, notSpecified))
	bullet(sb, "Date of Discharge", or(a.DOD, notSpecified))
	bullet(sb, "Reason for Admission", or(a.ReasonForAdmission, notSpecified))
}

func writeHistory(sb *strings.Builder, h clinical.History) {
	sb.WriteString("\nHISTORY:\n")
	bullet(sb, "Chief Complaints", or(h.ChiefComplaints, notSpecified))
	bullet(sb, "Presenting History", or(h.PresentingHistory, notSpecified))
}

func writeExamination(sb *strings.Builder, e clinical.Examination) {
	sb.WriteString("\nCLINICAL EXAMINATION:\n")
	bullet(sb, "General Condition", or(e.GeneralCondition, notDocumented))

	sb.WriteString("\nVitals:\n")
	item(sb, "Heart Rate", or(e.Vitals.HR, notRecorded))
	item(sb, "Blood Pressure", or(e.Vitals.BP, notRecorded))
	item(sb, "Temperature", or(e.Vitals.Temp, notRecorded))
	item(sb, "Respiratory Rate", or(e.Vitals.RR, notRecorded))

	wnl := clinical.DefaultSystemFinding
	sb.WriteString("\nSystems Examination:\n")
	item(sb, "Respiratory System", or(e.Systems.Respiratory, wnl))
	item(sb, "Cardiovascular System", or(e.Systems.Cardiovascular, wnl))
	item(sb, "Gastrointestinal System", or(e.Systems.Gastrointestinal, wnl))
	item(sb, "Neurological System", or(e.Systems.Neurological, wnl))
	item(sb, "Other Systems", or(e.Systems.Other, wnl))
}

func writeInvestigations(sb *strings.Builder, inv clinical.Investigations) {
	sb.WriteString("\nINVESTIGATIONS:\n")

	if len(inv.LabResults) == 0 {
		sb.WriteString("Laboratory Results: No specific lab values documented\n")
	} else {
		sb.WriteString("Laboratory Results:\n")
		for _, lab := range inv.LabResults {
			fmt.Fprintf(sb, "  %s:\n", or(lab.Date, "Date not specified"))
			labValue(sb, "Hb", lab.Hb, "")
			labValue(sb, "WBC", lab.WBC, "")
			labValue(sb, "Platelet", lab.Platelet, "")
			labValue(sb, "Neutrophils", lab.Neutrophils, "%")
			labValue(sb, "Lymphocytes", lab.Lymphocytes, "%")
		}
	}

	o := inv.Other
	if o.IsEmpty() {
		return
	}
	sb.WriteString("\nOther Investigations:\n")
	for _, f := range []struct{ label, value string }{
		{"Blood Culture", o.BloodCulture},
		{"Procalcitonin", o.Procalcitonin},
		{"CXR", o.CXR},
		{"Urine Culture", o.UrineCulture},
		{"Other", o.Other},
	} {
		if f.value != "" {
			item(sb, f.label, f.value)
		}
	}
}

func writeTreatment(sb *strings.Builder, t clinical.Treatment) {
	sb.WriteString("\nTREATMENT:\n")

	if len(t.Medications) == 0 {
		sb.WriteString("Medications: Not specified\n")
		return
	}

	sb.WriteString("Medications:\n")
	for _, m := range t.Medications {
		fmt.Fprintf(sb, "  • %s", or(m.Name, "Unknown medication"))
		if m.Dose != "" {
			fmt.Fprintf(sb, " - %s", m.Dose)
		}
		if m.Frequency != "" {
			fmt.Fprintf(sb, " (%s)", m.Frequency)
		}
		if m.Duration != "" {
			fmt.Fprintf(sb, " for %s", m.Duration)
		}
		sb.WriteString("\n")
	}
}

func writeFooter(sb *strings.Builder, m clinical.Metadata) {
	generated := unknown
	if !m.GeneratedAt.IsZero() {
		generated = m.GeneratedAt.Format(time.RFC3339)
	}

	rule := strings.Repeat("=", ruleWidth)
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Report generated: %s\n", generated)
	fmt.Fprintf(sb, "Processing model: %s\n", or(m.ProcessingModel, unknown))
	fmt.Fprintf(sb, "Confidence score: %.1f%%\n", m.ConfidenceScore*100)
	sb.WriteString(rule)
	sb.WriteString("\n")
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// or returns s, or placeholder when s is blank.
func or(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func bullet(sb *strings.Builder, label, value string) {
	fmt.Fprintf(sb, "• %s: %s\n", label, value)
}

func item(sb *strings.Builder, label, value string) {
	fmt.Fprintf(sb, "  - %s: %s\n", label, value)
}

func labValue(sb *strings.Builder, label, value, suffix string) {
	if value != "" {
		fmt.Fprintf(sb, "    - %s: %s%s\n", label, value, suffix)
	}
}

// centre pads s with leading spaces so that it is centred in width columns.
func centre(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}

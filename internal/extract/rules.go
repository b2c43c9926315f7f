package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nv-mldev/emr/pkg/clinical"
)

// presentingHistoryLimit is the number of runes of the transcript kept as
// the presenting history.
const presentingHistoryLimit = 200

// LabDateLayout is the DD/MM/YYYY layout used for lab snapshot dates.
const LabDateLayout = "02/01/2006"

// ─────────────────────────────────────────────────────────────────────────────
// Demographics
// ─────────────────────────────────────────────────────────────────────────────

var (
	ageRe      = regexp.MustCompile(`(?i)\b(?:age|aged)\s*:?\s*(\d+)`)
	ageYearsRe = regexp.MustCompile(`(?i)\b(\d+)\s*[- ]?(?:years?|yrs?|y)[- ]?old\b`)
	sexRe      = regexp.MustCompile(`(?i)\b(?:sex|gender)\s*:?\s*(male|female|m|f)\b`)
	sexWordRe  = regexp.MustCompile(`(?i)\b(female|male|girl|boy)\b`)
)

type demographicsRule struct{}

func (demographicsRule) Name() string { return "demographics" }

func (demographicsRule) Apply(text string, rec *clinical.Record) {
	if m := firstSubmatch(text, ageRe, ageYearsRe); m != "" {
		rec.Patient.Age = m
	}
	if m := firstSubmatch(text, sexRe, sexWordRe); m != "" {
		rec.Patient.Sex = NormaliseSex(m)
	}
}

// NormaliseSex maps a sex cue ("F", "female", "girl", ...) to M or F.
// Unrecognised cues map to [clinical.SexUnknown].
func NormaliseSex(s string) clinical.Sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f", "female", "girl":
		return clinical.SexFemale
	case "m", "male", "boy":
		return clinical.SexMale
	}
	return clinical.SexUnknown
}

// ─────────────────────────────────────────────────────────────────────────────
// Diagnosis
// ─────────────────────────────────────────────────────────────────────────────

// diagnosisFamilies are tried in order; the first family that matches wins.
// The B-ALL family needs a hyphen or an upper-case ALL so that "ball" and
// "b all" do not match.
var diagnosisFamilies = []*regexp.Regexp{
	regexp.MustCompile(`\b(?i:b)(?:-(?i:all)|\s?ALL)\b[^.]*`),
	regexp.MustCompile(`(?i)\bleuka?emia[^.]*`),
	regexp.MustCompile(`(?i)\bdiagnosed with [^.]+`),
	regexp.MustCompile(`(?i)\bcondition[:\s]+[^.]+`),
}

type diagnosisRule struct{}

func (diagnosisRule) Name() string { return "diagnosis" }

func (diagnosisRule) Apply(text string, rec *clinical.Record) {
	for _, re := range diagnosisFamilies {
		if span := strings.TrimSpace(re.FindString(text)); span != "" {
			rec.Admission.Diagnosis = span
			return
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Vitals
// ─────────────────────────────────────────────────────────────────────────────

var (
	tempRe = regexp.MustCompile(`(?i)\b(?:temperature|temp|fever)[:\s]*(\d+\.?\d*)(?:\s*(?:°|degrees?)?\s*(fahrenheit|celsius|centigrade|f|c)\b)?`)
	hrRe   = regexp.MustCompile(`(?i)\b(?:heart rate|hr|pulse)[:\s]*(\d+)(?:/min)?`)
	bpRe   = regexp.MustCompile(`(?i)\b(?:blood pressure|bp)[:\s]*(\d+/\d+)`)
	rrRe   = regexp.MustCompile(`(?i)\b(?:respiratory rate|rr)[:\s]*(\d+)`)
)

type vitalsRule struct{}

func (vitalsRule) Name() string { return "vitals" }

func (vitalsRule) Apply(text string, rec *clinical.Record) {
	v := &rec.Examination.Vitals

	if m := tempRe.FindStringSubmatch(text); m != nil {
		unit := "F"
		if m[2] != "" {
			unit = strings.ToUpper(m[2][:1])
		}
		v.Temp = fmt.Sprintf("%s°%s", m[1], unit)
		rec.Examination.GeneralCondition = fmt.Sprintf("Febrile (%s)", v.Temp)
	}
	if m := hrRe.FindStringSubmatch(text); m != nil {
		v.HR = m[1] + "/min"
	}
	if m := bpRe.FindStringSubmatch(text); m != nil {
		v.BP = m[1] + "mmhg"
	}
	if m := rrRe.FindStringSubmatch(text); m != nil {
		v.RR = m[1] + "/min"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Systems review
// ─────────────────────────────────────────────────────────────────────────────

// respiratoryCues are checked independently; every cue present contributes
// its finding to the respiratory system description.
var respiratoryCues = []struct {
	re      *regexp.Regexp
	finding string
}{
	{regexp.MustCompile(`(?i)\bcrepitations?\b`), "Crepitations present"},
	{regexp.MustCompile(`(?i)\bno retractions?\b`), "No retractions"},
}

type systemsRule struct{}

func (systemsRule) Name() string { return "systems" }

func (systemsRule) Apply(text string, rec *clinical.Record) {
	var findings []string
	for _, c := range respiratoryCues {
		if c.re.MatchString(text) {
			findings = append(findings, c.finding)
		}
	}
	if len(findings) > 0 {
		rec.Examination.Systems.Respiratory = strings.Join(findings, ". ")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Labs
// ─────────────────────────────────────────────────────────────────────────────

var (
	hbRe          = regexp.MustCompile(`(?i)\b(?:hb|ha?emoglobin)[:\s]*(\d+\.?\d*)`)
	wbcRe         = regexp.MustCompile(`(?i)\b(?:wbc|white blood cells?(?: count)?|tlc)[:\s]*(\d+\.?\d*)`)
	plateletRe    = regexp.MustCompile(`(?i)\bplatelets?(?: count)?[:\s]*(\d+\.?\d*)`)
	neutrophilsRe = regexp.MustCompile(`(?i)\b(?:neutrophils?|anc)[:\s]*(\d+\.?\d*)`)
	lymphocyteRe  = regexp.MustCompile(`(?i)\blymphocytes?[:\s]*(\d+\.?\d*)`)
)

type labsRule struct {
	now func() time.Time
}

func (labsRule) Name() string { return "labs" }

func (r labsRule) Apply(text string, rec *clinical.Record) {
	lab := clinical.LabResult{
		Hb:          firstSubmatch(text, hbRe),
		WBC:         firstSubmatch(text, wbcRe),
		Platelet:    firstSubmatch(text, plateletRe),
		Neutrophils: firstSubmatch(text, neutrophilsRe),
		Lymphocytes: firstSubmatch(text, lymphocyteRe),
	}
	if !lab.HasValues() {
		return
	}
	lab.Date = r.now().Format(LabDateLayout)
	rec.Investigations.LabResults = append(rec.Investigations.LabResults, lab)
}

// ─────────────────────────────────────────────────────────────────────────────
// Medications
// ─────────────────────────────────────────────────────────────────────────────

// dosageForms are the prefixes that mark the following word as a drug.
// Capsules need the dot, since a bare "CAP" is community-acquired pneumonia.
const dosageForms = `(?:(?:inj|syp|tab)\.?|cap\.)\s+`

type medicationsRule struct {
	re *regexp.Regexp
}

// newMedicationsRule compiles the medication pattern: a dosage-form prefix
// followed by a word, or a vocabulary name on its own. The span runs to the
// next comma or full stop.
func newMedicationsRule(vocabulary []string) medicationsRule {
	quoted := make([]string, 0, len(vocabulary))
	for _, v := range vocabulary {
		if v = strings.TrimSpace(v); v != "" {
			quoted = append(quoted, regexp.QuoteMeta(v))
		}
	}

	pattern := `(?i)\b` + dosageForms + `[a-z][\w-]*[^,.]*`
	if len(quoted) > 0 {
		names := strings.Join(quoted, "|")
		pattern = `(?i)\b(?:` + dosageForms + `(?:` + names + `|[a-z][\w-]*)|(?:` + names + `)\b)[^,.]*`
	}
	return medicationsRule{re: regexp.MustCompile(pattern)}
}

func (medicationsRule) Name() string { return "medications" }

func (r medicationsRule) Apply(text string, rec *clinical.Record) {
	seen := make(map[string]bool)
	for _, span := range r.re.FindAllString(text, -1) {
		name := strings.TrimSpace(span)
		if utf8.RuneCountInString(name) <= 3 || seen[name] {
			continue
		}
		seen[name] = true
		rec.Treatment.Medications = append(rec.Treatment.Medications, clinical.Medication{Name: name})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Attending clinician
// ─────────────────────────────────────────────────────────────────────────────

// attendingRe matches the title case-insensitively but requires the name
// itself to be capitalised, so the span stops at the first lower-case word.
var attendingRe = regexp.MustCompile(`\b(?:(?i:dr)\.?\s+|(?i:doctor)\s+)([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]*\.?)*)`)

type attendingRule struct{}

func (attendingRule) Name() string { return "attending" }

func (attendingRule) Apply(text string, rec *clinical.Record) {
	m := attendingRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if name := strings.TrimRight(m[1], ". "); name != "" {
		rec.Patient.AttendingOncologist = "Dr. " + name
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// complaintFamilies are tried in order; the first match wins. Families with
// a capture group contribute the group, the others the whole span.
var complaintFamilies = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:chief complaints?|complaints?|cc)[:\s]+([^.]+)`),
	regexp.MustCompile(`(?i)\b(?:presenting with|presents with|admitted with)[:\s]+([^.]+)`),
	regexp.MustCompile(`(?i)\bfever[^.]*cough[^.]*|\bcough[^.]*fever[^.]*`),
}

type historyRule struct{}

func (historyRule) Name() string { return "history" }

func (historyRule) Apply(text string, rec *clinical.Record) {
	for _, re := range complaintFamilies {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		complaint := m[0]
		if len(m) > 1 {
			complaint = m[1]
		}
		rec.History.ChiefComplaints = strings.TrimSpace(complaint)
		break
	}
	rec.History.PresentingHistory = truncateRunes(strings.TrimSpace(text), presentingHistoryLimit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// firstSubmatch returns the first capture group of the first pattern that
// matches text, or "".
func firstSubmatch(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// truncateRunes returns s cut to at most limit runes, with "..." appended
// when anything was cut.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

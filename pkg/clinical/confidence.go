package clinical

// confidenceIndicators is the number of facts [Confidence] looks for.
const confidenceIndicators = 6

// Confidence returns the fraction of key facts that were captured in r, in
// the range [0, 1]. The facts are age, sex, diagnosis, temperature, at least
// one lab snapshot and at least one medication.
//
// Confidence is a pure function of the record, so it can be recomputed at any
// time and always agrees with Metadata.ConfidenceScore of a finished record.
func Confidence(r *Record) float64 {
	if r == nil {
		return 0
	}
	found := 0
	for _, ok := range [confidenceIndicators]bool{
		r.Patient.Age != "",
		r.Patient.Sex != SexUnknown,
		r.Admission.Diagnosis != "",
		r.Examination.Vitals.Temp != "",
		len(r.Investigations.LabResults) > 0,
		len(r.Treatment.Medications) > 0,
	} {
		if ok {
			found++
		}
	}
	return float64(found) / confidenceIndicators
}

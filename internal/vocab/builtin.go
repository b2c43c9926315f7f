package vocab

import "context"

// Builtin returns the built-in paediatric oncology vocabulary.
func Builtin() []Term {
	drugs := []struct {
		name    string
		aliases []string
	}{
		{"Cefoperazone", []string{"Magnex"}},
		{"Oseltamivir", []string{"Tamiflu"}},
		{"Clarithromycin", nil},
		{"Paracetamol", []string{"Acetaminophen"}},
		{"Piperacillin-Tazobactam", []string{"Pip-Taz"}},
		{"Meropenem", nil},
		{"Vancomycin", nil},
		{"Amikacin", nil},
		{"Cotrimoxazole", []string{"Septran"}},
		{"Fluconazole", nil},
		{"Ondansetron", nil},
		{"Filgrastim", nil},
		{"Vincristine", nil},
		{"Methotrexate", nil},
		{"Mercaptopurine", nil},
		{"Cytarabine", nil},
		{"Daunorubicin", nil},
		{"Asparaginase", nil},
		{"Dexamethasone", nil},
		{"Prednisolone", nil},
	}

	terms := make([]Term, 0, len(drugs)+8)
	for _, d := range drugs {
		terms = append(terms, Term{Name: d.name, Kind: KindDrug, Aliases: d.aliases})
	}
	terms = append(terms,
		Term{Name: "Leukemia", Kind: KindDiagnosis, Aliases: []string{"Leukaemia"}},
		Term{Name: "Febrile neutropenia", Kind: KindDiagnosis},
		Term{Name: "Pneumonia", Kind: KindDiagnosis},
		Term{Name: "Hemoglobin", Kind: KindLab, Aliases: []string{"Haemoglobin"}},
		Term{Name: "Procalcitonin", Kind: KindLab},
		Term{Name: "Neutrophils", Kind: KindLab},
		Term{Name: "Lymphocytes", Kind: KindLab},
		Term{Name: "Blood culture", Kind: KindProcedure},
	)
	return terms
}

// BuiltinNames returns the names and aliases of the built-in terms of kind
// (all kinds when empty), ordered as [Names] orders them.
func BuiltinNames(kind Kind) []string {
	ctx := context.Background()
	s := NewMemStore()
	if _, err := s.BulkImport(ctx, Builtin()); err != nil {
		return nil
	}
	names, _ := Names(ctx, s, kind)
	return names
}

// Package vocab manages the curated clinical vocabulary used by the
// extractor and the transcript corrector.
//
// The vocabulary lists drug, diagnosis, lab and procedure names the service
// expects to hear in dictation. The extractor uses drug names to recognise
// medications; the phonetic corrector uses every term (and its aliases) to
// repair names that speech recognition commonly mishears.
//
// Terms come from the built-in list ([Builtin]) and optionally from a YAML
// file ([LoadFile]) merged on top of it.
//
// All store operations are safe for concurrent use.
package vocab

// Term is one vocabulary entry.
type Term struct {
	// ID is a unique identifier. Auto-generated if empty during import.
	ID string `yaml:"id" json:"id"`

	// Name is the canonical spelling used in records and corrections.
	Name string `yaml:"name" json:"name"`

	// Kind classifies the term.
	Kind Kind `yaml:"kind" json:"kind"`

	// Aliases are alternative spellings or brand names that should be
	// recognised as this term.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Kind classifies a vocabulary term.
type Kind string

const (
	// KindDrug is a medication name.
	KindDrug Kind = "drug"

	// KindDiagnosis is a disease or condition name.
	KindDiagnosis Kind = "diagnosis"

	// KindLab is a laboratory test name.
	KindLab Kind = "lab"

	// KindProcedure is an investigation or procedure name.
	KindProcedure Kind = "procedure"
)

// IsValid reports whether k is a recognised kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindDrug, KindDiagnosis, KindLab, KindProcedure:
		return true
	}
	return false
}

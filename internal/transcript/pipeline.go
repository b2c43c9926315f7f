// Package transcript defines the correction pipeline that repairs misheard
// clinical vocabulary in speech-to-text output before extraction.
//
// Dictated case notes are dense with drug, diagnosis and lab names that
// general-purpose STT models rarely spell correctly ("cefo perazone",
// "oseltamavir"). A misspelled drug is invisible to the extractor, so the
// [Pipeline] repairs them in two optional stages:
//
//  1. Phonetic matching ([PhoneticMatcher]): fast alignment of words and
//     short phrases to vocabulary terms by pronunciation and spelling
//     similarity. Runs in-process with no network calls.
//
//  2. LLM-assisted correction: a language model reviews the phonetically
//     corrected text against the vocabulary. Only substitutions the model
//     declares are kept.
//
// Each [Correction] records which stage produced the substitution and its
// confidence, so callers can audit or display the changes.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/nv-mldev/emr/pkg/provider/stt"
)

// Correction methods.
const (
	MethodPhonetic = "phonetic"
	MethodLLM      = "llm"
)

// Correction captures a single substitution made by the pipeline.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string `json:"original"`

	// Corrected is the vocabulary term selected by the pipeline.
	Corrected string `json:"corrected"`

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	Confidence float64 `json:"confidence"`

	// Method is [MethodPhonetic] or [MethodLLM].
	Method string `json:"method"`
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
type CorrectedTranscript struct {
	// Original is the transcript as received from the STT provider.
	Original stt.Transcript

	// Corrected is the full transcript text with all substitutions applied.
	Corrected string

	// Corrections is the ordered list of substitutions applied to produce
	// Corrected. An empty (non-nil) slice means nothing was changed.
	Corrections []Correction
}

// Pipeline applies multi-stage corrections to a raw [stt.Transcript].
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct repairs misheard terms in transcript using vocabulary, the
	// canonical drug, diagnosis and lab names the pipeline should recognise.
	//
	// Returns a non-nil *CorrectedTranscript on success. When nothing needs
	// correcting, Corrected equals transcript.Text and Corrections is an empty
	// (non-nil) slice.
	Correct(ctx context.Context, transcript stt.Transcript, vocabulary []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a single word or short phrase to a vocabulary term
// based on pronunciation similarity. No network calls, no LLM round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match finds the term from vocabulary most phonetically similar to word.
	//
	// When matched is false, corrected must equal word unchanged and
	// confidence must be 0.
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

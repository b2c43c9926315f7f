// Package phonetic implements the [transcript.PhoneticMatcher] interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word in the input and for each vocabulary term. If any code from
//     the input overlaps with any code from a term, the term becomes a
//     phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest Jaro-Winkler similarity (case-insensitive) is selected, provided
//     its score reaches the phonetic threshold. When no phonetic candidate is
//     found, a secondary pass tests pure Jaro-Winkler similarity against all
//     terms using the higher fuzzy threshold.
//
// A phrase is only compared with terms of the same word count, with one
// exception: a two-word phrase may match a one-word term when the words
// concatenate to roughly the term ("cefo perazone" for "Cefoperazone").
// Short words and words containing digits never match.
package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
	defaultMinLength         = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinLength sets the minimum number of letters a single word needs
// before it is considered for correction. Default: 4.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		m.minLength = n
	}
}

// Matcher is a phonetic vocabulary matcher. It implements
// [transcript.PhoneticMatcher]. The Matcher is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// preparedTerm caches the lower-cased tokens and phonetic codes of one term.
type preparedTerm struct {
	name   string
	lower  string
	tokens []string
	concat string
	codes  map[string]struct{}
}

// Entities is a vocabulary prepared for repeated matching. Build it once per
// transcript with [PrepareEntities] and pass it to [Matcher.MatchPrepared].
type Entities struct {
	terms    []preparedTerm
	maxWords int
}

// PrepareEntities computes the phonetic codes of every non-empty term.
func PrepareEntities(entities []string) *Entities {
	es := &Entities{terms: make([]preparedTerm, 0, len(entities))}
	for _, e := range entities {
		lower := strings.ToLower(strings.TrimSpace(e))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		es.terms = append(es.terms, preparedTerm{
			name:   strings.TrimSpace(e),
			lower:  lower,
			tokens: tokens,
			concat: strings.Join(tokens, ""),
			codes:  codesForTokens(tokens),
		})
		es.maxWords = max(es.maxWords, len(tokens))
	}
	return es
}

// MaxWords returns the largest word count of any prepared term.
func (es *Entities) MaxWords() int {
	return es.maxWords
}

// Len returns the number of prepared terms.
func (es *Entities) Len() int {
	return len(es.terms)
}

// Match attempts to find the term from entities that is most phonetically
// similar to word. word may be a single word or a space-separated phrase.
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, entities []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(word, PrepareEntities(entities))
}

// MatchPrepared is [Matcher.Match] against a vocabulary prepared with
// [PrepareEntities].
func (m *Matcher) MatchPrepared(word string, es *Entities) (corrected string, confidence float64, matched bool) {
	if es == nil || len(es.terms) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	if !m.eligible(wordTokens) {
		return word, 0, false
	}
	inputCodes := codesForTokens(wordTokens)
	inputConcat := strings.Join(wordTokens, "")

	type candidate struct {
		entity   string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, t := range es.terms {
		var score float64
		switch {
		case len(t.tokens) == len(wordTokens):
			score = alignedJWScore(wordTokens, t.tokens, wordLower, t.lower)
		case len(wordTokens) == 2 && len(t.tokens) == 1 && splitWordOf(inputConcat, t.concat):
			score = matchr.JaroWinkler(inputConcat, t.concat, false)
		default:
			continue
		}

		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{entity: t.name, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{entity: t.name, score: score}
		}
	}

	if best.entity != "" {
		return best.entity, best.score, true
	}
	return word, 0, false
}

// eligible reports whether every token is a plain word long enough to be a
// vocabulary term.
func (m *Matcher) eligible(tokens []string) bool {
	for _, tok := range tokens {
		if strings.ContainsFunc(tok, unicode.IsDigit) {
			return false
		}
	}
	if len(tokens) == 1 && utf8.RuneCountInString(tokens[0]) < m.minLength {
		return false
	}
	return true
}

// splitWordOf reports whether a two-word input concatenated to concat could
// be term split apart: same first letter and nearly the same length.
func splitWordOf(concat, term string) bool {
	if concat == "" || term == "" || concat[0] != term[0] {
		return false
	}
	d := len(concat) - len(term)
	return d >= -2 && d <= 2
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// alignedJWScore scores two phrases with the same word count. It takes the
// better of the full-string similarity and the mean similarity of the
// position-aligned words, so one badly misheard word cannot be hidden by a
// perfect match elsewhere in the phrase.
func alignedJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)
	if len(inputTokens) < 2 {
		return score
	}
	var sum float64
	for i := range inputTokens {
		sum += matchr.JaroWinkler(inputTokens[i], termTokens[i], false)
	}
	return max(score, sum/float64(len(inputTokens)))
}

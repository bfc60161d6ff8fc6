// Package phonetic matches misheard words against a teacher's glossary using
// Double Metaphone codes and Jaro-Winkler similarity.
//
// Matching has two stages:
//
//  1. Candidate filtering: a glossary term is a phonetic candidate when any
//     Double Metaphone code of the input shares a code with the term.
//  2. Ranking: among candidates, the term with the highest Jaro-Winkler score
//     wins if it reaches the phonetic threshold. Without any phonetic
//     candidate, pure Jaro-Winkler is tried against the stricter fuzzy
//     threshold.
//
// Multi-word terms ("Pythagorean theorem") are compared on the full phrase,
// the space-stripped phrase, and the best token pair.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultMinWordLength     = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinWordLength sets the shortest input, in letters, that is considered
// for correction. Short function words ("the", "and") otherwise collide with
// glossary terms too easily. Default: 4.
func WithMinWordLength(n int) Option {
	return func(m *Matcher) {
		m.minWordLength = n
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minWordLength     int
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minWordLength:     defaultMinWordLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a glossary entry with its precomputed comparison data.
type term struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Glossary is a prepared term list. Build it once per glossary with
// [Prepare] and reuse it for every window of a transcript.
type Glossary struct {
	terms    []term
	maxWords int
}

// Prepare precomputes lower-cased tokens and Double Metaphone codes for terms.
// Blank terms are dropped.
func Prepare(terms []string) *Glossary {
	g := &Glossary{terms: make([]term, 0, len(terms))}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		g.terms = append(g.terms, term{
			original: strings.TrimSpace(t),
			lower:    lower,
			tokens:   tokens,
			codes:    codesForTokens(tokens),
		})
		g.maxWords = max(g.maxWords, len(tokens))
	}
	return g
}

// Len returns the number of terms.
func (g *Glossary) Len() int { return len(g.terms) }

// MaxWords returns the word count of the longest term.
func (g *Glossary) MaxWords() int { return g.maxWords }

// Match finds the glossary term most similar to word. It is a convenience
// wrapper around [Prepare] and [Matcher.MatchGlossary].
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	return m.MatchGlossary(word, Prepare(terms))
}

// MatchGlossary finds the term of g most similar to word, which may be a
// single word or a phrase. When matched is false, corrected equals word and
// confidence is 0.
func (m *Matcher) MatchGlossary(word string, g *Glossary) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if g == nil || len(g.terms) == 0 || letterCount(lower) < m.minWordLength {
		return word, 0, false
	}
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range g.terms {
		if t.lower == lower {
			// Already correct; report it so callers can keep the term's casing.
			return t.original, 1, true
		}
		score := bestJWScore(tokens, t.tokens, lower, t.lower)

		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.original, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.original, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			n++
		}
	}
	return n
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are excluded.
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

// bestJWScore is the highest Jaro-Winkler similarity of the full strings,
// the space-stripped strings, and any token pair.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, s)
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			score = max(score, matchr.JaroWinkler(it, tt, false))
		}
	}
	return score
}

package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/aula/internal/transcript/phonetic"
)

// Corrector rewrites glossary terms in transcribed text. It is safe for
// concurrent use.
type Corrector struct {
	matcher Matcher
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default [phonetic.Matcher].
func WithMatcher(m Matcher) Option {
	return func(c *Corrector) {
		c.matcher = m
	}
}

// NewCorrector returns a [Corrector] backed by a phonetic matcher unless
// [WithMatcher] says otherwise.
func NewCorrector(opts ...Option) *Corrector {
	c := &Corrector{matcher: phonetic.New()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct replaces spans of text that sound like a glossary term with that
// term. At each position the longest matching window wins, so multi-word
// terms take precedence over single-word partial matches. Punctuation around
// a window is preserved. An empty glossary returns text unchanged.
func (c *Corrector) Correct(text string, glossary []string) Result {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(glossary) == 0 {
		return Result{Text: text}
	}

	var (
		match    func(string) (string, float64, bool)
		maxWords int
	)
	if pm, ok := c.matcher.(*phonetic.Matcher); ok {
		g := phonetic.Prepare(glossary)
		maxWords = g.MaxWords()
		match = func(w string) (string, float64, bool) { return pm.MatchGlossary(w, g) }
	} else {
		maxWords = maxWordCount(glossary)
		match = func(w string) (string, float64, bool) { return c.matcher.Match(w, glossary) }
	}
	if maxWords == 0 {
		return Result{Text: text}
	}

	var (
		out         = make([]string, 0, len(tokens))
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n := c.replaceAt(tokens[i:min(i+maxWords, len(tokens))], match, &out, &corrections)
		i += n
	}
	if len(corrections) == 0 {
		return Result{Text: text}
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// replaceAt tries windows of decreasing size over tokens, appends the output
// tokens and returns how many input tokens were consumed.
func (c *Corrector) replaceAt(
	tokens []string,
	match func(string) (string, float64, bool),
	out *[]string,
	corrections *[]Correction,
) int {
	for n := len(tokens); n >= 1; n-- {
		prefix, core, suffix := trimPunct(strings.Join(tokens[:n], " "))
		if core == "" {
			continue
		}
		term, conf, ok := match(core)
		if !ok {
			continue
		}
		if term != core {
			*corrections = append(*corrections, Correction{
				Original:   core,
				Corrected:  term,
				Confidence: conf,
			})
		}
		*out = append(*out, prefix+term+suffix)
		return n
	}
	*out = append(*out, tokens[0])
	return 1
}

// trimPunct splits s into leading punctuation, core, and trailing
// punctuation.
func trimPunct(s string) (prefix, core, suffix string) {
	isPunct := func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }
	core = strings.TrimLeftFunc(s, isPunct)
	prefix = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, isPunct)
	suffix = core[len(trimmed):]
	return prefix, trimmed, suffix
}

func maxWordCount(terms []string) int {
	n := 0
	for _, t := range terms {
		n = max(n, len(strings.Fields(t)))
	}
	return n
}

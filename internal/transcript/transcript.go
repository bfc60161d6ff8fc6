// Package transcript aligns recognised speech with a teacher's subject
// glossary before the text is translated.
//
// Speech recognisers routinely mangle technical vocabulary ("chlorofil" for
// "chlorophyll"). A [Corrector] replaces such spans with the glossary term
// they most likely stand for, so that every student language receives the
// same, correctly spelled source term.
package transcript

// Correction records a single substitution made by a [Corrector].
type Correction struct {
	// Original is the text span as recognised.
	Original string

	// Corrected is the glossary term that replaced it.
	Corrected string

	// Confidence is the matcher's similarity score in [0, 1].
	Confidence float64
}

// Result is the output of [Corrector.Correct].
type Result struct {
	// Text is the corrected text. Equal to the input when nothing changed.
	Text string

	// Corrections lists every substitution in order of appearance.
	Corrections []Correction
}

// Changed reports whether any substitution was made.
func (r Result) Changed() bool { return len(r.Corrections) > 0 }

// Matcher finds the glossary term closest to a word or phrase.
//
// Implementations must be safe for concurrent use.
type Matcher interface {
	// Match returns the best term for word. When matched is false, corrected
	// equals word.
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}

package phonetic_test

import (
	"testing"

	"github.com/MrWong99/aula/internal/transcript/phonetic"
)

func TestMatcher_SingleWordMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	terms := []string{"photosynthesis", "chlorophyll", "mitochondria"}

	corrected, conf, matched := m.Match("chlorofil", terms)
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "chlorofil")
	}
	if corrected != "chlorophyll" {
		t.Errorf("corrected=%q, want %q", corrected, "chlorophyll")
	}
	if conf < 0.7 {
		t.Errorf("confidence=%f, want >= 0.7", conf)
	}
}

func TestMatcher_MultiWordTerm(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	terms := []string{"Pythagorean theorem", "hypotenuse"}

	corrected, _, matched := m.Match("pythagorian theorem", terms)
	if !matched || corrected != "Pythagorean theorem" {
		t.Errorf("Match = (%q, %v), want Pythagorean theorem", corrected, matched)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("breakfast", []string{"photosynthesis", "chlorophyll"})
	if matched {
		t.Fatalf("Match(breakfast) matched %q", corrected)
	}
	if corrected != "breakfast" || conf != 0 {
		t.Errorf("unmatched result = (%q, %f), want input unchanged and 0", corrected, conf)
	}
}

func TestMatcher_ExactMatchKeepsTermCasing(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("EINSTEIN", []string{"Einstein"})
	if !matched || corrected != "Einstein" || conf != 1 {
		t.Errorf("Match = (%q, %f, %v), want (Einstein, 1, true)", corrected, conf, matched)
	}
}

func TestMatcher_ShortWordsIgnored(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if _, _, matched := m.Match("the", []string{"theta"}); matched {
		t.Error("three-letter word matched a glossary term")
	}

	m = phonetic.New(phonetic.WithMinWordLength(1))
	if _, _, matched := m.Match("thet", []string{"theta"}); !matched {
		t.Error("short word not matched with lowered minimum length")
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if _, _, matched := m.Match("chlorophyll", nil); matched {
		t.Error("matched with empty glossary")
	}
	if got, _, matched := m.Match("   ", []string{"chlorophyll"}); matched || got != "   " {
		t.Errorf("blank input = (%q, %v)", got, matched)
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	g := phonetic.Prepare([]string{"  ", "Pythagorean theorem", "atom"})
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2 (blank dropped)", g.Len())
	}
	if g.MaxWords() != 2 {
		t.Errorf("MaxWords = %d, want 2", g.MaxWords())
	}
}

func TestWithOptions(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if _, _, matched := strict.Match("chlorofil", []string{"chlorophyll"}); matched {
		t.Error("strict thresholds still matched a misspelling")
	}
}

package translate

import "testing"

func TestBaseLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"en-US", "en"},
		{"pt_BR", "pt"},
		{"ES", "es"},
		{" zh-Hans ", "zh"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BaseLanguage(tt.in); got != tt.want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameLanguage(t *testing.T) {
	t.Parallel()

	if !SameLanguage("en-US", "en-GB") {
		t.Error("en-US and en-GB should match")
	}
	if SameLanguage("en-US", "es-ES") {
		t.Error("en-US and es-ES should not match")
	}
	if SameLanguage("", "") {
		t.Error("empty tags should not match")
	}
}

func TestCleanOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"  Hola  ", "Hola"},
		{`"Bonjour"`, "Bonjour"},
		{"'Ciao'", "Ciao"},
		{`"`, `"`},
		{`He said "hi"`, `He said "hi"`},
	}
	for _, tt := range tests {
		if got := CleanOutput(tt.in); got != tt.want {
			t.Errorf("CleanOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package main

import (
	"slices"
	"testing"

	"github.com/MrWong99/aula/internal/config"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, known := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, name := range known {
			if !slices.Contains(got, name) {
				t.Errorf("%s provider %q is listed as valid but not registered", kind, name)
			}
		}
	}
}

func TestOptHelpers(t *testing.T) {
	opts := map[string]any{"voice": "alloy", "speed": 1.25, "temperature": 0, "n": "x"}

	if got := optString(opts, "voice"); got != "alloy" {
		t.Errorf("optString(voice) = %q", got)
	}
	if got := optString(opts, "speed"); got != "" {
		t.Errorf("optString(speed) = %q, want empty", got)
	}
	if got := optString(nil, "voice"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
	if v, ok := optFloat(opts, "speed"); !ok || v != 1.25 {
		t.Errorf("optFloat(speed) = %v, %v", v, ok)
	}
	if v, ok := optFloat(opts, "temperature"); !ok || v != 0 {
		t.Errorf("optFloat(temperature) = %v, %v", v, ok)
	}
	if _, ok := optFloat(opts, "n"); ok {
		t.Error("optFloat(n) should not parse a string")
	}
}

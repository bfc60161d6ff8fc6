package local

import (
	"context"
	"errors"
	"testing"
)

func TestProviders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	text, err := STT{}.Transcribe(ctx, []byte("audio"), "en")
	if text != "" || err != nil {
		t.Errorf("STT = (%q, %v), want (\"\", nil)", text, err)
	}

	out, err := Translator{}.Translate(ctx, "Good morning", "en", "es")
	if out != "Good morning" || err != nil {
		t.Errorf("Translate = (%q, %v), want identity", out, err)
	}

	clip, err := TTS{}.Synthesize(ctx, "hola", "es")
	if clip != nil || err != nil {
		t.Errorf("TTS = (%v, %v), want (nil, nil)", clip, err)
	}
}

func TestProviders_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (STT{}).Transcribe(ctx, nil, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("STT err = %v, want context.Canceled", err)
	}
	if _, err := (Translator{}).Translate(ctx, "x", "", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Translate err = %v, want context.Canceled", err)
	}
	if _, err := (TTS{}).Synthesize(ctx, "x", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("TTS err = %v, want context.Canceled", err)
	}
}

// Package local provides the offline providers that terminate every
// resilience chain. They never fail and never touch the network.
//
//   - STT returns no speech, so nothing is relayed for the chunk.
//   - Translator returns the source text unchanged.
//   - TTS returns no audio, so students receive text only.
package local

import (
	"context"

	"github.com/MrWong99/aula/pkg/provider/stt"
	"github.com/MrWong99/aula/pkg/provider/translate"
	"github.com/MrWong99/aula/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ stt.Provider       = STT{}
	_ translate.Provider = Translator{}
	_ tts.Provider       = TTS{}
)

// STT is the offline speech-to-text tier.
type STT struct{}

// Transcribe implements stt.Provider.
func (STT) Transcribe(ctx context.Context, _ []byte, _ string) (string, error) {
	return "", ctx.Err()
}

// Translator is the offline translation tier.
type Translator struct{}

// Translate implements translate.Provider.
func (Translator) Translate(ctx context.Context, text, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}

// TTS is the offline text-to-speech tier.
type TTS struct{}

// Synthesize implements tts.Provider.
func (TTS) Synthesize(ctx context.Context, _, _ string) ([]byte, error) {
	return nil, ctx.Err()
}

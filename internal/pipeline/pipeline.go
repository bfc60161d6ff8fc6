// Package pipeline turns one teacher utterance into per-student translations.
//
// A [Pipeline] runs the speech path of a classroom session:
//
//  1. Audio is transcribed through the STT chain ([Pipeline.Transcribe]).
//  2. The text is aligned with the teacher's glossary.
//  3. Each distinct student language is translated once, concurrently.
//  4. Final utterances are synthesised once per language that has at least
//     one student with audio enabled.
//  5. Every student receives the translation for its own language.
//
// Provider calls go through the capability interfaces, so in production each
// stage is a resilience chain and in tests a mock.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/transcript"
	"github.com/MrWong99/aula/pkg/provider/stt"
	"github.com/MrWong99/aula/pkg/provider/translate"
	"github.com/MrWong99/aula/pkg/provider/tts"
)

// ErrNoTranslation is returned by [Pipeline.Relay] when every target language
// failed to translate. It wraps the provider error of the last failure.
var ErrNoTranslation = errors.New("pipeline: no language could be translated")

// ActivityRecorder receives the number of translations delivered per session.
// [session.Lifecycle] satisfies it.
type ActivityRecorder interface {
	RecordTranslation(sessionID string, n int)
}

// Config wires a [Pipeline].
type Config struct {
	STT        stt.Provider
	Translator translate.Provider
	TTS        tts.Provider

	// Hub delivers translations to student connections. Required.
	Hub *hub.Manager

	// Corrector aligns text with the glossary. Nil uses a default phonetic
	// corrector.
	Corrector *transcript.Corrector

	// Recorder is optional.
	Recorder ActivityRecorder

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline is safe for concurrent use. Utterances from different sessions
// run in parallel.
type Pipeline struct {
	stt        stt.Provider
	translator translate.Provider
	tts        tts.Provider
	hub        *hub.Manager
	corrector  *transcript.Corrector
	recorder   ActivityRecorder
	metrics    *observe.Metrics
	now        func() time.Time
}

// New validates cfg and returns a [Pipeline].
func New(cfg Config) (*Pipeline, error) {
	var errs []error
	if cfg.STT == nil {
		errs = append(errs, errors.New("pipeline: STT provider is required"))
	}
	if cfg.Translator == nil {
		errs = append(errs, errors.New("pipeline: translator is required"))
	}
	if cfg.TTS == nil {
		errs = append(errs, errors.New("pipeline: TTS provider is required"))
	}
	if cfg.Hub == nil {
		errs = append(errs, errors.New("pipeline: hub is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	p := &Pipeline{
		stt:        cfg.STT,
		translator: cfg.Translator,
		tts:        cfg.TTS,
		hub:        cfg.Hub,
		corrector:  cfg.Corrector,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if p.corrector == nil {
		p.corrector = transcript.NewCorrector()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Utterance is one piece of teacher speech to relay.
type Utterance struct {
	SessionID      string
	Text           string
	SourceLanguage string
	IsFinal        bool

	// Glossary lists subject terms the transcript is corrected towards.
	Glossary []string

	// ReceivedAt is when the message reached the server; it is the origin of
	// the reported latency. Zero means now.
	ReceivedAt time.Time
}

// Result summarises a relay.
type Result struct {
	// Text is the source text after glossary correction.
	Text string

	// Translations maps target language to translated text.
	Translations map[string]string

	// Failed maps target language to its translation error.
	Failed map[string]error

	// Delivered is the number of students the translation was sent to.
	Delivered int
}

// Transcribe converts an audio chunk to text. An empty result means no speech
// was recognised.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()

	text, err := p.stt.Transcribe(ctx, audio, language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Relay translates u into the language of every student in u.SessionID and
// sends each student its translation. Languages that fail to translate are
// skipped; the error is non-nil only when none succeeded, or when ctx ended.
func (p *Pipeline) Relay(ctx context.Context, u Utterance) (Result, error) {
	ctx, span := observe.StartSessionSpan(ctx, "pipeline.relay", u.SessionID, "")
	defer span.End()

	start := u.ReceivedAt
	if start.IsZero() {
		start = p.now()
	}

	text := strings.TrimSpace(u.Text)
	if text == "" {
		return Result{}, nil
	}
	corrected := p.corrector.Correct(text, u.Glossary)
	if corrected.Changed() {
		slog.Debug("transcript corrected", "session_id", u.SessionID, "corrections", len(corrected.Corrections))
	}
	res := Result{Text: corrected.Text}

	students := p.hub.StudentConnectionsAndLanguages(u.SessionID)
	if len(students) == 0 {
		return res, nil
	}
	targets, wantAudio := languagesOf(students)

	var lastErr error
	res.Translations, res.Failed, lastErr = p.translateAll(ctx, res.Text, u.SourceLanguage, targets)
	if len(res.Translations) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, errors.Join(ErrNoTranslation, lastErr)
	}

	var clips map[string][]byte
	if u.IsFinal {
		clips = p.synthesizeAll(ctx, res.Translations, wantAudio)
	}

	ts := protocol.Timestamp(p.now())
	latency := p.now().Sub(start).Milliseconds()
	var (
		delivered   = make(map[string]bool)
		deliveredMu sync.Mutex
	)
	report := p.hub.BroadcastEach(ctx, hub.RoleInSession(u.SessionID, protocol.RoleStudent), func(m hub.Meta) []byte {
		lang := targetOf(m)
		translated, ok := res.Translations[lang]
		if !ok {
			return nil
		}
		msg := protocol.Translation{
			Type:           protocol.TypeTranslation,
			OriginalText:   res.Text,
			Text:           translated,
			SourceLanguage: u.SourceLanguage,
			TargetLanguage: lang,
			IsFinal:        u.IsFinal,
			Timestamp:      ts,
			Latency:        latency,
		}
		if m.TTSEnabled() {
			msg.AudioData = clips[lang]
		}
		payload, encErr := protocol.Encode(msg)
		if encErr != nil {
			slog.Error("failed to encode translation", "session_id", u.SessionID, "err", encErr)
			return nil
		}
		deliveredMu.Lock()
		delivered[lang] = true
		deliveredMu.Unlock()
		return payload
	})
	res.Delivered = report.Sent

	for lang := range delivered {
		p.metrics.RecordTranslation(ctx, translate.BaseLanguage(lang))
	}
	p.metrics.RelayDuration.Record(ctx, p.now().Sub(start).Seconds())
	if p.recorder != nil && report.Sent > 0 {
		p.recorder.RecordTranslation(u.SessionID, report.Sent)
	}
	return res, nil
}

// translateAll translates text into every target concurrently. It returns the
// successful translations, the per-language failures and the last error.
func (p *Pipeline) translateAll(ctx context.Context, text, source string, targets []string) (map[string]string, map[string]error, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		out     = make(map[string]string, len(targets))
		failed  = make(map[string]error)
		lastErr error
	)
	for _, target := range targets {
		g.Go(func() error {
			translated, err := p.translateOne(ctx, text, source, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[target] = err
				lastErr = err
				slog.Warn("translation failed", "target_language", target, "err", err)
				return nil
			}
			out[target] = translated
			return nil
		})
	}
	_ = g.Wait()
	return out, failed, lastErr
}

func (p *Pipeline) translateOne(ctx context.Context, text, source, target string) (string, error) {
	if source == "" || translate.SameLanguage(source, target) {
		return text, nil
	}
	return p.translator.Translate(ctx, text, source, target)
}

// synthesizeAll returns one clip per language in want that has a
// translation. Failed or empty syntheses are left out; affected students
// receive text only.
func (p *Pipeline) synthesizeAll(ctx context.Context, translations map[string]string, want map[string]bool) map[string][]byte {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		clips = make(map[string][]byte)
	)
	for lang, text := range translations {
		if !want[lang] {
			continue
		}
		g.Go(func() error {
			clip, err := p.tts.Synthesize(ctx, text, lang)
			if err != nil {
				slog.Warn("speech synthesis failed, sending text only", "language", lang, "err", err)
				return nil
			}
			if len(clip) == 0 {
				return nil
			}
			mu.Lock()
			clips[lang] = clip
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return clips
}

// languagesOf returns the distinct target languages of students and which of
// them need audio.
func languagesOf(students []hub.Meta) ([]string, map[string]bool) {
	var langs []string
	audio := make(map[string]bool)
	for _, s := range students {
		lang := targetOf(s)
		if _, seen := audio[lang]; !seen {
			langs = append(langs, lang)
			audio[lang] = false
		}
		if s.TTSEnabled() {
			audio[lang] = true
		}
	}
	return langs, audio
}

func targetOf(m hub.Meta) string {
	return strings.TrimSpace(m.Language)
}

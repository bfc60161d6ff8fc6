package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/aula/pkg/provider"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
}

func TestBuildURL_CallLanguageWins(t *testing.T) {
	p, _ := New("key", WithModel("base"), WithLanguage("de-DE"))

	rawURL, err := p.buildURL("fr-FR")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "fr-FR", q.Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, _ := New("key", WithKeywords("photosynthesis", "chlorophyll"))
	rawURL, _ := p.buildURL("en")
	u, _ := url.Parse(rawURL)
	if got := u.Query()["keyterm"]; len(got) != 2 {
		t.Errorf("keyterm = %v, want 2 entries", got)
	}

	p, _ = New("key", WithModel("nova-2"), WithKeywords("mitochondria"))
	rawURL, _ = p.buildURL("en")
	u, _ = url.Parse(rawURL)
	if got := u.Query().Get("keywords"); got != "mitochondria" {
		t.Errorf("keywords = %q, want %q", got, "mitochondria")
	}
}

// ---- HTTP round-trip tests ----

func TestTranscribe_Success(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":" Open your books ","confidence":0.98}]}]}}`)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("secret", WithEndpoint(srv.URL))
	text, err := p.Transcribe(context.Background(), []byte("audio-bytes"), "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "Open your books", text)
	assertEqual(t, "auth", "Token secret", gotAuth)
	assertEqual(t, "body", "audio-bytes", string(gotBody))
}

func TestTranscribe_NoAlternatives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":{"channels":[]}}`)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("k", WithEndpoint(srv.URL))
	text, err := p.Transcribe(context.Background(), []byte("x"), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribe_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_code":"TOO_MANY_REQUESTS"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("k", WithEndpoint(srv.URL))
	_, err := p.Transcribe(context.Background(), []byte("x"), "en")
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *provider.APIError", err)
	}
	if apiErr.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", apiErr.HTTPStatus())
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}

package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/aula/pkg/provider"
	"github.com/MrWong99/aula/pkg/provider/stt/whisper"
)

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. The language form field of the last
// request is stored in *gotLang.
func newMockServer(t *testing.T, responseText string, gotLang *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if gotLang != nil {
			*gotLang = r.FormValue("language")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestTranscribe_Success(t *testing.T) {
	var lang string
	srv := newMockServer(t, "  Good morning class  ", &lang)

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), []byte("fake-webm"), "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Good morning class" {
		t.Errorf("text = %q, want %q", text, "Good morning class")
	}
	if lang != "en" {
		t.Errorf("language field = %q, want %q", lang, "en")
	}
}

func TestTranscribe_DefaultLanguage(t *testing.T) {
	var lang string
	srv := newMockServer(t, "hola", &lang)

	p, _ := whisper.New(srv.URL, whisper.WithLanguage("es"))
	if _, err := p.Transcribe(context.Background(), []byte("x"), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if lang != "es" {
		t.Errorf("language field = %q, want %q", lang, "es")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), nil, "en"); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), []byte("x"), "en")
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *provider.APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", apiErr.StatusCode)
	}
}

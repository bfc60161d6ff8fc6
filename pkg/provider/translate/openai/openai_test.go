package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/aula/pkg/provider"
)

// chatServer returns a test server that answers chat completions with reply
// and records the decoded request body.
func chatServer(t *testing.T, status int, reply string, gotReq *map[string]any, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if gotReq != nil {
			_ = json.NewDecoder(r.Body).Decode(gotReq)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"upstream failure"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranslate_Success(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, http.StatusOK, `"Buenos días, clase"`, &req, nil)

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Translate(context.Background(), "Good morning, class", "en-US", "es-ES")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Buenos días, clase" {
		t.Errorf("got %q, want %q", got, "Buenos días, clase")
	}
	if req["model"] != DefaultModel {
		t.Errorf("model = %v, want %q", req["model"], DefaultModel)
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestTranslate_SameLanguageSkipsCall(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, http.StatusOK, "unused", nil, &calls)

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	got, err := p.Translate(context.Background(), "Hello", "en-US", "en-GB")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hello" {
		t.Errorf("got %q, want %q", got, "Hello")
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestTranslate_StatusError(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, "", nil, nil)

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	_, err := p.Translate(context.Background(), "Hello", "en", "fr")
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *provider.APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
}

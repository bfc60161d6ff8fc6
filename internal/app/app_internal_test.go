package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/aula/internal/config"
	"github.com/MrWong99/aula/internal/resilience"
	"github.com/MrWong99/aula/pkg/provider/translate"
	"github.com/MrWong99/aula/pkg/store/memstore"
	storemock "github.com/MrWong99/aula/pkg/store/mock"
)

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitStore_FallsBackToMemory(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Store.PostgresDSN = "postgres://user@localhost:notaport/aula"

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := a.store.(*memstore.Store); !ok {
		t.Errorf("store = %T, want *memstore.Store", a.store)
	}
	if len(a.closers) != 0 {
		t.Errorf("closers = %d, want 0", len(a.closers))
	}
}

func TestReadyz_DegradedChain(t *testing.T) {
	t.Parallel()

	ps := &Providers{
		Translation: []resilience.Tier[translate.Provider]{{
			Name: "flaky",
			Provider: translate.ProviderFunc(func(context.Context, string, string, string) (string, error) {
				return "", errors.New("503 service unavailable")
			}),
		}},
	}
	a, err := New(context.Background(), defaultConfig(), ps, WithSessionStore(storemock.New()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// The flaky tier fails and the local tier answers with the source text.
	got, err := a.chains.translation.Translate(context.Background(), "hello", "en", "es")
	if err != nil || got != "hello" {
		t.Fatalf("Translate = %q, %v; want local passthrough", got, err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/readyz code = %d, want 200", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Checks["translation"] == "ok" {
		t.Error("translation check should be degraded")
	}
}

func TestApplyConfig_LogLevel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aula.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var lv slog.LevelVar
	a, err := New(context.Background(), cfg, nil,
		WithSessionStore(storemock.New()),
		WithConfigPath(path),
		WithLogLevel(&lv),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("server:\n  log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := time.Now().Add(time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}

	if !a.watcher.Check() {
		t.Fatal("watcher did not pick up the change")
	}
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
}

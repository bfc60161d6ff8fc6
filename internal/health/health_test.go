package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New(Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	refused := func(context.Context) error { return errors.New("connection refused") }
	degraded := func(context.Context) error { return fmt.Errorf("%w: local tier only", ErrDegraded) }

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{"store", ok}, {"translation", ok}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "translation": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{"store", refused}, {"translation", ok}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"store": "fail: connection refused", "translation": "ok"},
		},
		{
			name:       "degraded stays ready",
			checkers:   []Checker{{"store", ok}, {"tts", degraded}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"store": "ok", "tts": "degraded: local tier only"},
		},
		{
			name:       "failure beats degraded",
			checkers:   []Checker{{"store", refused}, {"tts", degraded}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestStore(t *testing.T) {
	c := Store(pinger{})
	if c.Name != "store" {
		t.Errorf("Name = %q, want store", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy store: %v", err)
	}

	err := Store(pinger{err: errors.New("dial tcp: refused")}).Check(context.Background())
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("unreachable store: got %v, want ErrDegraded", err)
	}
	if !strings.Contains(err.Error(), "refused") {
		t.Errorf("error %q lost the cause", err)
	}
}

type chain struct {
	kind     string
	degraded bool
}

func (c chain) Kind() string   { return c.kind }
func (c chain) Degraded() bool { return c.degraded }

func TestChains(t *testing.T) {
	checkers := Chains(chain{kind: "stt"}, chain{kind: "tts", degraded: true})
	if len(checkers) != 2 {
		t.Fatalf("got %d checkers, want 2", len(checkers))
	}
	if checkers[0].Name != "stt" || checkers[1].Name != "tts" {
		t.Errorf("names = %q, %q", checkers[0].Name, checkers[1].Name)
	}
	if err := checkers[0].Check(context.Background()); err != nil {
		t.Errorf("healthy chain: %v", err)
	}
	if err := checkers[1].Check(context.Background()); !errors.Is(err, ErrDegraded) {
		t.Errorf("degraded chain: got %v, want ErrDegraded", err)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

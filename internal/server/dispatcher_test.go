package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/aula/internal/hub"
	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/pipeline"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/resilience"
	"github.com/MrWong99/aula/internal/transport"
	tmock "github.com/MrWong99/aula/internal/transport/mock"
)

type activityLog struct {
	mu       sync.Mutex
	sessions []string
}

func (a *activityLog) RecordActivity(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, sessionID)
}

func (a *activityLog) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hub.Manager, *activityLog) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h := hub.New(hub.WithMetrics(m))
	act := &activityLog{}
	return NewDispatcher(h, act, m), h, act
}

func lastError(t *testing.T, c *tmock.Conn) protocol.Error {
	t.Helper()
	sent := c.Sent()
	if len(sent) == 0 {
		t.Fatal("no reply sent")
	}
	var e protocol.Error
	if err := protocol.Decode(sent[len(sent)-1], &e); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return e
}

func TestDispatcher_MalformedDropped(t *testing.T) {
	t.Parallel()
	d, h, act := newTestDispatcher(t)
	c := tmock.New("c1")
	_ = h.Register(c)

	called := false
	d.Handle("ping", func(context.Context, hub.Meta, []byte) error {
		called = true
		return nil
	})

	for _, raw := range []string{`not json`, `{"timestamp":1}`, `{"type":""}`, `[]`} {
		d.Dispatch(context.Background(), "c1", []byte(raw))
	}
	if called || len(c.Sent()) != 0 || act.count() != 0 {
		t.Errorf("malformed frames had effects: called=%v sent=%d activity=%d", called, len(c.Sent()), act.count())
	}
}

func TestDispatcher_UnknownTypeCountsAsActivity(t *testing.T) {
	t.Parallel()
	d, h, act := newTestDispatcher(t)
	c := tmock.New("c1")
	c.PingErr = errors.New("no pong")
	_ = h.Register(c)
	_ = h.SetSession("c1", "sess-1")
	h.HeartbeatTick(context.Background(), time.Second)
	if meta, _ := h.Get("c1"); meta.Alive {
		t.Fatal("connection still alive after failed ping")
	}

	d.Dispatch(context.Background(), "c1", []byte(`{"type":"shrug"}`))

	if meta, _ := h.Get("c1"); !meta.Alive {
		t.Error("inbound message did not mark the connection alive")
	}
	if act.count() != 1 {
		t.Errorf("activity recorded %d times, want 1", act.count())
	}
	if len(c.Sent()) != 0 {
		t.Error("unknown type produced a reply")
	}
}

func TestDispatcher_ErrorReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantClose bool
	}{
		{"protocol error", protocol.NewError(protocol.CodeInvalidMessage, "bad"), protocol.CodeInvalidMessage, false},
		{"internal error", errors.New("db exploded"), protocol.CodeInternal, false},
		{"chain exhausted", resilience.ErrAllTiersFailed, protocol.CodeProviderUnavailable, false},
		{"no translation", errors.Join(pipeline.ErrNoTranslation, errors.New("x")), protocol.CodeProviderUnavailable, false},
		{"invalid classroom", errInvalidClassroom(), protocol.CodeInvalidClassroom, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, h, _ := newTestDispatcher(t)
			c := tmock.New("c1")
			_ = h.Register(c)
			d.Handle("do", func(context.Context, hub.Meta, []byte) error { return tt.err })

			d.Dispatch(context.Background(), "c1", []byte(`{"type":"do"}`))

			got := lastError(t, c)
			if got.Type != protocol.TypeError || got.Code != tt.wantCode {
				t.Errorf("reply = %+v, want code %q", got, tt.wantCode)
			}
			if tt.wantCode == protocol.CodeInternal && got.Message != "internal server error" {
				t.Errorf("internal details leaked: %q", got.Message)
			}

			if tt.wantClose {
				select {
				case <-c.Done():
				case <-time.After(time.Second):
					t.Fatal("connection not closed")
				}
				if calls := c.CloseCalls(); calls[0].Code != transport.StatusInvalidClassroom {
					t.Errorf("close code = %v", calls[0].Code)
				}
			} else if n := len(c.CloseCalls()); n != 0 {
				t.Errorf("connection closed %d times", n)
			}
		})
	}
}

func TestDispatcher_HandlerGetsSenderMeta(t *testing.T) {
	t.Parallel()
	d, h, _ := newTestDispatcher(t)
	_ = h.Register(tmock.New("c1"))
	_ = h.SetRole("c1", protocol.RoleTeacher)

	var got hub.Meta
	d.Handle("x", func(_ context.Context, m hub.Meta, _ []byte) error {
		got = m
		return nil
	})
	d.Dispatch(context.Background(), "c1", []byte(`{"type":"x"}`))
	if got.ID != "c1" || got.Role != protocol.RoleTeacher {
		t.Errorf("meta = %+v", got)
	}

	// Frames from unregistered ids are ignored.
	got = hub.Meta{}
	d.Dispatch(context.Background(), "ghost", []byte(`{"type":"x"}`))
	if got.ID != "" {
		t.Error("handler called for unknown connection")
	}
}

func TestGlossaryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings map[string]any
		want     int
	}{
		{"absent", nil, 0},
		{"strings", map[string]any{"glossary": []string{"atom", "ion"}}, 2},
		{"json list", map[string]any{"glossary": []any{"atom", 3, " ", "ion"}}, 2},
		{"comma string", map[string]any{"glossary": "atom,ion,molecule"}, 3},
	}
	for _, tt := range tests {
		if got := glossaryOf(tt.settings); len(got) != tt.want {
			t.Errorf("%s: glossaryOf = %v, want %d terms", tt.name, got, tt.want)
		}
	}
}

func TestSpeaker(t *testing.T) {
	t.Parallel()

	if speaker(hub.Meta{Role: protocol.RoleStudent, Registered: true, SessionID: "s"}) {
		t.Error("student may speak")
	}
	if speaker(hub.Meta{Role: protocol.RoleTeacher, Registered: true}) {
		t.Error("teacher without session may speak")
	}
	if !speaker(hub.Meta{Role: protocol.RoleTeacher, Registered: true, SessionID: "s"}) {
		t.Error("registered teacher may not speak")
	}
}

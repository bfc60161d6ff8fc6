package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/aula/internal/observe"
	"github.com/MrWong99/aula/internal/protocol"
	"github.com/MrWong99/aula/internal/transport/mock"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return New(WithMetrics(m))
}

// join registers a mock connection with role and session.
func join(t *testing.T, m *Manager, id string, role protocol.Role, sessionID, lang string) *mock.Conn {
	t.Helper()
	c := mock.New(id)
	if err := m.Register(c); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	if err := m.SetRole(id, role); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if err := m.SetSession(id, sessionID); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := m.SetLanguage(id, lang); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	return c
}

func TestManager_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if err := m.Register(mock.New("c1")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(mock.New("c1")); !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	meta, ok := m.Get("c1")
	if !ok || meta.Role != protocol.RoleUnset || !meta.Alive {
		t.Errorf("Get = (%+v, %v), want unset and alive", meta, ok)
	}
}

func TestManager_UnregisterPurgesIndexes(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	join(t, m, "s1", protocol.RoleStudent, "sess-1", "es")

	meta, ok := m.Unregister("s1")
	if !ok || meta.SessionID != "sess-1" {
		t.Fatalf("Unregister = (%+v, %v)", meta, ok)
	}
	if _, ok := m.Unregister("s1"); ok {
		t.Error("second Unregister reported success")
	}
	if got := m.ConnectionsBySession("sess-1"); len(got) != 0 {
		t.Errorf("session index still holds %d entries", len(got))
	}
	if got := m.ConnectionsByRole(protocol.RoleStudent); len(got) != 0 {
		t.Errorf("role index still holds %d entries", len(got))
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
	if len(m.bySession) != 0 || len(m.byRole) != 0 {
		t.Errorf("empty index sets not removed: %v %v", m.bySession, m.byRole)
	}
}

func TestManager_IndexesMoveOnUpdate(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	join(t, m, "c1", protocol.RoleStudent, "sess-1", "fr")

	if err := m.SetSession("c1", "sess-2"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := m.SetRole("c1", protocol.RoleTeacher); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	if n := len(m.ConnectionsBySession("sess-1")); n != 0 {
		t.Errorf("old session has %d connections", n)
	}
	if n := len(m.ConnectionsBySession("sess-2")); n != 1 {
		t.Errorf("new session has %d connections, want 1", n)
	}
	if n := len(m.ConnectionsByRole(protocol.RoleStudent)); n != 0 {
		t.Errorf("old role has %d connections", n)
	}
	if n := len(m.ConnectionsByRole(protocol.RoleTeacher)); n != 1 {
		t.Errorf("new role has %d connections, want 1", n)
	}
}

func TestManager_NotFound(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if err := m.SetRole("ghost", protocol.RoleTeacher); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRole err = %v", err)
	}
	if err := m.SetSession("ghost", "s"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetSession err = %v", err)
	}
	if _, err := m.MergeSettings("ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("MergeSettings err = %v", err)
	}
	if err := m.SendTo(context.Background(), "ghost", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("SendTo err = %v", err)
	}
}

func TestManager_MergeSettingsIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	join(t, m, "s1", protocol.RoleStudent, "sess", "es")

	if _, err := m.MergeSettings("s1", map[string]any{"ttsEnabled": false, "fontSize": 18}); err != nil {
		t.Fatalf("MergeSettings: %v", err)
	}
	first, _ := m.MergeSettings("s1", map[string]any{"ttsEnabled": false})
	second, _ := m.MergeSettings("s1", map[string]any{"ttsEnabled": false})

	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("merge not idempotent: %v vs %v", first, second)
	}
	if first["fontSize"] != 18 {
		t.Errorf("fontSize lost on merge: %v", first)
	}

	meta, _ := m.Get("s1")
	if meta.TTSEnabled() {
		t.Error("TTSEnabled = true after opting out")
	}
	meta.Settings["fontSize"] = 99
	again, _ := m.Get("s1")
	if again.Settings["fontSize"] != 18 {
		t.Error("snapshot mutation leaked into manager state")
	}
}

func TestMeta_TTSEnabledDefault(t *testing.T) {
	t.Parallel()
	if !(Meta{}).TTSEnabled() {
		t.Error("TTSEnabled must default to true")
	}
	if !(Meta{Settings: map[string]any{"ttsEnabled": "nope"}}).TTSEnabled() {
		t.Error("non-bool ttsEnabled must fall back to true")
	}
}

func TestManager_StudentQueries(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	join(t, m, "t1", protocol.RoleTeacher, "sess", "en")
	join(t, m, "s1", protocol.RoleStudent, "sess", "es")
	join(t, m, "s2", protocol.RoleStudent, "sess", "fr")
	join(t, m, "s3", protocol.RoleStudent, "other", "de")

	if n := m.StudentCount("sess"); n != 2 {
		t.Errorf("StudentCount = %d, want 2", n)
	}
	langs := map[string]bool{}
	for _, s := range m.StudentConnectionsAndLanguages("sess") {
		langs[s.Language] = true
	}
	if !langs["es"] || !langs["fr"] || len(langs) != 2 {
		t.Errorf("languages = %v, want es and fr", langs)
	}
}

func TestManager_BroadcastIsolation(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	teacherA := join(t, m, "tA", protocol.RoleTeacher, "A", "en")
	studentA := join(t, m, "sA", protocol.RoleStudent, "A", "es")
	studentB := join(t, m, "sB", protocol.RoleStudent, "B", "es")

	report := m.Broadcast(context.Background(), RoleInSession("A", protocol.RoleStudent), []byte("hola"))
	if report.Sent != 1 || len(report.Failed) != 0 {
		t.Errorf("report = %+v, want 1 sent", report)
	}
	if got := studentA.Sent(); len(got) != 1 || string(got[0]) != "hola" {
		t.Errorf("student A got %q", got)
	}
	if n := len(studentB.Sent()); n != 0 {
		t.Errorf("student B in another session got %d messages", n)
	}
	if n := len(teacherA.Sent()); n != 0 {
		t.Errorf("teacher got %d student messages", n)
	}
}

func TestManager_BroadcastFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	broken := join(t, m, "s1", protocol.RoleStudent, "sess", "es")
	broken.SetSendErr(errors.New("write: broken pipe"))
	var healthy []*mock.Conn
	for i := range 5 {
		healthy = append(healthy, join(t, m, fmt.Sprintf("ok-%d", i), protocol.RoleStudent, "sess", "es"))
	}

	report := m.Broadcast(context.Background(), InSession("sess"), []byte("x"))
	if report.Sent != 5 {
		t.Errorf("Sent = %d, want 5", report.Sent)
	}
	if _, ok := report.Failed["s1"]; !ok || len(report.Failed) != 1 {
		t.Errorf("Failed = %v, want only s1", report.Failed)
	}
	for _, c := range healthy {
		if len(c.Sent()) != 1 {
			t.Errorf("%s got %d messages", c.ID(), len(c.Sent()))
		}
	}
	if _, ok := m.Get("s1"); !ok {
		t.Error("failing connection was unregistered by broadcast")
	}
}

func TestManager_BroadcastEach(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	es := join(t, m, "s1", protocol.RoleStudent, "sess", "es")
	fr := join(t, m, "s2", protocol.RoleStudent, "sess", "fr")
	de := join(t, m, "s3", protocol.RoleStudent, "sess", "de")

	report := m.BroadcastEach(context.Background(), InSession("sess"), func(meta Meta) []byte {
		if meta.Language == "de" {
			return nil
		}
		return []byte(meta.Language)
	})
	if report.Sent != 2 {
		t.Errorf("Sent = %d, want 2", report.Sent)
	}
	if string(es.Sent()[0]) != "es" || string(fr.Sent()[0]) != "fr" {
		t.Errorf("wrong per-recipient payloads: %q %q", es.Sent(), fr.Sent())
	}
	if len(de.Sent()) != 0 {
		t.Error("skipped recipient received a message")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	var wg sync.WaitGroup
	for i := range 50 {
		id := fmt.Sprintf("c%d", i)
		wg.Go(func() {
			c := mock.New(id)
			_ = m.Register(c)
			_ = m.SetRole(id, protocol.RoleStudent)
			_ = m.SetSession(id, "sess")
			m.Broadcast(context.Background(), InSession("sess"), []byte("x"))
			_ = m.StudentCount("sess")
			m.Unregister(id)
		})
	}
	wg.Wait()

	if m.Count() != 0 {
		t.Errorf("Count = %d after all unregistered", m.Count())
	}
}

func TestManager_MarkRegistered(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	join(t, m, "s1", protocol.RoleStudent, "sess-1", "es")

	first, err := m.MarkRegistered("s1")
	if err != nil || !first {
		t.Fatalf("first MarkRegistered = (%v, %v), want (true, nil)", first, err)
	}
	if first, _ := m.MarkRegistered("s1"); first {
		t.Error("second MarkRegistered reported first registration")
	}
	if meta, _ := m.Get("s1"); !meta.Registered {
		t.Error("Registered flag not set")
	}
	if _, err := m.MarkRegistered("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManager_CloseAll(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	a := join(t, m, "a", protocol.RoleTeacher, "sess-1", "en")
	b := join(t, m, "b", protocol.RoleStudent, "sess-1", "es")

	if n := m.CloseAll(websocket.StatusGoingAway, "shutdown"); n != 2 {
		t.Errorf("CloseAll = %d, want 2", n)
	}
	for _, c := range []*mock.Conn{a, b} {
		calls := c.CloseCalls()
		if len(calls) != 1 || calls[0].Code != websocket.StatusGoingAway {
			t.Errorf("%s close calls = %+v", c.ID(), calls)
		}
	}
}

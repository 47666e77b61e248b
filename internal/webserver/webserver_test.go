package webserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/agent-pulse/internal/activity"
	"github.com/zsprackett/agent-pulse/internal/hub"
	"github.com/zsprackett/agent-pulse/internal/monitor"
	"github.com/zsprackett/agent-pulse/internal/webserver"
)

const testToken = "test-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) (*webserver.Server, *monitor.Machine) {
	t.Helper()
	machine := monitor.New(discardLogger())
	h := hub.New(testToken, machine, discardLogger())
	machine.OnChange(h.Broadcast)
	t.Cleanup(func() {
		h.Close()
		machine.Stop()
	})
	srv := webserver.New(machine, h, webserver.Config{Host: "127.0.0.1", Port: 0}, discardLogger())
	return srv, machine
}

func postHook(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func getState(t *testing.T, handler http.Handler) map[string]any {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/state", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("GET /api/state: expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return resp
}

func TestHookBashSetsRunning(t *testing.T) {
	srv, machine := newServer(t)
	handler := srv.Handler()

	w := postHook(t, handler, `{"type":"PreToolUse","tool":"Bash"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if machine.Mode() != activity.ModeRunning {
		t.Errorf("expected running, got %q", machine.Mode())
	}
	if !machine.Protected() {
		t.Error("expected a protection window after Bash")
	}
}

func TestHookIgnoredStillOK(t *testing.T) {
	srv, machine := newServer(t)
	handler := srv.Handler()

	for _, body := range []string{
		`{"type":"PostToolUse","tool":"Bash"}`,
		`{"type":"PreToolUse","tool":"TodoWrite"}`,
		`{}`,
	} {
		w := postHook(t, handler, body)
		if w.Code != 200 {
			t.Errorf("%s: expected 200, got %d", body, w.Code)
		}
	}
	if machine.Mode() != activity.ModeIdle {
		t.Errorf("ignored events changed mode to %q", machine.Mode())
	}
}

func TestHookInvalidJSONLeavesStateUnchanged(t *testing.T) {
	srv, machine := newServer(t)
	handler := srv.Handler()

	postHook(t, handler, `{"type":"PreToolUse","tool":"Edit"}`)
	before := getState(t, handler)["mode"]

	for _, body := range []string{
		`{"type": Stop`,
		`{"type":"Stop"}garbage`,
		`{"type":"Stop"}{`,
		`{"type":"PreToolUse","tool":"Bash"}{"type":"Stop"}`,
	} {
		w := postHook(t, handler, body)
		if w.Code != 400 {
			t.Fatalf("%q: expected 400, got %d", body, w.Code)
		}
		var resp map[string]string
		json.NewDecoder(w.Body).Decode(&resp)
		if resp["error"] != "Invalid JSON" {
			t.Errorf("%q: unexpected error body %v", body, resp)
		}
	}

	after := getState(t, handler)["mode"]
	if after != before || after != "typing" {
		t.Errorf("mode changed across bad request: before=%v after=%v", before, after)
	}
	if machine.Mode() != activity.ModeTyping {
		t.Errorf("expected typing, got %q", machine.Mode())
	}
}

func TestHookFloatExitCode(t *testing.T) {
	srv, machine := newServer(t)
	handler := srv.Handler()

	if w := postHook(t, handler, `{"type":"PostToolUse","tool":"Bash","exitCode":1.0}`); w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	if machine.Mode() != activity.ModeError {
		t.Errorf("expected error, got %q", machine.Mode())
	}
}

func TestHookBodyTooLarge(t *testing.T) {
	srv, _ := newServer(t)
	body := `{"type":"Stop","pad":"` + strings.Repeat("x", 128<<10) + `"}`
	if w := postHook(t, srv.Handler(), body); w.Code != 400 {
		t.Errorf("expected 400 for oversized body, got %d", w.Code)
	}
}

func TestHookMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)
	req := httptest.NewRequest("GET", "/hook", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	srv, machine := newServer(t)
	machine.Emit(activity.ModeThinking, 0)

	before := time.Now().UnixMilli()
	resp := getState(t, srv.Handler())
	if resp["mode"] != "thinking" {
		t.Errorf("mode: got %v", resp["mode"])
	}
	ts, ok := resp["ts"].(float64)
	if !ok || int64(ts) < before {
		t.Errorf("ts should be current server time, got %v", resp["ts"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["ok"] != true || resp["clients"] != float64(0) {
		t.Errorf("unexpected health body %v", resp)
	}
}

func TestHookBroadcastsToWebsocket(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + testToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() activity.StateMessage {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg activity.StateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if snap := read(); snap.Mode != activity.ModeIdle {
		t.Fatalf("snapshot: got %q want idle", snap.Mode)
	}

	resp, err := http.Post(ts.URL+"/hook", "application/json", strings.NewReader(`{"type":"PreToolUse","tool":"Bash"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if msg := read(); msg.Mode != activity.ModeRunning {
		t.Errorf("broadcast: got %q want running", msg.Mode)
	}
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=wrong"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != hub.CloseInvalidToken {
		t.Errorf("expected close %d, got %v", hub.CloseInvalidToken, err)
	}
}

func TestStopDecaysLazily(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	machine := monitor.New(discardLogger(), monitor.WithClock(now))
	h := hub.New(testToken, machine, discardLogger())
	defer h.Close()
	srv := webserver.New(machine, h, webserver.Config{}, discardLogger())

	postHook(t, srv.Handler(), `{"type":"Stop"}`)
	if machine.Mode() != activity.ModeCelebrate {
		t.Fatalf("expected celebrate, got %q", machine.Mode())
	}

	steps := []struct {
		at   time.Duration
		want activity.Mode
	}{
		{2000 * time.Millisecond, activity.ModeCelebrate},
		{2500 * time.Millisecond, activity.ModeCelebrate},
		{3000 * time.Millisecond, activity.ModeThinking},
		{24500 * time.Millisecond, activity.ModeThinking},
		{25000 * time.Millisecond, activity.ModeIdle},
	}
	start := clock
	for _, step := range steps {
		clock = start.Add(step.at)
		machine.Tick()
		if got := machine.Mode(); got != step.want {
			t.Errorf("t=%v: got %q want %q", step.at, got, step.want)
		}
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv, _ := newServer(t)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/state", srv.Addr()))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestStartRejectsUnknownTLSMode(t *testing.T) {
	machine := monitor.New(discardLogger())
	h := hub.New(testToken, machine, discardLogger())
	srv := webserver.New(machine, h, webserver.Config{Host: "127.0.0.1", TLS: webserver.TLSConfig{Mode: "autocert"}}, discardLogger())
	if err := srv.Start(); err == nil {
		srv.Shutdown(context.Background())
		t.Fatal("expected error for unsupported TLS mode")
	}
}

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/internal/dispatch"
	"github.com/cr8-studio/relay/internal/framestore"
	"github.com/cr8-studio/relay/internal/router"
	"github.com/cr8-studio/relay/internal/session"
)

type relayFixture struct {
	server   *httptest.Server
	registry *session.Registry
	store    *framestore.Dir
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := framestore.NewDir(t.TempDir())
	registry := session.NewRegistry(session.RegistryConfig{
		Store:         store,
		FrameInterval: time.Millisecond,
		Log:           zerolog.Nop(),
	})
	t.Cleanup(registry.Close)

	messageRouter := router.New(router.Config{
		Registry: registry,
		StopWait: 2 * time.Second,
		Log:      zerolog.Nop(),
	})
	handler := NewWebSocketHandler(registry, messageRouter, dispatch.New(zerolog.Nop()), zerolog.Nop(), nil)

	r := gin.New()
	api := r.Group("/api")
	handler.RegisterRoutes(api)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &relayFixture{server: server, registry: registry, store: store}
}

// dial connects an endpoint and consumes the registration confirmation.
func (fx *relayFixture) dial(t *testing.T, identity, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/api/ws/" + identity + "/" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s as %s: %v", identity, role, err)
	}
	t.Cleanup(func() { conn.Close() })

	confirm := readJSON(t, conn)
	if confirm["command"] != "connected" || confirm["status"] != "success" {
		t.Fatalf("unexpected registration confirmation: %v", confirm)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestPreviewRequestRelayedToWorker(t *testing.T) {
	fx := newRelayFixture(t)

	browser := fx.dial(t, "alice", "browser")
	worker := fx.dial(t, "alice", "worker")

	writeJSON(t, browser, map[string]any{
		"command": "start_preview_rendering",
		"params":  map[string]any{"x": 1},
	})

	forwarded := readJSON(t, worker)
	if forwarded["command"] != "start_preview_rendering" {
		t.Errorf("worker got wrong command: %v", forwarded)
	}
	params, _ := forwarded["params"].(map[string]any)
	if params["x"] != float64(1) {
		t.Errorf("params lost in transit: %v", forwarded)
	}
	if id, _ := forwarded["message_id"].(string); id == "" {
		t.Errorf("expected generated message_id: %v", forwarded)
	}

	ack := readJSON(t, browser)
	if ack["status"] != "OK" {
		t.Errorf("browser did not get OK ack: %v", ack)
	}
}

func TestPreviewRequestWithoutWorkerFails(t *testing.T) {
	fx := newRelayFixture(t)

	browser := fx.dial(t, "alice", "browser")

	writeJSON(t, browser, map[string]any{"command": "start_preview_rendering"})

	// The missing worker is reported back to the requesting browser.
	errAck := readJSON(t, browser)
	if errAck["status"] != "ERROR" {
		t.Fatalf("expected ERROR ack for missing worker, got %v", errAck)
	}
	if msg, _ := errAck["message"].(string); msg == "" {
		t.Errorf("ERROR ack should carry a message, got %v", errAck)
	}

	// The connection stays healthy for subsequent operations.
	writeJSON(t, browser, map[string]any{"command": "start_broadcast"})
	for i := 0; i < 5; i++ {
		msg := readJSON(t, browser)
		if msg["status"] == "OK" {
			return
		}
	}
	t.Error("expected broadcast ack on a healthy connection")
}

func TestBroadcastDeliversFramesEndToEnd(t *testing.T) {
	fx := newRelayFixture(t)

	for i := 0; i < 3; i++ {
		path := fx.store.FramePath("alice", i)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create frame dir: %v", err)
		}
		if err := os.WriteFile(path, []byte{0x89, byte(i)}, 0644); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}

	browser := fx.dial(t, "alice", "browser")
	writeJSON(t, browser, map[string]any{"command": "start_broadcast"})

	var frames []float64
	for {
		msg := readJSON(t, browser)
		switch {
		case msg["type"] == "frame":
			frames = append(frames, msg["frameIndex"].(float64))
			if msg["data"] == "" {
				t.Error("frame payload missing")
			}
		case msg["type"] == "broadcast_complete":
			if len(frames) != 3 {
				t.Fatalf("expected 3 frames before completion, got %v", frames)
			}
			for i, idx := range frames {
				if idx != float64(i) {
					t.Fatalf("frames out of order: %v", frames)
				}
			}
			return
		}
	}
}

func TestWorkerCompletionNoticeReachesBrowser(t *testing.T) {
	fx := newRelayFixture(t)

	browser := fx.dial(t, "alice", "browser")
	worker := fx.dial(t, "alice", "worker")

	writeJSON(t, worker, map[string]any{
		"command":    "generate_video",
		"status":     "completed",
		"message_id": "m-9",
	})

	notice := readJSON(t, browser)
	if notice["type"] != "command_completed" || notice["command"] != "generate_video" ||
		notice["message_id"] != "m-9" || notice["status"] != "success" {
		t.Errorf("unexpected completion notice: %v", notice)
	}
}

func TestSessionReapedAfterBothDisconnect(t *testing.T) {
	fx := newRelayFixture(t)

	browser := fx.dial(t, "alice", "browser")
	worker := fx.dial(t, "alice", "worker")

	if fx.registry.Get("alice") == nil {
		t.Fatal("session should exist while endpoints are attached")
	}

	browser.Close()
	worker.Close()

	deadline := time.Now().Add(5 * time.Second)
	for fx.registry.Get("alice") != nil {
		if time.Now().After(deadline) {
			t.Fatal("session was not reaped after both endpoints disconnected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInvalidRoleRejected(t *testing.T) {
	fx := newRelayFixture(t)

	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/api/ws/alice/spectator"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for an invalid role")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("expected 400 response, got %+v", resp)
	}
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/config"
)

func TestRelay_ServeAndShutdown(t *testing.T) {
	cfg := config.Default("127.0.0.1:0")
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "tokens.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.store.UpsertToken(context.Background(), "20601234567", "secretA"); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" {
		t.Errorf("healthz = %v", health)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	if err := ws.WriteJSON(protocol.NewEnvelope(protocol.TypeRegister, protocol.Register{RUC: "20601234567", Token: "secretA"})); err != nil {
		t.Fatal(err)
	}
	var env protocol.RawEnvelope
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&env); err != nil || env.Type != protocol.TypeRegistered {
		t.Fatalf("register: %v %s", err, env.Type)
	}

	cancel()

	// Live sessions are told to go away on shutdown.
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&env); err != nil || env.Type != protocol.TypeForceDisconnect {
		t.Errorf("expected force_disconnect on shutdown, got %v %s", err, env.Type)
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not shut down")
	}
}

func TestRelay_NewRejectsBadStorage(t *testing.T) {
	cfg := config.Default(":0")
	cfg.Storage.Driver = "redis"
	if _, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

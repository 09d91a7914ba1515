package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"csms/internal/config"
	"csms/internal/log"
	"csms/internal/models"
)

func TestManagerFirstFailureCancelsOthers(t *testing.T) {
	m := NewManager(log.NewNop())
	boom := errors.New("boom")
	var cancelled atomic.Bool
	m.Add("waiter", RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return nil
	}))
	m.Add("failing", RunFunc(func(context.Context) error { return boom }))

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start() = %v, want boom", err)
	}
	if !cancelled.Load() {
		t.Fatal("sibling component was not cancelled")
	}
}

func TestManagerStopsOnContext(t *testing.T) {
	m := NewManager(nil)
	m.Add("a", RunFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestOpenStoreBolt(t *testing.T) {
	o := config.NewStoreOptions()
	o.Driver = config.DriverBolt
	o.BoltPath = filepath.Join(t.TempDir(), "csms.db")
	st, err := OpenStore(context.Background(), o)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := st.ChargePoints().List(context.Background()); err != nil {
		t.Fatal(err)
	}

	o.Driver = "sqlite"
	if _, err := OpenStore(context.Background(), o); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestAppServesAndShutsDown(t *testing.T) {
	cfg := config.New()
	cfg.Store.Driver = config.DriverBolt
	cfg.Store.BoltPath = filepath.Join(t.TempDir(), "csms.db")
	cfg.HTTP.ShutdownTimeout = 2 * time.Second

	st, err := OpenStore(context.Background(), cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	app, err := Build(cfg, st, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(app.workers.components) != 1 || len(app.servers.components) != 1 {
		t.Fatalf("expected audit worker and http server, got %d/%d", len(app.workers.components), len(app.servers.components))
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.HTTP.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestShutdownKeepsFinalDisconnects(t *testing.T) {
	cfg := config.New()
	cfg.Store.Driver = config.DriverBolt
	cfg.Store.BoltPath = filepath.Join(t.TempDir(), "csms.db")
	cfg.HTTP.ShutdownTimeout = 2 * time.Second

	st, err := OpenStore(context.Background(), cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	app, err := Build(cfg, st, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	app.HTTP.Listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	d := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}, HandshakeTimeout: 2 * time.Second}
	ws, _, err := d.Dial("ws://"+ln.Addr().String()+"/ocpp/CP-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`[2,"b1","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"AC22"}]`)); err != nil {
		t.Fatal(err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	entries, err := st.Audit().List(context.Background(), "CP-1", 50)
	if err != nil {
		t.Fatal(err)
	}
	var disconnected bool
	for _, e := range entries {
		if e.Message == "disconnected" {
			disconnected = true
		}
	}
	if !disconnected {
		t.Fatalf("disconnect audit entry lost on shutdown: %d entries", len(entries))
	}
	cp, err := st.ChargePoints().Get(context.Background(), "CP-1")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != models.StatusDisconnected {
		t.Fatalf("status = %s", cp.Status)
	}
}

func TestBuildRejectsUnknownAuthMode(t *testing.T) {
	cfg := config.New()
	cfg.Auth.Mode = "token"
	cfg.Store.Driver = config.DriverBolt
	cfg.Store.BoltPath = filepath.Join(t.TempDir(), "csms.db")
	st, err := OpenStore(context.Background(), cfg.Store)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := Build(cfg, st, log.NewNop()); err == nil {
		t.Fatal("expected error for unknown auth mode")
	}
}

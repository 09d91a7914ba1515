package ocppj

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, h Handler, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if h == nil {
		h = HandlerFunc(func(context.Context, *Conn, Call) (any, error) { return struct{}{}, nil })
	}
	s := NewServer(opts, h, nil)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, identity, password string, protocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	if protocols == nil {
		protocols = []string{"ocpp1.6"}
	}
	header := http.Header{}
	if password != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(identity+":"+password)))
	}
	d := websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: 2 * time.Second}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ocpp/" + identity
	ws, resp, err := d.Dial(url, header)
	if err == nil {
		t.Cleanup(func() { ws.Close() })
	}
	return ws, resp, err
}

func mustDial(t *testing.T, ts *httptest.Server, identity string) *websocket.Conn {
	t.Helper()
	ws, _, err := dial(t, ts, identity, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) []json.RawMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		t.Fatalf("frame %s: %v", data, err)
	}
	return parts
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func str(raw json.RawMessage) string {
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func TestHandshakeRejected(t *testing.T) {
	s, ts := newTestServer(t, nil, Options{})
	s.SetAuth(func(_ context.Context, h Handshake) (any, error) {
		if h.HasPassword && h.Password == "good" {
			return h.Identity, nil
		}
		return nil, errors.New("bad credentials")
	})

	_, resp, err := dial(t, ts, "CP-1", "bad")
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	if _, _, err := dial(t, ts, "CP-1", "good"); err != nil {
		t.Fatalf("expected accepted handshake, got %v", err)
	}
}

func TestHandshakeSubprotocolMismatch(t *testing.T) {
	_, ts := newTestServer(t, nil, Options{})
	_, resp, err := dial(t, ts, "CP-1", "", "ocpp2.0.1")
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got err=%v resp=%+v", err, resp)
	}
}

func TestInboundCallResultAndError(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, c *Conn, call Call) (any, error) {
		switch call.Action {
		case "Heartbeat":
			return map[string]string{"identity": c.ID()}, nil
		case "Boom":
			return nil, errors.New("db down")
		default:
			return nil, NewError(NotImplemented, "action %s is not supported", call.Action)
		}
	})
	_, ts := newTestServer(t, h, Options{})
	ws := mustDial(t, ts, "CP-7")

	send(t, ws, `[2,"a1","Heartbeat",{}]`)
	f := readFrame(t, ws)
	if string(f[0]) != "3" || str(f[1]) != "a1" || !strings.Contains(string(f[2]), "CP-7") {
		t.Fatalf("unexpected result frame %s", f)
	}

	send(t, ws, `[2,"a2","DataTransfer",{}]`)
	f = readFrame(t, ws)
	if string(f[0]) != "4" || str(f[1]) != "a2" || str(f[2]) != string(NotImplemented) {
		t.Fatalf("unexpected error frame %s", f)
	}
	if string(f[4]) != "{}" {
		t.Fatalf("details must be an object, got %s", f[4])
	}

	send(t, ws, `[2,"a3","Boom",{}]`)
	f = readFrame(t, ws)
	if str(f[2]) != string(InternalError) || strings.Contains(string(f[3]), "db down") {
		t.Fatalf("internal errors must not leak details: %s", f)
	}
}

func TestMalformedFrames(t *testing.T) {
	_, ts := newTestServer(t, nil, Options{})
	ws := mustDial(t, ts, "CP-1")

	send(t, ws, `[2,"x1","Heartbeat"]`)
	f := readFrame(t, ws)
	if str(f[1]) != "x1" || str(f[2]) != string(FormationViolation) {
		t.Fatalf("unexpected frame %s", f)
	}

	send(t, ws, `[9,"x2",{}]`)
	f = readFrame(t, ws)
	if str(f[1]) != "x2" || str(f[2]) != string(ProtocolError) {
		t.Fatalf("unexpected frame %s", f)
	}

	// no recoverable id: dropped, connection stays usable
	send(t, ws, `not json`)
	send(t, ws, `[2,"x3","Heartbeat",{}]`)
	f = readFrame(t, ws)
	if str(f[1]) != "x3" || string(f[0]) != "3" {
		t.Fatalf("unexpected frame %s", f)
	}
}

func TestInboundCallsAreSequential(t *testing.T) {
	var active, maxActive atomic.Int32
	var (
		mu    sync.Mutex
		order []string
	)
	h := HandlerFunc(func(_ context.Context, _ *Conn, call Call) (any, error) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		if call.ID == "1" {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, call.ID)
		mu.Unlock()
		active.Add(-1)
		return struct{}{}, nil
	})
	_, ts := newTestServer(t, h, Options{})
	ws := mustDial(t, ts, "CP-1")

	for _, id := range []string{"1", "2", "3"} {
		send(t, ws, `[2,"`+id+`","Heartbeat",{}]`)
	}
	for _, want := range []string{"1", "2", "3"} {
		if got := str(readFrame(t, ws)[1]); got != want {
			t.Fatalf("reply id = %s, want %s", got, want)
		}
	}
	if maxActive.Load() != 1 {
		t.Fatalf("handlers overlapped: %d concurrent", maxActive.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "1,2,3" {
		t.Fatalf("handled out of order: %v", order)
	}
}

func connected(t *testing.T, s *Server) <-chan *Conn {
	t.Helper()
	ch := make(chan *Conn, 1)
	s.OnConnect(func(c *Conn) { ch <- c })
	return ch
}

func waitConn(t *testing.T, ch <-chan *Conn) *Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func TestOutboundCall(t *testing.T) {
	s, ts := newTestServer(t, nil, Options{})
	conns := connected(t, s)
	ws := mustDial(t, ts, "CP-1")
	c := waitConn(t, conns)

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := c.Call(context.Background(), "RemoteStartTransaction", map[string]any{"idTag": "tag1"})
		done <- result{p, err}
	}()

	f := readFrame(t, ws)
	if string(f[0]) != "2" || str(f[2]) != "RemoteStartTransaction" {
		t.Fatalf("unexpected call frame %s", f)
	}
	send(t, ws, `[3,`+string(f[1])+`,{"status":"Accepted"}]`)

	r := <-done
	if r.err != nil || string(r.payload) != `{"status":"Accepted"}` {
		t.Fatalf("unexpected result %s, %v", r.payload, r.err)
	}

	go func() {
		p, err := c.Call(context.Background(), "RemoteStopTransaction", map[string]any{"transactionId": 1})
		done <- result{p, err}
	}()
	f = readFrame(t, ws)
	send(t, ws, `[4,`+string(f[1])+`,"NotSupported","nope",{}]`)
	r = <-done
	var perr *Error
	if !errors.As(r.err, &perr) || perr.Code != NotSupported || perr.Description != "nope" {
		t.Fatalf("expected *Error NotSupported, got %v", r.err)
	}
}

func TestOutboundCallTimeout(t *testing.T) {
	s, ts := newTestServer(t, nil, Options{CallTimeout: 50 * time.Millisecond})
	conns := connected(t, s)
	mustDial(t, ts, "CP-1")
	c := waitConn(t, conns)

	_, err := c.Call(context.Background(), "RemoteStopTransaction", map[string]any{"transactionId": 1})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCloseFailsPendingCallAndReportsClose(t *testing.T) {
	s, ts := newTestServer(t, nil, Options{})
	conns := connected(t, s)
	closed := make(chan int, 1)
	s.OnClose(func(_ *Conn, code int, _ string) { closed <- code })

	ws := mustDial(t, ts, "CP-1")
	c := waitConn(t, conns)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "RemoteStopTransaction", map[string]any{"transactionId": 1})
		errc <- err
	}()
	readFrame(t, ws)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released")
	}
	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Fatalf("close code = %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	if _, err := c.Call(context.Background(), "Heartbeat", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("call after close: %v", err)
	}
}

func TestDisconnectPrecedesInFlightHandler(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	h := HandlerFunc(func(context.Context, *Conn, Call) (any, error) {
		close(entered)
		<-release
		return struct{}{}, nil
	})
	s, ts := newTestServer(t, h, Options{})
	var events []string
	var mu sync.Mutex
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	down := make(chan struct{})
	closed := make(chan struct{})
	s.OnDisconnect(func(*Conn) { record("disconnect"); close(down) })
	s.OnClose(func(*Conn, int, string) { record("close"); close(closed) })

	ws := mustDial(t, ts, "CP-1")
	send(t, ws, `[2,"1","Heartbeat",{}]`)
	<-entered
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called while the handler was running")
	}
	select {
	case <-closed:
		t.Fatal("OnClose called before the handler returned")
	default:
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(events, ",") != "disconnect,close" {
		t.Fatalf("events = %v", events)
	}
}

func TestIdentityFromPath(t *testing.T) {
	tests := map[string]string{
		"/ocpp/CP-1":     "CP-1",
		"/ocpp/CP%201":   "CP 1",
		"/ocpp/":         "",
		"":               "",
		"/ocpp/a/b/CP-9": "CP-9",
	}
	for in, want := range tests {
		if got := IdentityFromPath(in); got != want {
			t.Errorf("IdentityFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

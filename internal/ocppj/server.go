// Package ocppj is an OCPP-J RPC transport over websockets: handshake
// authentication, CALL/CALLRESULT/CALLERROR framing, ordered inbound
// dispatch and correlated outbound calls.
package ocppj

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"csms/internal/log"
)

// Options tunes the transport. Zero values take the defaults.
type Options struct {
	Subprotocols   []string
	CallTimeout    time.Duration
	HandlerTimeout time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	InboundQueue   int
}

func (o Options) withDefaults() Options {
	if len(o.Subprotocols) == 0 {
		o.Subprotocols = []string{"ocpp1.6"}
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	if o.InboundQueue <= 0 {
		o.InboundQueue = 16
	}
	return o
}

func (o Options) pongWait() time.Duration {
	if o.PingInterval <= 0 {
		return 0
	}
	return 2 * o.PingInterval
}

// Call is an inbound CALL.
type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

// Handler answers inbound calls. A returned *Error is sent to the peer as
// is; any other error becomes an InternalError.
type Handler interface {
	HandleCall(ctx context.Context, c *Conn, call Call) (any, error)
}

type HandlerFunc func(ctx context.Context, c *Conn, call Call) (any, error)

func (f HandlerFunc) HandleCall(ctx context.Context, c *Conn, call Call) (any, error) {
	return f(ctx, c, call)
}

// Handshake describes a connection attempt before the upgrade.
type Handshake struct {
	Identity    string
	Password    string
	HasPassword bool
	RemoteAddr  string
	Endpoint    string
	Header      http.Header
}

// AuthFunc accepts a handshake by returning the session value to attach to
// the connection, or rejects it with an error. A *RejectError selects the
// HTTP status; any other error is answered with 401.
type AuthFunc func(ctx context.Context, h Handshake) (any, error)

type Server struct {
	opts     Options
	handler  Handler
	auth     AuthFunc
	upgrader websocket.Upgrader
	log      log.Logger

	onConnect    func(*Conn)
	onDisconnect func(*Conn)
	onClose      func(c *Conn, code int, reason string)

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(opts Options, handler Handler, logger log.Logger) *Server {
	opts = opts.withDefaults()
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{
		opts:    opts,
		handler: handler,
		log:     logger,
		upgrader: websocket.Upgrader{
			Subprotocols: opts.Subprotocols,
			// chargers are not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// SetAuth installs the handshake hook. Without one, any non-empty identity
// is accepted.
func (s *Server) SetAuth(fn AuthFunc) { s.auth = fn }

// OnConnect is called after the upgrade, before any message is read.
func (s *Server) OnConnect(fn func(*Conn)) { s.onConnect = fn }

// OnDisconnect is called once per connection as soon as it stops reading,
// while handlers may still be running.
func (s *Server) OnDisconnect(fn func(*Conn)) { s.onDisconnect = fn }

// OnClose is called once per connection after its last handler returned.
func (s *Server) OnClose(fn func(c *Conn, code int, reason string)) { s.onClose = fn }

func (s *Server) Options() Options { return s.opts }

// IdentityFromPath returns the last path segment, unescaped.
func IdentityFromPath(p string) string {
	if p == "" || p[len(p)-1] == '/' {
		return ""
	}
	id, err := url.PathUnescape(path.Base(p))
	if err != nil || id == "." || id == "/" {
		return ""
	}
	return id
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if offered := websocket.Subprotocols(r); len(offered) > 0 && !overlaps(offered, s.opts.Subprotocols) {
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}

	hs := Handshake{
		Identity:   IdentityFromPath(r.URL.EscapedPath()),
		RemoteAddr: r.RemoteAddr,
		Endpoint:   r.URL.Path,
		Header:     r.Header.Clone(),
	}
	if _, pass, ok := r.BasicAuth(); ok {
		hs.Password, hs.HasPassword = pass, true
	}

	var session any
	if s.auth != nil {
		var err error
		session, err = s.auth(r.Context(), hs)
		if err != nil {
			status, reason := http.StatusUnauthorized, "Unauthorized"
			var rej *RejectError
			if errors.As(err, &rej) {
				status, reason = rej.Status, rej.Reason
			}
			s.log.Warn("handshake rejected", "chargePointId", hs.Identity, "remoteAddr", hs.RemoteAddr, "status", status)
			http.Error(w, reason, status)
			return
		}
	} else if hs.Identity == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Warn("websocket upgrade failed", "chargePointId", hs.Identity, "error", err)
		return
	}

	c := newConn(ws, hs.Identity, hs.RemoteAddr, session, s.opts, s.handler, s.log.WithValues("chargePointId", hs.Identity))
	s.track(c, true)
	defer s.track(c, false)

	if s.onConnect != nil {
		s.onConnect(c)
	}
	code, reason := c.run(func() {
		if s.onDisconnect != nil {
			s.onDisconnect(c)
		}
	})
	if s.onClose != nil {
		s.onClose(c, code, reason)
	}
}

func (s *Server) track(c *Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// Shutdown stops accepting connections, closes the open ones with 1001 and
// waits for their close callbacks to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func overlaps(offered, supported []string) bool {
	for _, p := range offered {
		if slices.Contains(supported, p) {
			return true
		}
	}
	return false
}

package ocppj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"csms/internal/log"
)

type callResult struct {
	payload json.RawMessage
	err     error
}

type inboundCall struct {
	id      string
	action  string
	payload json.RawMessage
}

// Conn is one accepted charge point connection. Inbound calls are handled
// one at a time in arrival order; outbound calls are correlated by id.
type Conn struct {
	identity    string
	remoteAddr  string
	subprotocol string
	session     any

	ws      *websocket.Conn
	opts    Options
	handler Handler
	log     log.Logger

	writeMu sync.Mutex
	callSem chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan callResult

	inbound chan inboundCall

	closeOnce   sync.Once
	closing     chan struct{}
	closeCode   int
	closeReason string
}

func newConn(ws *websocket.Conn, identity, remoteAddr string, session any, opts Options, h Handler, logger log.Logger) *Conn {
	return &Conn{
		identity:    identity,
		remoteAddr:  remoteAddr,
		subprotocol: ws.Subprotocol(),
		session:     session,
		ws:          ws,
		opts:        opts,
		handler:     h,
		log:         logger,
		callSem:     make(chan struct{}, 1),
		pending:     make(map[string]chan callResult),
		inbound:     make(chan inboundCall, opts.InboundQueue),
		closing:     make(chan struct{}),
	}
}

// ID is the charge point identity taken from the connection URL.
func (c *Conn) ID() string { return c.identity }

// Session is the value returned by the auth hook for this connection.
func (c *Conn) Session() any { return c.session }

func (c *Conn) RemoteAddr() string { return c.remoteAddr }

func (c *Conn) Subprotocol() string { return c.subprotocol }

// Done is closed once the connection starts shutting down.
func (c *Conn) Done() <-chan struct{} { return c.closing }

// Close sends a close frame with code and reason and tears the connection
// down. Only the first call has an effect.
func (c *Conn) Close(code int, reason string) error {
	select {
	case <-c.closing:
		return nil
	default:
	}
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.opts.WriteTimeout))
	c.shutdown(code, reason)
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *Conn) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.closing)
		_ = c.ws.Close()
	})
}

// Call sends a CALL and waits for the matching CALLRESULT or CALLERROR. A
// CALLERROR is returned as *Error. Without a deadline on ctx the configured
// call timeout applies. At most one outbound call is in flight per connection.
func (c *Conn) Call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	select {
	case c.callSem <- struct{}{}:
		defer func() { <-c.callSem }()
	case <-c.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	}

	id := uuid.NewString()
	data, err := encodeCall(id, action, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}

	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(data); err != nil {
		select {
		case <-c.closing:
			return nil, ErrClosed
		default:
			return nil, fmt.Errorf("send %s: %w", action, err)
		}
	}
	c.log.Debug("call sent", "action", action, "messageId", id)

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-c.closing:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) reply(id string, result any, herr error) {
	var (
		data []byte
		err  error
	)
	if herr != nil {
		data, err = encodeCallError(id, asError(herr))
	} else {
		data, err = encodeCallResult(id, result)
		if err != nil {
			c.log.Error(err, "encode call result", "messageId", id)
			data, err = encodeCallError(id, &Error{Code: InternalError, Description: "cannot encode result"})
		}
	}
	if err != nil {
		c.log.Error(err, "encode reply", "messageId", id)
		return
	}
	if err := c.write(data); err != nil {
		c.log.Warn("write reply failed", "messageId", id, "error", err)
	}
}

// run drives the connection until it closes and returns the close code and
// reason. down is called once reading stops; every handler started for this
// connection has returned by the time run returns.
func (c *Conn) run(down func()) (int, string) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatchLoop()
	}()
	if c.opts.PingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.pingLoop()
		}()
	}

	code, reason := c.readLoop()
	c.shutdown(code, reason)
	down()
	wg.Wait()
	return c.closeCode, c.closeReason
}

func (c *Conn) readLoop() (int, string) {
	if c.opts.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.opts.MaxMessageSize)
	}
	pongWait := c.opts.pongWait()
	if pongWait > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code, ce.Text
			}
			return websocket.CloseAbnormalClosure, err.Error()
		}
		if pongWait > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		}
		c.handleMessage(data)
	}
}

func (c *Conn) handleMessage(data []byte) {
	f, err := parseFrame(data)
	if err != nil {
		var fe *frameError
		if errors.As(err, &fe) && fe.id != "" {
			c.reply(fe.id, nil, &Error{Code: fe.code, Description: fe.msg})
			return
		}
		c.log.Warn("dropping malformed message", "error", err)
		return
	}

	switch f.typ {
	case typeCall:
		select {
		case c.inbound <- inboundCall{id: f.id, action: f.action, payload: f.payload}:
		case <-c.closing:
		}
	case typeCallResult, typeCallError:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.id]
		c.pendingMu.Unlock()
		if !ok {
			c.log.Warn("reply for unknown call", "messageId", f.id)
			return
		}
		res := callResult{payload: f.payload}
		if f.err != nil {
			res = callResult{err: f.err}
		}
		select {
		case ch <- res:
		default:
		}
	}
}

func (c *Conn) dispatchLoop() {
	for {
		select {
		case <-c.closing:
			return
		case call := <-c.inbound:
			select {
			case <-c.closing:
				return
			default:
			}
			c.dispatch(call)
		}
	}
}

func (c *Conn) dispatch(call inboundCall) {
	ctx := context.Background()
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}

	result, err := c.safeHandle(ctx, call)
	c.reply(call.id, result, err)
}

func (c *Conn) safeHandle(ctx context.Context, call inboundCall) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(fmt.Errorf("panic: %v", r), "handler panicked", "action", call.action, "messageId", call.id)
			result, err = nil, &Error{Code: InternalError, Description: "internal error"}
		}
	}()
	return c.handler.HandleCall(ctx, c, Call{ID: call.id, Action: call.action, Payload: call.payload})
}

func (c *Conn) pingLoop() {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.closing:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.log.Debug("ping failed", "error", err)
				c.shutdown(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

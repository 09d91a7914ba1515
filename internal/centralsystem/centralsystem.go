// Package centralsystem routes OCPP calls from charge points to the store
// and operator commands to charge points.
package centralsystem

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"csms/internal/log"
	"csms/internal/models"
	"csms/internal/notifier"
	"csms/internal/ocppj"
	"csms/internal/services"
)

// DefaultHeartbeatInterval is the interval in seconds returned in
// BootNotification replies.
const DefaultHeartbeatInterval = 300

type Options struct {
	Auth              AuthGate
	ChargePoints      *services.ChargePointService
	Ledger            *services.TransactionLedger
	Auditor           *services.Auditor
	Notifier          notifier.Notifier
	Logger            log.Logger
	HeartbeatInterval int
}

type CentralSystem struct {
	registry     *Registry
	gateway      *Gateway
	auth         AuthGate
	chargePoints *services.ChargePointService
	ledger       *services.TransactionLedger
	auditor      *services.Auditor
	notifier     notifier.Notifier
	log          log.Logger
	now          func() time.Time
	interval     int
}

func New(o Options) (*CentralSystem, error) {
	if o.Auth == nil || o.ChargePoints == nil || o.Ledger == nil {
		return nil, errors.New("centralsystem: auth gate, charge point service and ledger are required")
	}
	if o.Notifier == nil {
		o.Notifier = notifier.Nop{}
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	registry := NewRegistry()
	return &CentralSystem{
		registry:     registry,
		gateway:      NewGateway(registry, o.Auditor, o.Logger),
		auth:         o.Auth,
		chargePoints: o.ChargePoints,
		ledger:       o.Ledger,
		auditor:      o.Auditor,
		notifier:     o.Notifier,
		log:          o.Logger.WithName("centralsystem"),
		now:          func() time.Time { return time.Now().UTC() },
		interval:     o.HeartbeatInterval,
	}, nil
}

func (cs *CentralSystem) WithClock(now func() time.Time) *CentralSystem {
	cs.now = now
	return cs
}

func (cs *CentralSystem) Registry() *Registry { return cs.registry }

// Gateway returns the operator command gateway bound to this registry.
func (cs *CentralSystem) Gateway() *Gateway { return cs.gateway }

// Connected lists the identities with a registered live connection.
func (cs *CentralSystem) Connected() []string { return cs.registry.List() }

// Attach installs the handshake and lifecycle hooks on srv. srv must have
// been created with cs as its handler.
func (cs *CentralSystem) Attach(srv *ocppj.Server) {
	srv.SetAuth(cs.authenticate)
	srv.OnConnect(cs.connected)
	srv.OnDisconnect(cs.disconnecting)
	srv.OnClose(cs.closed)
}

func (cs *CentralSystem) authenticate(_ context.Context, h ocppj.Handshake) (any, error) {
	s, err := cs.auth.Handshake(h)
	if err != nil {
		cs.log.Warn("handshake rejected", "chargePointId", h.Identity, "remoteAddr", h.RemoteAddr, "error", err)
		cs.audit(models.AuditEntry{
			Level:         models.AuditWarn,
			Message:       "connection rejected: " + err.Error(),
			ChargePointId: h.Identity,
			MessageType:   models.MessageSystem,
			Direction:     models.DirectionServer,
			Payload:       services.Payload(map[string]string{"remoteAddr": h.RemoteAddr}),
		})
		return nil, err
	}
	return s, nil
}

func (cs *CentralSystem) connected(c *ocppj.Conn) {
	s := sessionOf(c)
	cs.log.Info("charge point connected", "chargePointId", c.ID(), "remoteAddr", c.RemoteAddr(), "subprotocol", c.Subprotocol(), "authMode", cs.auth.Mode())
	cs.audit(models.AuditEntry{
		Level:         models.AuditInfo,
		Message:       "connected",
		ChargePointId: c.ID(),
		MessageType:   models.MessageSystem,
		Direction:     models.DirectionServer,
		Payload:       services.Payload(map[string]string{"remoteAddr": c.RemoteAddr(), "subprotocol": c.Subprotocol()}),
	})
	if s != nil && s.Authenticated() {
		cs.register(c.ID(), c)
	}
}

// register adds h and evicts the connection it replaces.
func (cs *CentralSystem) register(identity string, h Handle) {
	prev := cs.registry.Register(identity, h)
	if prev == nil {
		return
	}
	cs.log.Warn("identity reconnected, closing stale connection", "chargePointId", identity)
	if err := prev.Close(websocket.ClosePolicyViolation, "replaced by new connection"); err != nil {
		cs.log.Debug("close stale connection", "chargePointId", identity, "error", err)
	}
}

// disconnecting drops c from the registry as soon as it stops reading, so
// remote commands report not-connected while its last handler finishes.
func (cs *CentralSystem) disconnecting(c *ocppj.Conn) {
	if !cs.registry.Unregister(c.ID(), c) {
		return
	}
	if s := sessionOf(c); s != nil {
		s.unregistered.Store(true)
	}
}

func (cs *CentralSystem) closed(c *ocppj.Conn, code int, reason string) {
	// a boot handler still running at disconnect may have registered c
	removed := cs.registry.Unregister(c.ID(), c)
	if s := sessionOf(c); s != nil && s.unregistered.Load() {
		removed = true
	}
	cs.log.Info("charge point disconnected", "chargePointId", c.ID(), "code", code, "reason", reason, "unregistered", removed)
	cs.audit(models.AuditEntry{
		Level:         models.AuditInfo,
		Message:       "disconnected",
		ChargePointId: c.ID(),
		MessageType:   models.MessageSystem,
		Direction:     models.DirectionServer,
		Payload:       services.Payload(map[string]any{"code": code, "reason": reason}),
	})
	if !removed {
		// replaced by a newer connection, or never authenticated
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cs.chargePoints.MarkDisconnected(ctx, c.ID())
	cs.notify(notifier.EventDisconnected, c.ID(), map[string]any{"code": code, "reason": reason})
}

func sessionOf(c *ocppj.Conn) *Session {
	s, _ := c.Session().(*Session)
	return s
}

func (cs *CentralSystem) audit(e models.AuditEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = cs.now()
	}
	cs.auditor.Record(e)
}

func (cs *CentralSystem) notify(eventType, identity string, data any) {
	cs.notifier.Publish(notifier.Event{Type: eventType, ChargePointId: identity, At: cs.now(), Data: data})
}

// Package notifier publishes charge point lifecycle events for downstream
// consumers.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"csms/internal/log"
)

// Event types.
const (
	EventBoot         = "boot"
	EventStatus       = "status"
	EventDisconnected = "disconnected"
	EventTxStarted    = "transaction-started"
	EventTxStopped    = "transaction-stopped"
)

type Event struct {
	Type          string    `json:"type"`
	ChargePointId string    `json:"chargePointId"`
	At            time.Time `json:"at"`
	Data          any       `json:"data,omitempty"`
}

// Notifier must not block the caller.
type Notifier interface {
	Publish(e Event)
}

type Nop struct{}

func (Nop) Publish(Event) {}

// MQTT publishes events through an auto-reconnecting paho connection. Events
// are queued; a full queue drops the event.
type MQTT struct {
	opts  *Options
	queue chan Event
	log   log.Logger
}

func NewMQTT(opts *Options, logger log.Logger) (*MQTT, error) {
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid mqtt options: %v", errs)
	}
	if !opts.Enabled() {
		return nil, fmt.Errorf("mqtt.broker is not set")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 256
	}
	return &MQTT{opts: opts, queue: make(chan Event, size), log: logger.WithName("mqtt")}, nil
}

func (m *MQTT) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case m.queue <- e:
	default:
		m.log.Warn("event queue full, dropping event", "type", e.Type, "chargePointId", e.ChargePointId)
	}
}

// Topic returns the topic an event for identity is published to. MQTT
// separators and wildcards in the identity are replaced.
func Topic(prefix, identity, eventType string) string {
	id := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(identity)
	return strings.TrimSuffix(prefix, "/") + "/" + id + "/" + eventType
}

// Run connects to the broker and publishes queued events until ctx is done.
func (m *MQTT) Run(ctx context.Context) error {
	broker, err := url.Parse(m.opts.Broker)
	if err != nil {
		return err
	}
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     m.opts.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                5 * time.Second,
		ConnectUsername:               m.opts.Username,
		ConnectPassword:               []byte(m.opts.Password),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			m.log.Info("connected to broker", "broker", m.opts.Broker)
		},
		OnConnectError: func(err error) {
			m.log.Warn("broker connection failed, retrying", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: m.opts.ClientID,
			OnClientError: func(err error) {
				m.log.Error(err, "mqtt client error")
			},
		},
	}
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cm.Disconnect(dctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-m.queue:
			m.send(ctx, cm, e)
		}
	}
}

func (m *MQTT) send(ctx context.Context, cm *autopaho.ConnectionManager, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		m.log.Error(err, "encode event", "type", e.Type)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(pctx); err != nil {
		m.log.Warn("broker unavailable, dropping event", "type", e.Type, "chargePointId", e.ChargePointId)
		return
	}
	_, err = cm.Publish(pctx, &paho.Publish{
		Topic:   Topic(m.opts.TopicPrefix, e.ChargePointId, e.Type),
		QoS:     byte(m.opts.QoS),
		Payload: payload,
	})
	if err != nil {
		m.log.Warn("publish event failed", "type", e.Type, "chargePointId", e.ChargePointId, "error", err)
	}
}

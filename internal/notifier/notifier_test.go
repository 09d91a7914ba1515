package notifier

import (
	"testing"

	"csms/internal/log"
)

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, identity, typ, want string
	}{
		{"csms/chargers", "CP-1", EventBoot, "csms/chargers/CP-1/boot"},
		{"csms/chargers/", "CP-1", EventStatus, "csms/chargers/CP-1/status"},
		{"x", "site/a+b#", EventDisconnected, "x/site_a_b_/disconnected"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.identity, tt.typ); got != tt.want {
			t.Errorf("Topic(%q, %q, %q) = %q, want %q", tt.prefix, tt.identity, tt.typ, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	o := NewOptions()
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("defaults must validate: %v", errs)
	}
	o.Broker = "not a url"
	o.QoS = 3
	if errs := o.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestNewMQTTRequiresBroker(t *testing.T) {
	if _, err := NewMQTT(NewOptions(), log.NewNop()); err == nil {
		t.Fatal("expected error without broker")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	o := NewOptions()
	o.Broker = "tcp://127.0.0.1:1883"
	o.QueueSize = 1
	m, err := NewMQTT(o, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	m.Publish(Event{Type: EventBoot, ChargePointId: "CP-1"})
	m.Publish(Event{Type: EventStatus, ChargePointId: "CP-1"})
	if len(m.queue) != 1 {
		t.Fatalf("queue length = %d", len(m.queue))
	}
	e := <-m.queue
	if e.Type != EventBoot || e.At.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

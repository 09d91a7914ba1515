package services

import (
	"context"
	"encoding/json"
	"time"

	"csms/internal/log"
	"csms/internal/models"
	"csms/internal/store"
)

// Auditor appends audit entries asynchronously through a bounded queue. A
// full queue drops the entry; nothing here ever blocks a charger.
type Auditor struct {
	sink  store.AuditLog
	queue chan models.AuditEntry
	log   log.Logger
	now   func() time.Time
}

func NewAuditor(sink store.AuditLog, size int, logger log.Logger) *Auditor {
	if size <= 0 {
		size = 1024
	}
	return &Auditor{sink: sink, queue: make(chan models.AuditEntry, size), log: logger, now: utcNow}
}

// Record enqueues e. Payload values that are not already JSON are marshalled.
func (a *Auditor) Record(e models.AuditEntry) {
	if a == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.now()
	}
	select {
	case a.queue <- e:
	default:
		a.log.Warn("audit queue full, dropping entry", "chargePointId", e.ChargePointId, "action", e.Action)
	}
}

// Payload marshals v for an AuditEntry, returning nil on failure.
func Payload(v any) json.RawMessage {
	switch p := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return p
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Run writes queued entries until ctx is done, then drains what is left.
func (a *Auditor) Run(ctx context.Context) error {
	for {
		select {
		case e := <-a.queue:
			a.write(ctx, e)
		case <-ctx.Done():
			a.drain()
			return nil
		}
	}
}

func (a *Auditor) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-a.queue:
			a.write(ctx, e)
		default:
			return
		}
	}
}

func (a *Auditor) write(ctx context.Context, e models.AuditEntry) {
	if err := a.sink.Append(ctx, e); err != nil {
		a.log.Error(err, "append audit entry", "chargePointId", e.ChargePointId, "action", e.Action)
	}
}

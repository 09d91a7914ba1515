package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"csms/internal/boltstore"
	"csms/internal/log"
	"csms/internal/models"
	"csms/internal/ocpp"
	"csms/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newBolt(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestLedgerStartStop(t *testing.T) {
	st := newBolt(t)
	l := NewTransactionLedger(st.Transactions(), log.NewNop()).WithClock(clock)
	ctx := context.Background()

	tx, err := l.Start(ctx, StartParams{ChargePointId: "CP-1", ConnectorId: 1, IdTag: "tag1", MeterStart: ptr(int64(1000)), OcppTransactionId: ptr(77)})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != models.TransactionStarted || !tx.StartTime.Equal(fixedNow) || *tx.OcppTransactionId != 77 {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	done, err := l.Stop(ctx, tx.Id, 2500, ptr("EVDisconnected"))
	if err != nil {
		t.Fatal(err)
	}
	if *done.EnergyConsumed != 1.5 || done.Status != models.TransactionCompleted || *done.StopReason != "EVDisconnected" {
		t.Fatalf("unexpected stop result %+v", done)
	}

	again, err := l.Stop(ctx, tx.Id, 9000, nil)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if *again.MeterStop != 2500 {
		t.Fatal("repeated stop must not change the record")
	}

	if _, err := l.Stop(ctx, 404, 1, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type cancelledTxs struct {
	store.Transactions
}

func (cancelledTxs) Stop(context.Context, int64, models.StopData) (*models.Transaction, error) {
	return nil, store.ErrInvalidTransition
}

func (cancelledTxs) Get(_ context.Context, id int64) (*models.Transaction, error) {
	return &models.Transaction{Id: id, Status: models.TransactionCancelled}, nil
}

func TestLedgerStopCancelled(t *testing.T) {
	l := NewTransactionLedger(cancelledTxs{}, log.NewNop())
	_, err := l.Stop(context.Background(), 1, 10, nil)
	if !errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLedgerTelemetry(t *testing.T) {
	st := newBolt(t)
	l := NewTransactionLedger(st.Transactions(), log.NewNop()).WithClock(clock)
	ctx := context.Background()

	tx, err := l.Start(ctx, StartParams{ChargePointId: "CP-1", ConnectorId: 1, IdTag: "t"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.RecordTelemetry(ctx, tx.Id, ocpp.Reading{Power: ptr(11000.0), Energy: ptr(350.0)})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TransactionInProgress || *got.CurrentPower != 11000 || *got.CurrentEnergy != 350 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestChargePointStatusNormalizesNoError(t *testing.T) {
	st := newBolt(t)
	s := NewChargePointService(st.ChargePoints(), log.NewNop()).WithClock(clock)
	ctx := context.Background()

	if _, err := s.RecordStatus(ctx, "CP-1", ptr(1), ocpp.NoError, "Available"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("status before boot: expected ErrNotFound, got %v", err)
	}
	if _, err := s.RecordBoot(ctx, "CP-1"); err != nil {
		t.Fatal(err)
	}

	cp, err := s.RecordStatus(ctx, "CP-1", ptr(1), "GroundFailure", "Faulted")
	if err != nil {
		t.Fatal(err)
	}
	if cp.ErrorCode == nil || *cp.ErrorCode != "GroundFailure" || cp.Status != models.StatusFaulted {
		t.Fatalf("unexpected %+v", cp)
	}

	cp, err = s.RecordStatus(ctx, "CP-1", ptr(1), ocpp.NoError, "Charging")
	if err != nil {
		t.Fatal(err)
	}
	if cp.ErrorCode != nil {
		t.Fatalf("NoError must be stored as absent, got %q", *cp.ErrorCode)
	}
	if !cp.LastSeen.Equal(fixedNow) {
		t.Fatalf("lastSeen = %v", cp.LastSeen)
	}
}

func TestChargePointHeartbeatCreatesRecord(t *testing.T) {
	st := newBolt(t)
	s := NewChargePointService(st.ChargePoints(), log.NewNop()).WithClock(clock)

	cp, err := s.RecordHeartbeat(context.Background(), "CP-new")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != models.StatusAvailable || !cp.LastHeartbeat.Equal(fixedNow) {
		t.Fatalf("unexpected %+v", cp)
	}
}

func TestMarkDisconnected(t *testing.T) {
	st := newBolt(t)
	s := NewChargePointService(st.ChargePoints(), log.NewNop()).WithClock(clock)
	ctx := context.Background()

	// unknown identity: swallowed
	s.MarkDisconnected(ctx, "ghost")

	if _, err := s.RecordBoot(ctx, "CP-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordStatus(ctx, "CP-1", ptr(1), "GroundFailure", "Faulted"); err != nil {
		t.Fatal(err)
	}
	s.MarkDisconnected(ctx, "CP-1")
	cp, err := s.Get(ctx, "CP-1")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != models.StatusDisconnected {
		t.Fatalf("status = %s", cp.Status)
	}
	if cp.ErrorCode == nil || *cp.ErrorCode != "GroundFailure" {
		t.Fatalf("disconnect must keep the last errorCode, got %v", cp.ErrorCode)
	}
}

func TestAuditorWritesAndDrains(t *testing.T) {
	st := newBolt(t)
	a := NewAuditor(st.Audit(), 8, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		a.Record(models.AuditEntry{Level: models.AuditInfo, Message: "call", ChargePointId: "CP-1", MessageType: models.MessageCall, Direction: models.DirectionInbound, Payload: Payload(map[string]int{"i": i})})
	}
	cancel()
	<-done

	items, err := st.Audit().List(context.Background(), "CP-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(items))
	}
}

func TestAuditorDropsWhenFull(t *testing.T) {
	st := newBolt(t)
	a := NewAuditor(st.Audit(), 1, log.NewNop())
	a.Record(models.AuditEntry{Message: "one"})
	a.Record(models.AuditEntry{Message: "two"})
	if len(a.queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(a.queue))
	}

	var nilAuditor *Auditor
	nilAuditor.Record(models.AuditEntry{Message: "ignored"})
}

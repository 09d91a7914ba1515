package boltstore_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"csms/internal/boltstore"
	"csms/internal/models"
	"csms/internal/store"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestUpsertOnBootIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := s.ChargePoints().UpsertOnBoot(ctx, "CP-1", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != models.StatusAvailable {
		t.Fatalf("status = %s, want Available", first.Status)
	}

	second, err := s.ChargePoints().UpsertOnBoot(ctx, "CP-1", at.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error on second boot: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("createdAt should not change on repeated boot")
	}
	if !second.LastHeartbeat.Equal(at.Add(time.Minute)) {
		t.Fatalf("lastHeartbeat = %v", second.LastHeartbeat)
	}

	all, err := s.ChargePoints().List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
}

func TestUpdateStatusRequiresRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ChargePoints().UpdateStatus(ctx, "ghost", models.StatusUpdate{Status: models.StatusFaulted, At: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.ChargePoints().UpsertOnBoot(ctx, "CP-2", time.Now()); err != nil {
		t.Fatal(err)
	}
	cp, err := s.ChargePoints().UpdateStatus(ctx, "CP-2", models.StatusUpdate{
		Status:      models.StatusFaulted,
		ErrorCode:   ptr("GroundFailure"),
		ConnectorId: ptr(2),
		At:          time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Status != models.StatusFaulted || *cp.ErrorCode != "GroundFailure" || *cp.ConnectorId != 2 {
		t.Fatalf("unexpected record %+v", cp)
	}

	cp, err = s.ChargePoints().UpdateStatus(ctx, "CP-2", models.StatusUpdate{Status: models.StatusDisconnected, KeepErrorCode: true, At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if cp.ErrorCode == nil || *cp.ErrorCode != "GroundFailure" {
		t.Fatalf("errorCode should be kept, got %v", cp.ErrorCode)
	}

	cp, err = s.ChargePoints().UpdateStatus(ctx, "CP-2", models.StatusUpdate{Status: models.StatusAvailable, At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if cp.ErrorCode != nil {
		t.Fatalf("errorCode should be cleared, got %q", *cp.ErrorCode)
	}
}

func TestTransactionStopComputesEnergy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tx, err := s.Transactions().Create(ctx, store.NewTransaction{
		ChargePointId: "CP-1",
		ConnectorId:   1,
		IdTag:         "tag1",
		MeterStart:    ptr(int64(1000)),
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Id != 1 || tx.Status != models.TransactionStarted {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	stopped, err := s.Transactions().Stop(ctx, tx.Id, models.StopData{MeterStop: 2500, EndTime: start.Add(time.Hour), Reason: ptr("Local")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stopped.Status != models.TransactionCompleted {
		t.Fatalf("status = %s", stopped.Status)
	}
	if stopped.EnergyConsumed == nil || *stopped.EnergyConsumed != 1.5 {
		t.Fatalf("energyConsumed = %v, want 1.5", stopped.EnergyConsumed)
	}
	if stopped.EndTime == nil || stopped.MeterStop == nil {
		t.Fatal("endTime and meterStop must be set together")
	}

	_, err = s.Transactions().Stop(ctx, tx.Id, models.StopData{MeterStop: 9999, EndTime: time.Now()})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second stop, got %v", err)
	}
	got, err := s.Transactions().Get(ctx, tx.Id)
	if err != nil {
		t.Fatal(err)
	}
	if *got.MeterStop != 2500 || *got.EnergyConsumed != 1.5 {
		t.Fatalf("second stop must not change the record: %+v", got)
	}
}

func TestTransactionStopWithoutMeterStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Transactions().Create(ctx, store.NewTransaction{ChargePointId: "CP-1", ConnectorId: 1, IdTag: "t", StartTime: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	stopped, err := s.Transactions().Stop(ctx, tx.Id, models.StopData{MeterStop: 500, EndTime: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if stopped.EnergyConsumed != nil {
		t.Fatalf("energyConsumed should stay unset, got %v", *stopped.EnergyConsumed)
	}
}

func TestTransactionUnknownId(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{0, -1, 42} {
		if _, err := s.Transactions().Stop(ctx, id, models.StopData{MeterStop: 1, EndTime: time.Now()}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Stop(%d): expected ErrNotFound, got %v", id, err)
		}
		if _, err := s.Transactions().Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Get(%d): expected ErrNotFound, got %v", id, err)
		}
	}
}

func TestTransactionTelemetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.Transactions().Create(ctx, store.NewTransaction{ChargePointId: "CP-1", ConnectorId: 1, IdTag: "t", StartTime: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Transactions().UpdateTelemetry(ctx, tx.Id, models.Telemetry{Power: ptr(7200.0)}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.TransactionInProgress || *got.CurrentPower != 7200 {
		t.Fatalf("unexpected transaction %+v", got)
	}

	got, err = s.Transactions().UpdateTelemetry(ctx, tx.Id, models.Telemetry{Energy: ptr(1234.0)}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if *got.CurrentPower != 7200 || *got.CurrentEnergy != 1234 {
		t.Fatalf("telemetry merge failed: %+v", got)
	}

	if _, err := s.Transactions().Stop(ctx, tx.Id, models.StopData{MeterStop: 1, EndTime: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transactions().UpdateTelemetry(ctx, tx.Id, models.Telemetry{Power: ptr(1.0)}, time.Now()); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after stop, got %v", err)
	}
}

func TestListByChargePointNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		for _, cp := range []string{"A", "B"} {
			if _, err := s.Transactions().Create(ctx, store.NewTransaction{ChargePointId: cp, ConnectorId: 1, IdTag: fmt.Sprint(i), StartTime: time.Now()}); err != nil {
				t.Fatal(err)
			}
		}
	}

	items, err := s.Transactions().ListByChargePoint(ctx, "A", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].IdTag != "2" || items[1].IdTag != "1" {
		t.Fatalf("unexpected order: %s, %s", items[0].IdTag, items[1].IdTag)
	}
}

func TestConcurrentBootsDistinctIdentities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("CP-%d", i)
			if _, err := s.ChargePoints().UpsertOnBoot(ctx, id, time.Unix(int64(i), 0).UTC()); err != nil {
				t.Errorf("boot %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		cp, err := s.ChargePoints().Get(ctx, fmt.Sprintf("CP-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if !cp.LastHeartbeat.Equal(time.Unix(int64(i), 0)) {
			t.Errorf("%s has heartbeat %v from another identity", cp.ChargePointId, cp.LastHeartbeat)
		}
	}
}

func TestAuditAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cp := range []string{"A", "B", "A"} {
		if err := s.Audit().Append(ctx, models.AuditEntry{Level: models.AuditInfo, Message: "call", ChargePointId: cp, MessageType: models.MessageCall, Direction: models.DirectionInbound}); err != nil {
			t.Fatal(err)
		}
	}
	items, err := s.Audit().List(ctx, "A", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Id != 3 || items[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected audit entries %+v", items)
	}
}

func TestListByChargePointCapsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 205; i++ {
		if _, err := s.Transactions().Create(ctx, store.NewTransaction{ChargePointId: "CP-1", ConnectorId: 1, IdTag: "t", StartTime: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	items, err := s.Transactions().ListByChargePoint(ctx, "CP-1", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 200 {
		t.Fatalf("expected 200 items, got %d", len(items))
	}
}

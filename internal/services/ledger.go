package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"csms/internal/log"
	"csms/internal/models"
	"csms/internal/ocpp"
	"csms/internal/store"
)

// ErrAlreadyCompleted is returned by Stop for a transaction that was stopped
// before. The stored record is returned unchanged alongside it.
var ErrAlreadyCompleted = errors.New("transaction already completed")

// TransactionLedger owns the charging-session lifecycle.
type TransactionLedger struct {
	store store.Transactions
	log   log.Logger
	now   func() time.Time
}

func NewTransactionLedger(txs store.Transactions, logger log.Logger) *TransactionLedger {
	return &TransactionLedger{store: txs, log: logger, now: utcNow}
}

func (l *TransactionLedger) WithClock(now func() time.Time) *TransactionLedger {
	l.now = now
	return l
}

type StartParams struct {
	ChargePointId     string
	ConnectorId       int
	IdTag             string
	MeterStart        *int64
	OcppTransactionId *int
}

// Start records a new transaction in status Started with startTime now.
func (l *TransactionLedger) Start(ctx context.Context, p StartParams) (*models.Transaction, error) {
	tx, err := l.store.Create(ctx, store.NewTransaction{
		ChargePointId:     p.ChargePointId,
		ConnectorId:       p.ConnectorId,
		IdTag:             p.IdTag,
		OcppTransactionId: p.OcppTransactionId,
		MeterStart:        p.MeterStart,
		StartTime:         l.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction for %s: %w", p.ChargePointId, err)
	}
	l.log.Info("transaction started", "transactionId", tx.Id, "chargePointId", tx.ChargePointId, "connectorId", tx.ConnectorId)
	return tx, nil
}

// Stop completes transaction id. energyConsumed is derived by the store in the
// same atomic update that sets the terminal fields.
func (l *TransactionLedger) Stop(ctx context.Context, id int64, meterStop int64, reason *string) (*models.Transaction, error) {
	tx, err := l.store.Stop(ctx, id, models.StopData{MeterStop: meterStop, EndTime: l.now(), Reason: reason})
	if errors.Is(err, store.ErrInvalidTransition) {
		cur, gerr := l.store.Get(ctx, id)
		if gerr == nil && cur.Status == models.TransactionCompleted {
			return cur, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("stop transaction %d: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("stop transaction %d: %w", id, err)
	}
	if tx.EnergyConsumed == nil {
		l.log.Warn("missing meterStart, energy not computed", "transactionId", id)
	} else {
		l.log.Info("transaction completed", "transactionId", id, "energyConsumed", *tx.EnergyConsumed)
	}
	return tx, nil
}

// RecordTelemetry stores live power/energy and moves Started to InProgress.
func (l *TransactionLedger) RecordTelemetry(ctx context.Context, id int64, r ocpp.Reading) (*models.Transaction, error) {
	tx, err := l.store.UpdateTelemetry(ctx, id, models.Telemetry{Power: r.Power, Energy: r.Energy}, l.now())
	if err != nil {
		return nil, fmt.Errorf("update telemetry of transaction %d: %w", id, err)
	}
	return tx, nil
}

func (l *TransactionLedger) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	return l.store.Get(ctx, id)
}

func (l *TransactionLedger) ListByChargePoint(ctx context.Context, cp string, limit int) ([]models.Transaction, error) {
	return l.store.ListByChargePoint(ctx, cp, limit)
}

// Package store declares the persistence ports used by the central system.
// Implementations live in internal/repo (Postgres) and internal/boltstore.
package store

import (
	"context"
	"errors"
	"time"

	"csms/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition is returned when a transaction is not in a state
	// that allows the requested lifecycle event.
	ErrInvalidTransition = errors.New("store: invalid transaction transition")
)

// ChargePoints persists ChargePointRecords keyed by identity.
type ChargePoints interface {
	// UpsertOnBoot creates the record if absent and sets status Available with
	// lastHeartbeat and lastSeen at `at`.
	UpsertOnBoot(ctx context.Context, id string, at time.Time) (*models.ChargePoint, error)
	// TouchHeartbeat behaves like UpsertOnBoot; a missing record is created.
	TouchHeartbeat(ctx context.Context, id string, at time.Time) (*models.ChargePoint, error)
	// UpdateStatus fails with ErrNotFound when no record exists.
	UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.ChargePoint, error)
	UpdateTelemetry(ctx context.Context, id string, t models.Telemetry, at time.Time) error
	Get(ctx context.Context, id string) (*models.ChargePoint, error)
	List(ctx context.Context) ([]models.ChargePoint, error)
}

// NewTransaction holds the fields recorded by StartTransaction.
type NewTransaction struct {
	ChargePointId     string
	ConnectorId       int
	IdTag             string
	OcppTransactionId *int
	MeterStart        *int64
	StartTime         time.Time
}

// Transactions persists charging sessions keyed by a store-assigned id.
type Transactions interface {
	Create(ctx context.Context, tx NewTransaction) (*models.Transaction, error)
	// UpdateTelemetry records live readings and moves Started to InProgress.
	// Terminal transactions fail with ErrInvalidTransition.
	UpdateTelemetry(ctx context.Context, id int64, t models.Telemetry, at time.Time) (*models.Transaction, error)
	// Stop applies the terminal fields in a single atomic update. energyConsumed
	// is derived from the stored meterStart, if any. A transaction that is not
	// Started or InProgress fails with ErrInvalidTransition.
	Stop(ctx context.Context, id int64, stop models.StopData) (*models.Transaction, error)
	Get(ctx context.Context, id int64) (*models.Transaction, error)
	ListByChargePoint(ctx context.Context, chargePointId string, limit int) ([]models.Transaction, error)
}

// AuditLog is the append-only protocol audit trail.
type AuditLog interface {
	Append(ctx context.Context, e models.AuditEntry) error
	List(ctx context.Context, chargePointId string, limit int) ([]models.AuditEntry, error)
}

// Store bundles the ports of one backend.
type Store interface {
	ChargePoints() ChargePoints
	Transactions() Transactions
	Audit() AuditLog
	Close() error
}

// ClampLimit applies the list limit policy: default 50, max 200.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	}
	return limit
}

package repo

import (
	"time"

	"csms/internal/db"
	"csms/internal/store"
)

var (
	_ store.Store        = (*Store)(nil)
	_ store.ChargePoints = (*ChargePointsRepo)(nil)
	_ store.Transactions = (*TransactionsRepo)(nil)
	_ store.AuditLog     = (*AuditRepo)(nil)
)

// Store exposes the Postgres repos through the store ports.
type Store struct {
	db           *db.DB
	chargePoints *ChargePointsRepo
	transactions *TransactionsRepo
	audit        *AuditRepo
}

func NewStore(d *db.DB) *Store {
	return &Store{
		db:           d,
		chargePoints: NewChargePointsRepo(d.Pool),
		transactions: NewTransactionsRepo(d.Pool),
		audit:        NewAuditRepo(d.Pool),
	}
}

func (s *Store) ChargePoints() store.ChargePoints { return s.chargePoints }
func (s *Store) Transactions() store.Transactions { return s.transactions }
func (s *Store) Audit() store.AuditLog            { return s.audit }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

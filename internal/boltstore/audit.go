package boltstore

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"csms/internal/models"
	"csms/internal/store"
)

type auditLog struct {
	db  *bolt.DB
	now func() time.Time
}

func (r *auditLog) Append(_ context.Context, e models.AuditEntry) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.Id = int64(seq)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.now()
		}
		return putJSON(b, itob(seq), e)
	})
}

// List returns the newest entries first. An empty chargePointId lists all.
func (r *auditLog) List(_ context.Context, chargePointId string, limit int) ([]models.AuditEntry, error) {
	limit = store.ClampLimit(limit)
	items := []models.AuditEntry{}
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil && len(items) < limit; k, v = c.Prev() {
			var e models.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if chargePointId == "" || e.ChargePointId == chargePointId {
				items = append(items, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

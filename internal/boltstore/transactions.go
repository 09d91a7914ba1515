package boltstore

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"csms/internal/models"
	"csms/internal/store"
)

type transactions struct {
	db *bolt.DB
}

func (r *transactions) Create(_ context.Context, in store.NewTransaction) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		t = models.Transaction{
			Id:                int64(seq),
			ChargePointId:     in.ChargePointId,
			ConnectorId:       in.ConnectorId,
			IdTag:             in.IdTag,
			OcppTransactionId: in.OcppTransactionId,
			MeterStart:        in.MeterStart,
			StartTime:         in.StartTime,
			Status:            models.TransactionStarted,
			UpdatedAt:         in.StartTime,
		}
		return putJSON(b, itob(seq), t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mutate loads transaction id, applies fn and writes it back in one bolt
// transaction.
func (r *transactions) mutate(id int64, fn func(t *models.Transaction) error) (*models.Transaction, error) {
	if id <= 0 {
		return nil, store.ErrNotFound
	}
	var t models.Transaction
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		key := itob(uint64(id))
		if err := getJSON(b, key, &t); err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		return putJSON(b, key, t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactions) UpdateTelemetry(_ context.Context, id int64, tel models.Telemetry, at time.Time) (*models.Transaction, error) {
	return r.mutate(id, func(t *models.Transaction) error {
		next, err := models.Transition(t.Status, models.EventMeter)
		if err != nil {
			return store.ErrInvalidTransition
		}
		t.Status = next
		if tel.Power != nil {
			t.CurrentPower = tel.Power
		}
		if tel.Energy != nil {
			t.CurrentEnergy = tel.Energy
		}
		t.UpdatedAt = at
		return nil
	})
}

func (r *transactions) Stop(_ context.Context, id int64, stop models.StopData) (*models.Transaction, error) {
	return r.mutate(id, func(t *models.Transaction) error {
		if !models.CanTransition(t.Status, models.EventStop) {
			return store.ErrInvalidTransition
		}
		t.ApplyStop(stop)
		return nil
	})
}

func (r *transactions) Get(_ context.Context, id int64) (*models.Transaction, error) {
	if id <= 0 {
		return nil, store.ErrNotFound
	}
	var t models.Transaction
	err := r.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTransactions), itob(uint64(id)), &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByChargePoint walks the bucket backwards so the newest come first.
func (r *transactions) ListByChargePoint(_ context.Context, chargePointId string, limit int) ([]models.Transaction, error) {
	limit = store.ClampLimit(limit)
	items := []models.Transaction{}
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTransactions).Cursor()
		for k, v := c.Last(); k != nil && len(items) < limit; k, v = c.Prev() {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.ChargePointId == chargePointId {
				items = append(items, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

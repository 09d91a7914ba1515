package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"csms/internal/models"
	"csms/internal/store"
)

type chargePoints struct {
	db  *bolt.DB
	now func() time.Time
}

func (r *chargePoints) upsertAlive(id string, at time.Time) (*models.ChargePoint, error) {
	var cp models.ChargePoint
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChargePoints)
		err := getJSON(b, []byte(id), &cp)
		switch {
		case errors.Is(err, store.ErrNotFound):
			cp = models.ChargePoint{ChargePointId: id, CreatedAt: r.now()}
		case err != nil:
			return err
		}
		hb, seen := at, at
		cp.Status = models.StatusAvailable
		cp.LastHeartbeat = &hb
		cp.LastSeen = &seen
		cp.UpdatedAt = r.now()
		return putJSON(b, []byte(id), cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *chargePoints) UpsertOnBoot(_ context.Context, id string, at time.Time) (*models.ChargePoint, error) {
	return r.upsertAlive(id, at)
}

func (r *chargePoints) TouchHeartbeat(_ context.Context, id string, at time.Time) (*models.ChargePoint, error) {
	return r.upsertAlive(id, at)
}

func (r *chargePoints) UpdateStatus(_ context.Context, id string, u models.StatusUpdate) (*models.ChargePoint, error) {
	var cp models.ChargePoint
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChargePoints)
		if err := getJSON(b, []byte(id), &cp); err != nil {
			return err
		}
		seen := u.At
		cp.Status = u.Status
		cp.LastSeen = &seen
		if !u.KeepErrorCode {
			cp.ErrorCode = u.ErrorCode
		}
		if u.ConnectorId != nil {
			cp.ConnectorId = u.ConnectorId
		}
		cp.UpdatedAt = r.now()
		return putJSON(b, []byte(id), cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *chargePoints) UpdateTelemetry(_ context.Context, id string, t models.Telemetry, at time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChargePoints)
		var cp models.ChargePoint
		if err := getJSON(b, []byte(id), &cp); err != nil {
			return err
		}
		if t.Power != nil {
			cp.CurrentPower = t.Power
		}
		if t.Energy != nil {
			cp.CurrentEnergy = t.Energy
		}
		seen := at
		cp.LastSeen = &seen
		cp.UpdatedAt = r.now()
		return putJSON(b, []byte(id), cp)
	})
}

func (r *chargePoints) Get(_ context.Context, id string) (*models.ChargePoint, error) {
	var cp models.ChargePoint
	err := r.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketChargePoints), []byte(id), &cp)
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *chargePoints) List(_ context.Context) ([]models.ChargePoint, error) {
	items := []models.ChargePoint{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChargePoints).ForEach(func(_, v []byte) error {
			var cp models.ChargePoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			items = append(items, cp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

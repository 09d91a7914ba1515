package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"csms/internal/models"
	"csms/internal/store"
)

type ChargePointsRepo struct{ db *pgxpool.Pool }

func NewChargePointsRepo(db *pgxpool.Pool) *ChargePointsRepo { return &ChargePointsRepo{db: db} }

const chargePointColumns = `charge_point_id, status, last_heartbeat, last_seen, error_code,
	current_power, current_energy, connector_id, created_at, updated_at`

func scanChargePoint(row pgx.Row) (*models.ChargePoint, error) {
	var c models.ChargePoint
	if err := row.Scan(&c.ChargePointId, &c.Status, &c.LastHeartbeat, &c.LastSeen, &c.ErrorCode,
		&c.CurrentPower, &c.CurrentEnergy, &c.ConnectorId, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChargePointsRepo) upsertAlive(ctx context.Context, id string, at time.Time) (*models.ChargePoint, error) {
	row := r.db.QueryRow(ctx, `
		insert into charge_points (charge_point_id, status, last_heartbeat, last_seen)
		values ($1, 'Available', $2, $2)
		on conflict (charge_point_id) do update set
		  status='Available',
		  last_heartbeat=excluded.last_heartbeat,
		  last_seen=excluded.last_seen,
		  updated_at=now()
		returning `+chargePointColumns, id, at)
	return scanChargePoint(row)
}

func (r *ChargePointsRepo) UpsertOnBoot(ctx context.Context, id string, at time.Time) (*models.ChargePoint, error) {
	return r.upsertAlive(ctx, id, at)
}

func (r *ChargePointsRepo) TouchHeartbeat(ctx context.Context, id string, at time.Time) (*models.ChargePoint, error) {
	return r.upsertAlive(ctx, id, at)
}

func (r *ChargePointsRepo) UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) (*models.ChargePoint, error) {
	row := r.db.QueryRow(ctx, `
		update charge_points set
		  status=$2,
		  last_seen=$3,
		  error_code=case when $6 then error_code else $4 end,
		  connector_id=coalesce($5, connector_id),
		  updated_at=now()
		where charge_point_id=$1
		returning `+chargePointColumns, id, string(u.Status), u.At, u.ErrorCode, u.ConnectorId, u.KeepErrorCode)
	return scanChargePoint(row)
}

func (r *ChargePointsRepo) UpdateTelemetry(ctx context.Context, id string, t models.Telemetry, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		update charge_points set
		  current_power=coalesce($2, current_power),
		  current_energy=coalesce($3, current_energy),
		  last_seen=$4,
		  updated_at=now()
		where charge_point_id=$1
	`, id, t.Power, t.Energy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ChargePointsRepo) Get(ctx context.Context, id string) (*models.ChargePoint, error) {
	row := r.db.QueryRow(ctx, `select `+chargePointColumns+` from charge_points where charge_point_id=$1`, id)
	return scanChargePoint(row)
}

func (r *ChargePointsRepo) List(ctx context.Context) ([]models.ChargePoint, error) {
	rows, err := r.db.Query(ctx, `select `+chargePointColumns+` from charge_points order by charge_point_id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChargePoint{}
	for rows.Next() {
		c, err := scanChargePoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

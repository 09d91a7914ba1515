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

type TransactionsRepo struct{ db *pgxpool.Pool }

func NewTransactionsRepo(db *pgxpool.Pool) *TransactionsRepo { return &TransactionsRepo{db: db} }

const transactionColumns = `id, charge_point_id, connector_id, id_tag, ocpp_transaction_id,
	meter_start, meter_stop, start_time, end_time, status, energy_consumed, stop_reason,
	current_power, current_energy, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(&t.Id, &t.ChargePointId, &t.ConnectorId, &t.IdTag, &t.OcppTransactionId,
		&t.MeterStart, &t.MeterStop, &t.StartTime, &t.EndTime, &t.Status, &t.EnergyConsumed, &t.StopReason,
		&t.CurrentPower, &t.CurrentEnergy, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionsRepo) Create(ctx context.Context, in store.NewTransaction) (*models.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		insert into transactions (charge_point_id, connector_id, id_tag, ocpp_transaction_id, meter_start, start_time, status, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$6)
		returning `+transactionColumns,
		in.ChargePointId, in.ConnectorId, in.IdTag, in.OcppTransactionId, in.MeterStart, in.StartTime, string(models.TransactionStarted))
	return scanTransaction(row)
}

// guarded distinguishes a missing row from a row whose status rejected the
// update, after a conditional UPDATE matched nothing.
func (r *TransactionsRepo) guarded(ctx context.Context, id int64, t *models.Transaction, err error) (*models.Transaction, error) {
	if !errors.Is(err, store.ErrNotFound) {
		return t, err
	}
	var exists bool
	if qerr := r.db.QueryRow(ctx, `select exists(select 1 from transactions where id=$1)`, id).Scan(&exists); qerr != nil {
		return nil, qerr
	}
	if exists {
		return nil, store.ErrInvalidTransition
	}
	return nil, store.ErrNotFound
}

func (r *TransactionsRepo) UpdateTelemetry(ctx context.Context, id int64, tel models.Telemetry, at time.Time) (*models.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		update transactions set
		  current_power=coalesce($2, current_power),
		  current_energy=coalesce($3, current_energy),
		  status=$4,
		  updated_at=$5
		where id=$1 and status = any($6)
		returning `+transactionColumns,
		id, tel.Power, tel.Energy, string(models.TransactionInProgress), at, models.SourceStatuses(models.EventMeter))
	t, err := scanTransaction(row)
	return r.guarded(ctx, id, t, err)
}

// Stop writes the terminal fields and derives energy_consumed from the stored
// meter_start in the same statement.
func (r *TransactionsRepo) Stop(ctx context.Context, id int64, stop models.StopData) (*models.Transaction, error) {
	row := r.db.QueryRow(ctx, `
		update transactions set
		  meter_stop=$2,
		  end_time=$3,
		  stop_reason=$4,
		  status=$5,
		  energy_consumed=case when meter_start is null then null else ($2::bigint - meter_start) / 1000.0 end,
		  updated_at=$3
		where id=$1 and status = any($6)
		returning `+transactionColumns,
		id, stop.MeterStop, stop.EndTime, stop.Reason, string(models.TransactionCompleted), models.SourceStatuses(models.EventStop))
	t, err := scanTransaction(row)
	return r.guarded(ctx, id, t, err)
}

func (r *TransactionsRepo) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	row := r.db.QueryRow(ctx, `select `+transactionColumns+` from transactions where id=$1`, id)
	return scanTransaction(row)
}

func (r *TransactionsRepo) ListByChargePoint(ctx context.Context, cp string, limit int) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		select `+transactionColumns+`
		from transactions where charge_point_id=$1
		order by start_time desc, id desc
		limit $2
	`, cp, store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

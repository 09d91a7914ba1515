package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"csms/internal/models"
	"csms/internal/store"
)

type AuditRepo struct{ db *pgxpool.Pool }

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e models.AuditEntry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	var cp, action *string
	if e.ChargePointId != "" {
		cp = &e.ChargePointId
	}
	if e.Action != "" {
		action = &e.Action
	}
	_, err := r.db.Exec(ctx, `
		insert into ocpp_logs (level, message, charge_point_id, action, message_type, direction, payload, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,coalesce($8, now()))
	`, string(e.Level), e.Message, cp, action, string(e.MessageType), string(e.Direction), payload, nullTime(e.CreatedAt))
	return err
}

func (r *AuditRepo) List(ctx context.Context, cp string, limit int) ([]models.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		select id, level, message, coalesce(charge_point_id,''), coalesce(action,''), message_type, direction, payload, created_at
		from ocpp_logs
		where $1 = '' or charge_point_id = $1
		order by id desc
		limit $2
	`, cp, store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var payload []byte
		if err := rows.Scan(&e.Id, &e.Level, &e.Message, &e.ChargePointId, &e.Action, &e.MessageType, &e.Direction, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

package services

import (
	"context"
	"fmt"
	"time"

	"csms/internal/log"
	"csms/internal/models"
	"csms/internal/ocpp"
	"csms/internal/store"
)

// ChargePointService owns ChargePointRecord mutations.
type ChargePointService struct {
	store store.ChargePoints
	log   log.Logger
	now   func() time.Time
}

func NewChargePointService(cp store.ChargePoints, logger log.Logger) *ChargePointService {
	return &ChargePointService{store: cp, log: logger, now: utcNow}
}

// WithClock replaces the time source.
func (s *ChargePointService) WithClock(now func() time.Time) *ChargePointService {
	s.now = now
	return s
}

func utcNow() time.Time { return time.Now().UTC() }

// RecordBoot creates or refreshes the record: status Available and both
// lastHeartbeat and lastSeen set to now.
func (s *ChargePointService) RecordBoot(ctx context.Context, id string) (*models.ChargePoint, error) {
	cp, err := s.store.UpsertOnBoot(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert charge point %s: %w", id, err)
	}
	return cp, nil
}

func (s *ChargePointService) RecordHeartbeat(ctx context.Context, id string) (*models.ChargePoint, error) {
	cp, err := s.store.TouchHeartbeat(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("heartbeat charge point %s: %w", id, err)
	}
	return cp, nil
}

// RecordStatus stores a StatusNotification. The NoError code is stored as
// absent.
func (s *ChargePointService) RecordStatus(ctx context.Context, id string, connectorId *int, errorCode ocpp.ChargePointErrorCode, status ocpp.ChargePointStatus) (*models.ChargePoint, error) {
	u := models.StatusUpdate{
		Status:      models.ChargePointStatus(status),
		ConnectorId: connectorId,
		At:          s.now(),
	}
	if errorCode != "" && errorCode != ocpp.NoError {
		code := string(errorCode)
		u.ErrorCode = &code
	}
	cp, err := s.store.UpdateStatus(ctx, id, u)
	if err != nil {
		return nil, fmt.Errorf("update status of %s: %w", id, err)
	}
	return cp, nil
}

func (s *ChargePointService) RecordTelemetry(ctx context.Context, id string, r ocpp.Reading) error {
	t := models.Telemetry{Power: r.Power, Energy: r.Energy}
	if t.Empty() {
		return nil
	}
	if err := s.store.UpdateTelemetry(ctx, id, t, s.now()); err != nil {
		return fmt.Errorf("update telemetry of %s: %w", id, err)
	}
	return nil
}

// MarkDisconnected is best-effort: failures are logged and swallowed. The
// last reported errorCode is kept.
func (s *ChargePointService) MarkDisconnected(ctx context.Context, id string) {
	_, err := s.store.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.StatusDisconnected, KeepErrorCode: true, At: s.now()})
	if err != nil {
		s.log.Warn("could not mark charge point disconnected", "chargePointId", id, "error", err)
	}
}

func (s *ChargePointService) Get(ctx context.Context, id string) (*models.ChargePoint, error) {
	return s.store.Get(ctx, id)
}

func (s *ChargePointService) List(ctx context.Context) ([]models.ChargePoint, error) {
	return s.store.List(ctx)
}

package centralsystem

import (
	"context"
	"errors"

	"csms/internal/log"
	"csms/internal/notifier"
	"csms/internal/ocpp"
	"csms/internal/services"
	"csms/internal/store"
)

// bootNotification never faults: a charger that cannot parse a CALLERROR
// here tends to reconnect in a loop.
func (cs *CentralSystem) bootNotification(ctx context.Context, s *Session, h Handle, r ocpp.BootNotificationRequest, logger log.Logger) ocpp.BootNotificationConfirmation {
	reply := ocpp.BootNotificationConfirmation{
		CurrentTime: ocpp.NewDateTime(cs.now()),
		Interval:    cs.interval,
		Status:      ocpp.RegistrationRejected,
	}

	newly, err := cs.auth.Boot(s)
	if err != nil {
		logger.Warn("boot rejected", "error", err)
		return reply
	}
	if newly {
		cs.register(s.Identity, h)
	}

	if _, err := cs.chargePoints.RecordBoot(ctx, s.Identity); err != nil {
		logger.Error(err, "record boot")
		return reply
	}
	logger.Info("boot accepted", "vendor", r.ChargePointVendor, "model", r.ChargePointModel, "firmware", r.FirmwareVersion)
	cs.notify(notifier.EventBoot, s.Identity, map[string]string{
		"vendor":          r.ChargePointVendor,
		"model":           r.ChargePointModel,
		"firmwareVersion": r.FirmwareVersion,
	})
	reply.Status = ocpp.RegistrationAccepted
	return reply
}

func (cs *CentralSystem) heartbeat(ctx context.Context, s *Session, logger log.Logger) (any, error) {
	if _, err := cs.chargePoints.RecordHeartbeat(ctx, s.Identity); err != nil {
		logger.Error(err, "record heartbeat")
		return nil, &PersistenceError{Op: "record heartbeat", Err: err}
	}
	return ocpp.HeartbeatConfirmation{CurrentTime: ocpp.NewDateTime(cs.now())}, nil
}

func (cs *CentralSystem) statusNotification(ctx context.Context, s *Session, r ocpp.StatusNotificationRequest, logger log.Logger) (any, error) {
	if _, err := cs.chargePoints.RecordStatus(ctx, s.Identity, r.ConnectorId, r.ErrorCode, r.Status); err != nil {
		logger.Error(err, "record status", "status", r.Status)
		return nil, &PersistenceError{Op: "record status", Err: err}
	}
	cs.notify(notifier.EventStatus, s.Identity, map[string]any{
		"connectorId": *r.ConnectorId,
		"status":      r.Status,
		"errorCode":   r.ErrorCode,
	})
	return ocpp.StatusNotificationConfirmation{}, nil
}

func (cs *CentralSystem) startTransaction(ctx context.Context, s *Session, r ocpp.StartTransactionRequest, logger log.Logger) ocpp.StartTransactionConfirmation {
	tx, err := cs.ledger.Start(ctx, services.StartParams{
		ChargePointId:     s.Identity,
		ConnectorId:       r.ConnectorId,
		IdTag:             r.IdTag,
		MeterStart:        r.MeterStart,
		OcppTransactionId: r.TransactionId,
	})
	if err != nil {
		logger.Error(err, "start transaction", "connectorId", r.ConnectorId)
		return ocpp.StartTransactionConfirmation{IdTagInfo: ocpp.IdTagInfo{Status: ocpp.AuthorizationRejected}}
	}
	id := int(tx.Id)
	cs.notify(notifier.EventTxStarted, s.Identity, map[string]any{
		"transactionId": id,
		"connectorId":   tx.ConnectorId,
		"idTag":         tx.IdTag,
		"meterStart":    tx.MeterStart,
	})
	return ocpp.StartTransactionConfirmation{
		IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted},
		TransactionId: &id,
	}
}

// stopTransaction always replies; unknown or cancelled transactions are
// Rejected and a repeated stop is acknowledged without changes.
func (cs *CentralSystem) stopTransaction(ctx context.Context, s *Session, r ocpp.StopTransactionRequest, logger log.Logger) ocpp.StopTransactionConfirmation {
	var reason *string
	if r.Reason != "" {
		v := string(r.Reason)
		reason = &v
	}
	accepted := ocpp.StopTransactionConfirmation{IdTagInfo: &ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted}}
	rejected := ocpp.StopTransactionConfirmation{IdTagInfo: &ocpp.IdTagInfo{Status: ocpp.AuthorizationRejected}}

	tx, err := cs.ledger.Stop(ctx, int64(r.TransactionId), *r.MeterStop, reason)
	switch {
	case err == nil:
		cs.notify(notifier.EventTxStopped, s.Identity, map[string]any{
			"transactionId":  r.TransactionId,
			"meterStop":      tx.MeterStop,
			"energyConsumed": tx.EnergyConsumed,
			"reason":         tx.StopReason,
		})
		return accepted
	case errors.Is(err, services.ErrAlreadyCompleted):
		logger.Info("repeated stop acknowledged", "transactionId", r.TransactionId)
		return accepted
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("stop for unknown transaction", "transactionId", r.TransactionId)
		return rejected
	case errors.Is(err, store.ErrInvalidTransition):
		logger.Warn("stop for transaction that cannot complete", "transactionId", r.TransactionId)
		return rejected
	default:
		logger.Error(err, "stop transaction", "transactionId", r.TransactionId)
		return rejected
	}
}

func (cs *CentralSystem) meterValues(ctx context.Context, s *Session, r ocpp.MeterValuesRequest, logger log.Logger) (any, error) {
	if r.TransactionId == nil {
		return ocpp.MeterValuesConfirmation{}, nil
	}
	reading := ocpp.LatestReading(r.MeterValue)

	_, err := cs.ledger.RecordTelemetry(ctx, int64(*r.TransactionId), reading)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("meter values for unknown transaction", "transactionId", *r.TransactionId)
		return ocpp.MeterValuesConfirmation{}, nil
	case errors.Is(err, store.ErrInvalidTransition):
		logger.Warn("meter values for finished transaction", "transactionId", *r.TransactionId)
		return ocpp.MeterValuesConfirmation{}, nil
	case err != nil:
		logger.Error(err, "record meter values", "transactionId", *r.TransactionId)
		return nil, &PersistenceError{Op: "record meter values", Err: err}
	}

	if err := cs.chargePoints.RecordTelemetry(ctx, s.Identity, reading); err != nil {
		logger.Warn("could not mirror telemetry on charge point", "error", err)
	}
	return ocpp.MeterValuesConfirmation{}, nil
}

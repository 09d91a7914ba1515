package centralsystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"csms/internal/log"
	"csms/internal/metrics"
	"csms/internal/models"
	"csms/internal/ocpp"
	"csms/internal/services"
)

// DefaultConnectorId is used by RemoteStartTransaction when none is given.
const DefaultConnectorId = 1

// Gateway sends operator commands to connected charge points. It never
// retries; failures are returned to the caller as they are.
type Gateway struct {
	registry *Registry
	auditor  *services.Auditor
	log      log.Logger
}

func NewGateway(registry *Registry, auditor *services.Auditor, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Gateway{registry: registry, auditor: auditor, log: logger.WithName("gateway")}
}

// RemoteStartTransaction asks identity to start charging idTag on
// connectorId (DefaultConnectorId when nil).
func (g *Gateway) RemoteStartTransaction(ctx context.Context, identity string, connectorId *int, idTag string) (*ocpp.RemoteStartTransactionConfirmation, error) {
	if connectorId == nil {
		c := DefaultConnectorId
		connectorId = &c
	}
	req := ocpp.RemoteStartTransactionRequest{ConnectorId: connectorId, IdTag: idTag}
	var conf ocpp.RemoteStartTransactionConfirmation
	if err := g.send(ctx, identity, ocpp.RemoteStartTransaction, req, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (g *Gateway) RemoteStopTransaction(ctx context.Context, identity string, transactionId *int) (*ocpp.RemoteStopTransactionConfirmation, error) {
	req := ocpp.RemoteStopTransactionRequest{TransactionId: transactionId}
	var conf ocpp.RemoteStopTransactionConfirmation
	if err := g.send(ctx, identity, ocpp.RemoteStopTransaction, req, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// send checks reachability and the request before anything goes on the
// wire, then waits for the charger's confirmation.
func (g *Gateway) send(ctx context.Context, identity string, action ocpp.Action, req, conf any) error {
	command := string(action)
	logger := g.log.WithValues("chargePointId", identity, "command", command)

	h, ok := g.registry.Lookup(identity)
	if !ok {
		logger.Warn("charge point not connected")
		metrics.RemoteCommands.WithLabelValues(command, metrics.OutcomeNotConnected).Inc()
		g.audit(models.AuditWarn, command+" not sent: not connected", identity, command, models.MessageCall, models.DirectionOutbound, req)
		return fmt.Errorf("%w: %s", ErrNotConnected, identity)
	}

	if err := ocpp.Validate(action, req); err != nil {
		verr := validationError(err)
		logger.Warn("invalid command", "field", verr.Field)
		metrics.RemoteCommands.WithLabelValues(command, metrics.OutcomeInvalid).Inc()
		g.audit(models.AuditWarn, command+" not sent: "+verr.Error(), identity, command, models.MessageCall, models.DirectionOutbound, req)
		return verr
	}

	logger.Info("sending command")
	g.audit(models.AuditInfo, "sending "+command, identity, command, models.MessageCall, models.DirectionOutbound, req)
	start := time.Now()
	raw, err := h.Call(ctx, command, req)
	metrics.RemoteCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn("command failed", "error", err)
		metrics.RemoteCommands.WithLabelValues(command, metrics.OutcomeFailed).Inc()
		g.audit(models.AuditError, command+" failed: "+err.Error(), identity, command, models.MessageCallError, models.DirectionInbound, nil)
		return &CommandError{Command: command, Err: err}
	}
	if err := ocpp.Decode(action, raw, conf); err != nil {
		logger.Warn("invalid confirmation", "error", err)
		metrics.RemoteCommands.WithLabelValues(command, metrics.OutcomeFailed).Inc()
		g.audit(models.AuditError, command+" returned an invalid confirmation", identity, command, models.MessageCallResult, models.DirectionInbound, raw)
		return &CommandError{Command: command, Err: fmt.Errorf("invalid confirmation: %w", err)}
	}

	metrics.RemoteCommands.WithLabelValues(command, metrics.OutcomeOK).Inc()
	g.audit(models.AuditInfo, command+" confirmed", identity, command, models.MessageCallResult, models.DirectionInbound, raw)
	return nil
}

func validationError(err error) *ValidationError {
	var pe *ocpp.PayloadError
	if !errors.As(err, &pe) || pe.Field == "" {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	verr := &ValidationError{Field: pe.Field}
	if pe.Violation != ocpp.ViolationOccurrence {
		verr.Reason = pe.Err.Error()
	}
	return verr
}

func (g *Gateway) audit(level models.AuditLevel, msg, identity, action string, mt models.MessageType, dir models.Direction, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw = services.Payload(payload)
	}
	g.auditor.Record(models.AuditEntry{
		Level:         level,
		Message:       msg,
		ChargePointId: identity,
		Action:        action,
		MessageType:   mt,
		Direction:     dir,
		Payload:       raw,
	})
}

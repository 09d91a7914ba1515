package centralsystem

import (
	"context"
	"errors"

	"csms/internal/log"
	"csms/internal/metrics"
	"csms/internal/models"
	"csms/internal/ocpp"
	"csms/internal/ocppj"
	"csms/internal/services"
)

var _ ocppj.Handler = (*CentralSystem)(nil)

// HandleCall implements ocppj.Handler.
func (cs *CentralSystem) HandleCall(ctx context.Context, c *ocppj.Conn, call ocppj.Call) (any, error) {
	s := sessionOf(c)
	if s == nil {
		// connection accepted without an auth hook
		s = &Session{Identity: c.ID(), RemoteAddr: c.RemoteAddr()}
		s.authenticated.Store(true)
	}
	return cs.Dispatch(ctx, s, c, call)
}

// Dispatch runs the handler for one inbound call. The returned error is
// always an *ocppj.Error.
func (cs *CentralSystem) Dispatch(ctx context.Context, s *Session, h Handle, call ocppj.Call) (any, error) {
	logger := cs.log.WithValues("chargePointId", s.Identity, "action", call.Action, "messageId", call.ID)
	cs.audit(models.AuditEntry{
		Level:         models.AuditInfo,
		Message:       "received " + call.Action,
		ChargePointId: s.Identity,
		Action:        call.Action,
		MessageType:   models.MessageCall,
		Direction:     models.DirectionInbound,
		Payload:       call.Payload,
	})

	res, err := cs.route(ctx, s, h, call, logger)
	if err != nil {
		fault := toFault(err)
		logger.Warn("call answered with error", "code", fault.Code, "error", err)
		metrics.InboundCalls.WithLabelValues(call.Action, metrics.OutcomeFault).Inc()
		cs.audit(models.AuditEntry{
			Level:         models.AuditError,
			Message:       string(fault.Code) + ": " + fault.Description,
			ChargePointId: s.Identity,
			Action:        call.Action,
			MessageType:   models.MessageCallError,
			Direction:     models.DirectionOutbound,
			Payload:       services.Payload(map[string]any{"errorCode": fault.Code, "errorDescription": fault.Description}),
		})
		return nil, fault
	}

	outcome := outcomeOf(res)
	metrics.InboundCalls.WithLabelValues(call.Action, outcome).Inc()
	level := models.AuditInfo
	if outcome != metrics.OutcomeOK {
		level = models.AuditWarn
	}
	cs.audit(models.AuditEntry{
		Level:         level,
		Message:       "answered " + call.Action,
		ChargePointId: s.Identity,
		Action:        call.Action,
		MessageType:   models.MessageCallResult,
		Direction:     models.DirectionOutbound,
		Payload:       services.Payload(res),
	})
	return res, nil
}

func (cs *CentralSystem) route(ctx context.Context, s *Session, h Handle, call ocppj.Call, logger log.Logger) (any, error) {
	req, err := ocpp.ParseRequest(call.Action, call.Payload)
	if errors.Is(err, ocpp.ErrUnsupportedAction) {
		return nil, ocppj.NewError(ocppj.NotImplemented, "action %s is not implemented", call.Action)
	}
	if err != nil {
		return nil, err
	}

	if _, boot := req.(ocpp.BootNotificationRequest); !boot && !s.Authenticated() {
		return nil, ocppj.NewError(ocppj.SecurityError, "send an accepted BootNotification first")
	}

	switch r := req.(type) {
	case ocpp.BootNotificationRequest:
		return cs.bootNotification(ctx, s, h, r, logger), nil
	case ocpp.HeartbeatRequest:
		return cs.heartbeat(ctx, s, logger)
	case ocpp.StatusNotificationRequest:
		return cs.statusNotification(ctx, s, r, logger)
	case ocpp.StartTransactionRequest:
		return cs.startTransaction(ctx, s, r, logger), nil
	case ocpp.StopTransactionRequest:
		return cs.stopTransaction(ctx, s, r, logger), nil
	case ocpp.MeterValuesRequest:
		return cs.meterValues(ctx, s, r, logger)
	default:
		return nil, ocppj.NewError(ocppj.NotImplemented, "action %s is not implemented", call.Action)
	}
}

func toFault(err error) *ocppj.Error {
	var fe *ocppj.Error
	if errors.As(err, &fe) {
		return fe
	}
	var pe *ocpp.PayloadError
	if errors.As(err, &pe) {
		code := ocppj.FormationViolation
		switch pe.Violation {
		case ocpp.ViolationType:
			code = ocppj.TypeConstraintViolation
		case ocpp.ViolationOccurrence:
			code = ocppj.OccurenceConstraintViolation
		case ocpp.ViolationProperty:
			code = ocppj.PropertyConstraintViolation
		}
		fault := &ocppj.Error{Code: code, Description: pe.Error()}
		if pe.Field != "" {
			fault.Details = map[string]any{"field": pe.Field}
		}
		return fault
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return &ocppj.Error{Code: ocppj.InternalError, Description: perr.Op + " failed"}
	}
	return &ocppj.Error{Code: ocppj.InternalError, Description: "internal error"}
}

func outcomeOf(res any) string {
	switch r := res.(type) {
	case ocpp.BootNotificationConfirmation:
		if r.Status != ocpp.RegistrationAccepted {
			return metrics.OutcomeRejected
		}
	case ocpp.StartTransactionConfirmation:
		if r.IdTagInfo.Status != ocpp.AuthorizationAccepted {
			return metrics.OutcomeRejected
		}
	case ocpp.StopTransactionConfirmation:
		if r.IdTagInfo != nil && r.IdTagInfo.Status != ocpp.AuthorizationAccepted {
			return metrics.OutcomeRejected
		}
	}
	return metrics.OutcomeOK
}

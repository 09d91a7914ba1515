package models

import (
	"encoding/json"
	"time"
)

// ChargePointStatus is the last known status of a charge point. The OCPP
// connector statuses plus the server-side Connected/Disconnected markers.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
	StatusConnected     ChargePointStatus = "Connected"
	StatusDisconnected  ChargePointStatus = "Disconnected"
)

// ChargePoint is the durable record of one charger identity.
type ChargePoint struct {
	ChargePointId string            `json:"chargePointId"`
	Status        ChargePointStatus `json:"status"`
	LastHeartbeat *time.Time        `json:"lastHeartbeat,omitempty"`
	LastSeen      *time.Time        `json:"lastSeen,omitempty"`
	ErrorCode     *string           `json:"errorCode,omitempty"`
	CurrentPower  *float64          `json:"currentPower,omitempty"`
	CurrentEnergy *float64          `json:"currentEnergy,omitempty"`
	ConnectorId   *int              `json:"connectorId,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// StatusUpdate is the partial update applied by StatusNotification. A nil
// ErrorCode clears the stored one unless KeepErrorCode is set.
type StatusUpdate struct {
	Status        ChargePointStatus
	ErrorCode     *string
	KeepErrorCode bool
	ConnectorId   *int
	At            time.Time
}

// Telemetry is a live power/energy reading. Nil fields are left untouched.
type Telemetry struct {
	Power  *float64 // W
	Energy *float64 // Wh
}

func (t Telemetry) Empty() bool { return t.Power == nil && t.Energy == nil }

// Transaction is one charging session.
type Transaction struct {
	Id                int64             `json:"id"`
	ChargePointId     string            `json:"chargePointId"`
	ConnectorId       int               `json:"connectorId"`
	IdTag             string            `json:"idTag"`
	OcppTransactionId *int              `json:"ocppTransactionId,omitempty"`
	MeterStart        *int64            `json:"meterStart,omitempty"`
	MeterStop         *int64            `json:"meterStop,omitempty"`
	StartTime         time.Time         `json:"startTime"`
	EndTime           *time.Time        `json:"endTime,omitempty"`
	Status            TransactionStatus `json:"status"`
	EnergyConsumed    *float64          `json:"energyConsumed,omitempty"` // kWh
	StopReason        *string           `json:"stopReason,omitempty"`
	CurrentPower      *float64          `json:"currentPower,omitempty"`
	CurrentEnergy     *float64          `json:"currentEnergy,omitempty"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// StopData carries the terminal fields reported by StopTransaction.
type StopData struct {
	MeterStop int64
	EndTime   time.Time
	Reason    *string
}

// EnergyKWh converts a Wh meter span to kWh. Negative spans are kept as is.
func EnergyKWh(meterStart, meterStop int64) float64 {
	return float64(meterStop-meterStart) / 1000
}

// ApplyStop sets the terminal fields on t. energyConsumed is only derived when
// meterStart was recorded. The caller is responsible for the lifecycle check.
func (t *Transaction) ApplyStop(stop StopData) {
	ms := stop.MeterStop
	end := stop.EndTime
	t.MeterStop = &ms
	t.EndTime = &end
	t.StopReason = stop.Reason
	t.Status = TransactionCompleted
	if t.MeterStart != nil {
		e := EnergyKWh(*t.MeterStart, ms)
		t.EnergyConsumed = &e
	}
	t.UpdatedAt = end
}

type MessageType string

const (
	MessageCall       MessageType = "Call"
	MessageCallResult MessageType = "CallResult"
	MessageCallError  MessageType = "CallError"
	MessageSystem     MessageType = "System"
	MessageDatabase   MessageType = "Database"
)

type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
	DirectionServer   Direction = "Server"
)

type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

// AuditEntry is one row of the protocol audit trail.
type AuditEntry struct {
	Id            int64           `json:"id"`
	Level         AuditLevel      `json:"level"`
	Message       string          `json:"message"`
	ChargePointId string          `json:"chargePointId,omitempty"`
	Action        string          `json:"action,omitempty"`
	MessageType   MessageType     `json:"messageType"`
	Direction     Direction       `json:"direction"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Package ocpp holds the OCPP 1.6 vocabulary routed by the central system:
// action names, typed request/confirmation payloads and their validation.
package ocpp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// DateTime is an OCPP timestamp. It marshals in UTC with millisecond
// precision and accepts RFC 3339 with or without a zone (zone-less is UTC).
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) *DateTime { return &DateTime{Time: t} }

func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.UTC().Format(ISO8601))
}

func (dt *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			dt.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
	// Rejected is not part of the 1.6 enumeration but is what chargers of
	// this system are told when a transaction cannot be recorded.
	AuthorizationRejected AuthorizationStatus = "Rejected"
)

type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

type RemoteStartStopStatus string

const (
	RemoteStartStopAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopRejected RemoteStartStopStatus = "Rejected"
)

type ChargePointErrorCode string

const (
	NoError ChargePointErrorCode = "NoError"
)

var chargePointErrorCodes = []string{
	"ConnectorLockFailure", "EVCommunicationError", "GroundFailure", "HighTemperature",
	"InternalError", "LocalListConflict", "NoError", "OtherError", "OverCurrentFailure",
	"OverVoltage", "PowerMeterFailure", "PowerSwitchFailure", "ReaderFailure", "ResetFailure",
	"UnderVoltage", "WeakSignal",
}

type ChargePointStatus string

var chargePointStatuses = []string{
	"Available", "Preparing", "Charging", "SuspendedEVSE", "SuspendedEV",
	"Finishing", "Reserved", "Unavailable", "Faulted",
}

type Reason string

var stopReasons = []string{
	"EmergencyStop", "EVDisconnected", "HardReset", "Local", "Other", "PowerLoss",
	"Reboot", "Remote", "SoftReset", "UnlockCommand", "DeAuthorized",
}

type Measurand string

const (
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
)

type SampledValue struct {
	Value     string    `json:"value" validate:"required"`
	Context   string    `json:"context,omitempty"`
	Format    string    `json:"format,omitempty"`
	Measurand Measurand `json:"measurand,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Location  string    `json:"location,omitempty"`
	Unit      string    `json:"unit,omitempty"`
}

type MeterValue struct {
	Timestamp    *DateTime      `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

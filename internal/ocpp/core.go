package ocpp

// Action is an OCPP action name as it appears on the wire.
type Action string

const (
	BootNotification       Action = "BootNotification"
	Heartbeat              Action = "Heartbeat"
	StatusNotification     Action = "StatusNotification"
	StartTransaction       Action = "StartTransaction"
	StopTransaction        Action = "StopTransaction"
	MeterValues            Action = "MeterValues"
	RemoteStartTransaction Action = "RemoteStartTransaction"
	RemoteStopTransaction  Action = "RemoteStopTransaction"
)

// Request is a typed inbound call payload. The set of implementations is
// closed; dispatchers switch over the concrete types.
type Request interface {
	Action() Action
	isRequest()
}

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty" validate:"max=25"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty" validate:"max=25"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty" validate:"max=50"`
	Iccid                   string `json:"iccid,omitempty" validate:"max=20"`
	Imsi                    string `json:"imsi,omitempty" validate:"max=20"`
	MeterType               string `json:"meterType,omitempty" validate:"max=25"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty" validate:"max=25"`
}

type BootNotificationConfirmation struct {
	CurrentTime *DateTime          `json:"currentTime"`
	Interval    int                `json:"interval"`
	Status      RegistrationStatus `json:"status"`
}

type HeartbeatRequest struct{}

type HeartbeatConfirmation struct {
	CurrentTime *DateTime `json:"currentTime"`
}

type StatusNotificationRequest struct {
	ConnectorId     *int                 `json:"connectorId" validate:"required,gte=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" validate:"required,chargePointErrorCode"`
	Info            string               `json:"info,omitempty" validate:"max=50"`
	Status          ChargePointStatus    `json:"status" validate:"required,chargePointStatus"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	VendorId        string               `json:"vendorId,omitempty" validate:"max=255"`
	VendorErrorCode string               `json:"vendorErrorCode,omitempty" validate:"max=50"`
}

type StatusNotificationConfirmation struct{}

type StartTransactionRequest struct {
	ConnectorId   int       `json:"connectorId" validate:"gt=0"`
	IdTag         string    `json:"idTag" validate:"required,max=20"`
	MeterStart    *int64    `json:"meterStart" validate:"required"`
	ReservationId *int      `json:"reservationId,omitempty"`
	Timestamp     *DateTime `json:"timestamp" validate:"required"`
	// TransactionId is not part of 1.6; some chargers send their local
	// transaction number here.
	TransactionId *int `json:"transactionId,omitempty"`
}

type StartTransactionConfirmation struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId *int      `json:"transactionId"`
}

// StopTransactionRequest leaves transactionId unvalidated: an unknown or
// missing id is answered with Rejected rather than a protocol fault.
type StopTransactionRequest struct {
	IdTag           string       `json:"idTag,omitempty" validate:"max=20"`
	MeterStop       *int64       `json:"meterStop" validate:"required"`
	Timestamp       *DateTime    `json:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId"`
	Reason          Reason       `json:"reason,omitempty" validate:"omitempty,reason"`
	TransactionData []MeterValue `json:"transactionData,omitempty" validate:"omitempty,dive"`
}

type StopTransactionConfirmation struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"gte=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

type MeterValuesConfirmation struct{}

type RemoteStartTransactionRequest struct {
	ConnectorId *int   `json:"connectorId,omitempty" validate:"omitempty,gt=0"`
	IdTag       string `json:"idTag" validate:"required,max=20"`
}

type RemoteStartTransactionConfirmation struct {
	Status RemoteStartStopStatus `json:"status" validate:"required,remoteStartStopStatus"`
}

type RemoteStopTransactionRequest struct {
	TransactionId *int `json:"transactionId" validate:"required"`
}

type RemoteStopTransactionConfirmation struct {
	Status RemoteStartStopStatus `json:"status" validate:"required,remoteStartStopStatus"`
}

func (BootNotificationRequest) Action() Action   { return BootNotification }
func (HeartbeatRequest) Action() Action          { return Heartbeat }
func (StatusNotificationRequest) Action() Action { return StatusNotification }
func (StartTransactionRequest) Action() Action   { return StartTransaction }
func (StopTransactionRequest) Action() Action    { return StopTransaction }
func (MeterValuesRequest) Action() Action        { return MeterValues }

func (BootNotificationRequest) isRequest()   {}
func (HeartbeatRequest) isRequest()          {}
func (StatusNotificationRequest) isRequest() {}
func (StartTransactionRequest) isRequest()   {}
func (StopTransactionRequest) isRequest()    {}
func (MeterValuesRequest) isRequest()        {}

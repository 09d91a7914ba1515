package ocpp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrUnsupportedAction is returned by ParseRequest for action names outside
// the routed vocabulary.
var ErrUnsupportedAction = errors.New("ocpp: unsupported action")

// Violation classifies why a payload was refused.
type Violation int

const (
	// ViolationFormation: the payload is not a JSON object.
	ViolationFormation Violation = iota
	// ViolationType: a field has the wrong JSON type.
	ViolationType
	// ViolationOccurrence: a required field is missing.
	ViolationOccurrence
	// ViolationProperty: a field value is outside its allowed range or set.
	ViolationProperty
)

// PayloadError reports a payload that failed decoding or validation.
type PayloadError struct {
	Action    Action
	Violation Violation
	Field     string
	Err       error
}

func (e *PayloadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %s: %v", e.Action, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func enumValidator(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(values, fl.Field().String())
	}
}

// Validator returns the shared validator with OCPP enumerations registered
// and JSON field names used in errors.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("chargePointErrorCode", enumValidator(chargePointErrorCodes))
		_ = v.RegisterValidation("chargePointStatus", enumValidator(chargePointStatuses))
		_ = v.RegisterValidation("reason", enumValidator(stopReasons))
		_ = v.RegisterValidation("remoteStartStopStatus", enumValidator([]string{
			string(RemoteStartStopAccepted), string(RemoteStartStopRejected),
		}))
		validate = v
	})
	return validate
}

// Validate checks v against its validate tags and returns a *PayloadError on
// the first failing field.
func Validate(action Action, v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &PayloadError{Action: action, Violation: ViolationFormation, Err: err}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	violation := ViolationProperty
	if fe.Tag() == "required" {
		violation = ViolationOccurrence
	}
	return &PayloadError{
		Action:    action,
		Violation: violation,
		Field:     field,
		Err:       fmt.Errorf("failed on %q constraint", fe.Tag()),
	}
}

// Decode unmarshals payload into v and validates it.
func Decode(action Action, payload []byte, v any) error {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return &PayloadError{Action: action, Violation: ViolationFormation, Err: errors.New("payload must be a JSON object")}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &PayloadError{Action: action, Violation: ViolationType, Field: typeErr.Field, Err: err}
		}
		return &PayloadError{Action: action, Violation: ViolationFormation, Err: err}
	}
	return Validate(action, v)
}

func parse[T Request](a Action, payload []byte) (Request, error) {
	var req T
	if err := Decode(a, payload, &req); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseRequest decodes an inbound call payload into its typed Request.
func ParseRequest(action string, payload []byte) (Request, error) {
	switch a := Action(action); a {
	case BootNotification:
		return parse[BootNotificationRequest](a, payload)
	case Heartbeat:
		return parse[HeartbeatRequest](a, payload)
	case StatusNotification:
		return parse[StatusNotificationRequest](a, payload)
	case StartTransaction:
		return parse[StartTransactionRequest](a, payload)
	case StopTransaction:
		return parse[StopTransactionRequest](a, payload)
	case MeterValues:
		return parse[MeterValuesRequest](a, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
}

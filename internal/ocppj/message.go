package ocppj

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OCPP-J message type ids.
const (
	typeCall       = 2
	typeCallResult = 3
	typeCallError  = 4
)

// frame is a decoded OCPP-J message. Only the fields of its type are set.
type frame struct {
	typ     int
	id      string
	action  string
	payload json.RawMessage
	err     *Error
}

// frameError is a malformed message. id is set when it could be recovered.
type frameError struct {
	id   string
	code ErrorCode
	msg  string
}

func (e *frameError) Error() string { return e.msg }

func parseFrame(data []byte) (*frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, &frameError{code: FormationViolation, msg: "message is not a JSON array"}
	}
	if len(parts) < 3 {
		return nil, &frameError{id: recoverID(parts), code: FormationViolation, msg: fmt.Sprintf("message has %d elements", len(parts))}
	}

	var f frame
	if err := json.Unmarshal(parts[0], &f.typ); err != nil {
		return nil, &frameError{id: recoverID(parts), code: FormationViolation, msg: "message type id is not a number"}
	}
	if err := json.Unmarshal(parts[1], &f.id); err != nil || f.id == "" {
		return nil, &frameError{code: FormationViolation, msg: "unique id is not a string"}
	}

	switch f.typ {
	case typeCall:
		if len(parts) != 4 {
			return nil, &frameError{id: f.id, code: FormationViolation, msg: "CALL must have 4 elements"}
		}
		if err := json.Unmarshal(parts[2], &f.action); err != nil || f.action == "" {
			return nil, &frameError{id: f.id, code: FormationViolation, msg: "action is not a string"}
		}
		f.payload = parts[3]
	case typeCallResult:
		f.payload = parts[2]
	case typeCallError:
		var code, desc string
		if err := json.Unmarshal(parts[2], &code); err != nil {
			return nil, &frameError{id: f.id, code: FormationViolation, msg: "error code is not a string"}
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &desc)
		}
		f.err = &Error{Code: ErrorCode(code), Description: desc}
		if len(parts) > 4 {
			_ = json.Unmarshal(parts[4], &f.err.Details)
		}
	default:
		return nil, &frameError{id: f.id, code: ProtocolError, msg: fmt.Sprintf("unknown message type %d", f.typ)}
	}
	return &f, nil
}

func recoverID(parts []json.RawMessage) string {
	if len(parts) < 2 {
		return ""
	}
	var id string
	_ = json.Unmarshal(parts[1], &id)
	return id
}

func encodeCall(id, action string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]any{typeCall, id, action, payload})
}

func encodeCallResult(id string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([]any{typeCallResult, id, payload})
}

func encodeCallError(id string, e *Error) ([]byte, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal([]any{typeCallError, id, e.Code, e.Description, details})
}

// asError maps a handler error onto a protocol fault.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: InternalError, Description: "internal error"}
}

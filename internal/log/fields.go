package log

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns a loose key/value list into zap fields. zap.Field and error
// values may appear unpaired; a trailing key without value is kept under
// "arg#N"; non-string keys are preserved under "badkey#N".
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(a))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i += 2

		k, ok := key.(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("badkey#%d", i-2), map[string]any{"key": key, "value": val}))
			continue
		}
		fields = append(fields, field(k, val))
	}
	return fields
}

func field(k string, val any) zap.Field {
	switch v := val.(type) {
	case string:
		return zap.String(k, v)
	case bool:
		return zap.Bool(k, v)
	case int:
		return zap.Int(k, v)
	case int32:
		return zap.Int32(k, v)
	case int64:
		return zap.Int64(k, v)
	case uint64:
		return zap.Uint64(k, v)
	case float64:
		return zap.Float64(k, v)
	case time.Duration:
		return zap.Duration(k, v)
	case time.Time:
		return zap.Time(k, v)
	case error:
		return zap.NamedError(k, v)
	case json.RawMessage:
		return zap.String(k, string(v))
	case []byte:
		return zap.ByteString(k, v)
	case fmt.Stringer:
		return zap.Stringer(k, v)
	default:
		return zap.Any(k, v)
	}
}

package mutation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// coerce converts a stored value to T. Direct type matches win; scalar
// targets get a best-effort conversion; everything else goes through a
// JSON round trip.
func coerce[T any](value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}

	var out T
	var err error
	switch target := any(&out).(type) {
	case *string:
		*target = asString(value)
	case *uuid.UUID:
		*target, err = asUUID(value)
	case *int:
		var n int64
		n, err = asInt64(value)
		*target = int(n)
	case *int64:
		*target, err = asInt64(value)
	case *int32:
		var n int64
		n, err = asInt64(value)
		if err == nil && (n > math.MaxInt32 || n < math.MinInt32) {
			err = fmt.Errorf("value %d overflows int32", n)
		}
		*target = int32(n)
	case *float64:
		*target, err = asFloat64(value)
	case *float32:
		var f float64
		f, err = asFloat64(value)
		*target = float32(f)
	case *bool:
		*target, err = asBool(value)
	case *time.Time:
		*target, err = asTime(value)
	case *[]byte:
		*target, err = asBytes(value)
	default:
		err = decodeStructured(value, &out)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asUUID(value any) (uuid.UUID, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v, nil
	case *uuid.UUID:
		return *v, nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	default:
		return uuid.Parse(strings.TrimSpace(asString(v)))
	}
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return integral(float64(v))
	case float64:
		return integral(v)
	case json.Number:
		return v.Int64()
	default:
		return strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
	}
}

func integral(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("value %v is not integral", f)
	}
	return int64(f), nil
}

func asFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := asInt64(v)
		return float64(n), err
	default:
		return strconv.ParseFloat(strings.TrimSpace(asString(v)), 64)
	}
}

func asBool(value any) (bool, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return strconv.ParseBool(strings.TrimSpace(asString(value)))
}

func asTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case *time.Time:
		return *v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		secs, err := asInt64(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).UTC(), nil
	default:
		text := strings.TrimSpace(asString(v))
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly} {
			if t, err := time.Parse(layout, text); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as time", text)
	}
}

// asBytes copies text as is. Other values are decoded from JSON, where a
// byte slice is a base64 string.
func asBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return append([]byte(nil), v...), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		var out []byte
		err := decodeStructured(v, &out)
		return out, err
	}
}

func decodeStructured(value any, out any) error {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, out)
}

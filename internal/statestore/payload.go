package statestore

import (
	"bytes"
	"encoding/json"
	"time"
)

// decodePayload turns a state payload into a value and timestamp. A
// missing or zero ts falls back to received.
func decodePayload(payload []byte, received time.Time) (any, time.Time) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, received
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			if val, ok := fields["val"]; ok {
				return scalar(val, string(val)), envelopeTime(fields["ts"], received)
			}
		}
		return string(trimmed), received
	}

	return scalar(trimmed, string(payload)), received
}

// envelopeTime reads a Unix-millisecond "ts" field.
func envelopeTime(raw json.RawMessage, received time.Time) time.Time {
	var ms float64
	if len(raw) == 0 || json.Unmarshal(raw, &ms) != nil || ms <= 0 {
		return received
	}
	return time.UnixMilli(int64(ms))
}

// scalar decodes raw as a bool, number, string or null. Anything else,
// including invalid JSON, is returned as fallback.
func scalar(raw []byte, fallback string) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	switch v.(type) {
	case nil, bool, float64, string:
		return v
	default:
		return string(raw)
	}
}

// encodeValue renders a value for a command topic.
func encodeValue(v any) ([]byte, error) {
	return json.Marshal(v)
}

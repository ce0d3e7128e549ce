package sqlplugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/simplepos/shell/pkg/ipc"
)

// Values are bind parameters decoded from JSON: integers bind as int64,
// other numbers as float64, booleans as 0/1, null as NULL, and arrays or
// objects as their JSON text.
type Values []any

func (v *Values) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("values: %w", err)
	}
	out := make(Values, len(raw))
	for i, r := range raw {
		val, err := bindValue(r)
		if err != nil {
			return fmt.Errorf("values[%d]: %w", i, err)
		}
		out[i] = val
	}
	*v = out
	return nil
}

func bindValue(r json.RawMessage) (any, error) {
	r = bytes.TrimSpace(r)
	if len(r) == 0 {
		return nil, nil
	}
	switch r[0] {
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(r, &b); err != nil {
			return nil, err
		}
		return b, nil
	case '"':
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '[', '{':
		return string(r), nil
	default:
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
}

// column converts a scanned value to something JSON-friendly. TEXT comes
// back as string, BLOB as a byte array.
func column(v any) any {
	if b, ok := v.([]byte); ok {
		if utf8.Valid(b) {
			return string(b)
		}
		return ipc.Bytes(b)
	}
	return v
}

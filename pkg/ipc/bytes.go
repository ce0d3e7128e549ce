package ipc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Bytes is a byte payload as the webview sends it. It decodes from
//
//   - a JSON array of numbers 0–255 (Array.from(uint8Array)),
//   - a base64 string,
//   - an object keyed by index ({"0":27,"1":64}), which is what
//     JSON.stringify produces for a bare Uint8Array.
//
// It encodes as a number array.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	switch data[0] {
	case '[':
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return fmt.Errorf("bytes: value %d at index %d out of range", n, i)
			}
			out[i] = byte(n)
		}
		*b = out
		return nil

	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		out, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		*b = out
		return nil

	case '{':
		var m map[string]int
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		vals := make(map[int]int, len(m))
		for k, n := range m {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(m) {
				return fmt.Errorf("bytes: non-index key %q", k)
			}
			if _, dup := vals[i]; dup {
				return fmt.Errorf("bytes: duplicate index %d", i)
			}
			if n < 0 || n > 255 {
				return fmt.Errorf("bytes: value %d at index %d out of range", n, i)
			}
			vals[i] = n
		}
		out := make([]byte, len(m))
		for i, n := range vals {
			out[i] = byte(n)
		}
		*b = out
		return nil
	}

	return fmt.Errorf("bytes: unsupported JSON %q", truncate(data, 16))
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(b) * 4)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Response is one decoded device notification. Raw always carries the
// received text; Fields is nil when the text was not a JSON object, which
// is the null marker for diagnostic lines sharing the channel.
type Response struct {
	Raw    string
	Fields map[string]any
}

// Decode never fails: unparseable frames yield the null marker.
func Decode(frame []byte) Response {
	text := strings.ToValidUTF8(string(frame), "")
	text = strings.TrimRight(text, "\r\n")

	return Response{Raw: text, Fields: decodeObject(text)}
}

func decodeObject(text string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return nil
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil
	}

	return obj
}

// Valid reports whether the notification decoded to a structured payload.
func (r Response) Valid() bool {
	return r.Fields != nil
}

// Int returns an integral field value.
func (r Response) Int(key string) (int64, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func (r Response) String(key string) (string, bool) {
	s, ok := r.Fields[key].(string)
	return s, ok
}

func (r Response) Bool(key string) (bool, bool) {
	b, ok := r.Fields[key].(bool)
	return b, ok
}

// Status returns the conventional "status" field, if any.
func (r Response) Status() string {
	s, _ := r.String("status")
	return s
}

// Into unmarshals the original text into v, keeping nested values such as
// records byte-for-byte.
func (r Response) Into(v any) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %q", ErrMalformedResponse, r.Raw)
	}
	if err := json.Unmarshal([]byte(r.Raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}

// Pretty renders the structured payload as indented JSON, or the raw text
// for the null marker.
func (r Response) Pretty() string {
	if !r.Valid() {
		return r.Raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(r.Raw), "", "  "); err != nil {
		return r.Raw
	}

	return buf.String()
}

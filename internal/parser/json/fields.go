package json

import (
	"bytes"
	"fmt"
	"strconv"

	gojson "github.com/goccy/go-json"

	"sparkify/internal/etlerr"
)

var null = []byte("null")

// fields is one decoded JSON object, kept raw so key presence, null and type
// can be checked per field before anything is converted.
//
// Accessors are sticky: after the first failure they return zero values and
// err keeps that first failure.
type fields struct {
	source string
	line   int
	m      map[string]gojson.RawMessage
	err    error
}

func (f *fields) fail(key, reason string, err error) {
	if f.err == nil {
		f.err = &etlerr.SchemaError{Path: f.source, Line: f.line, Field: key, Reason: reason, Err: err}
	}
}

// value returns the raw value of a key that must be present; ok is false
// after a failure or when the value is JSON null.
func (f *fields) value(key string, nullable bool) (raw gojson.RawMessage, ok bool) {
	if f.err != nil {
		return nil, false
	}
	raw, present := f.m[key]
	if !present {
		f.fail(key, "missing", nil)
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, null) {
		if !nullable {
			f.fail(key, "null", nil)
		}
		return nil, false
	}
	return raw, true
}

func (f *fields) decode(key string, raw gojson.RawMessage, dst any, want string) bool {
	if err := gojson.Unmarshal(raw, dst); err != nil {
		f.fail(key, "want "+want, err)
		return false
	}
	return true
}

func (f *fields) str(key string) string {
	var s string
	if raw, ok := f.value(key, false); ok {
		f.decode(key, raw, &s, "string")
	}
	return s
}

func (f *fields) nonEmptyStr(key string) string {
	s := f.str(key)
	if f.err == nil && s == "" {
		f.fail(key, "empty", nil)
	}
	return s
}

func (f *fields) optStr(key string) *string {
	raw, ok := f.value(key, true)
	if !ok {
		return nil
	}
	var s string
	if !f.decode(key, raw, &s, "string") {
		return nil
	}
	return &s
}

func (f *fields) float(key string) float64 {
	var v float64
	if raw, ok := f.value(key, false); ok {
		f.decode(key, raw, &v, "number")
	}
	return v
}

func (f *fields) optFloat(key string) *float64 {
	raw, ok := f.value(key, true)
	if !ok {
		return nil
	}
	var v float64
	if !f.decode(key, raw, &v, "number") {
		return nil
	}
	return &v
}

func (f *fields) int64(key string) int64 {
	var v int64
	if raw, ok := f.value(key, false); ok {
		f.decode(key, raw, &v, "integer")
	}
	return v
}

// id accepts a JSON string or a JSON integer and returns its text form.
// Activity logs carry userId as a string; some exports carry a number.
func (f *fields) id(key string) string {
	raw, ok := f.value(key, false)
	if !ok {
		return ""
	}

	var s string
	if raw[0] == '"' {
		if !f.decode(key, raw, &s, "string or integer") {
			return ""
		}
	} else {
		var n int64
		if !f.decode(key, raw, &n, "string or integer") {
			return ""
		}
		s = strconv.FormatInt(n, 10)
	}
	if s == "" {
		f.fail(key, "empty", nil)
	}
	return s
}

// parseObject decodes data as one JSON object. Anything else, including
// trailing bytes after the object, is a *etlerr.MalformedRecordError.
func parseObject(data []byte, source string, line int) (*fields, error) {
	var m map[string]gojson.RawMessage
	if err := gojson.Unmarshal(data, &m); err != nil {
		return nil, &etlerr.MalformedRecordError{Path: source, Line: line, Err: err}
	}
	if m == nil {
		return nil, &etlerr.MalformedRecordError{Path: source, Line: line, Err: fmt.Errorf("not an object")}
	}
	return &fields{source: source, line: line, m: m}, nil
}

package model

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The map API is loosely typed: the same attribute arrives as a number in one
// response and as a string (or null) in the next. The scalar wrappers below
// accept any JSON scalar, keep null as null, and double as database/sql values
// through the embedded sql.Null* types.

var jsonNull = []byte("null")

// Text is a nullable string. Numbers and booleans are kept in their literal form.
type Text struct {
	sql.NullString
}

// NewText returns a valid Text.
func NewText(s string) Text {
	return Text{sql.NullString{String: s, Valid: true}}
}

// TextPtr converts an optional string, nil becoming null.
func TextPtr(s *string) Text {
	if s == nil {
		return Text{}
	}
	return NewText(*s)
}

// Ptr returns the value or nil when null.
func (t Text) Ptr() *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, jsonNull) {
		*t = Text{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = NewText(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		// Nested structures are stored as their raw JSON.
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return err
		}
		*t = NewText(buf.String())
		return nil
	}
	*t = NewText(string(data))
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return jsonNull, nil
	}
	return json.Marshal(t.String)
}

// Number is a nullable float that also accepts numeric strings.
type Number struct {
	sql.NullFloat64
}

// NewNumber returns a valid Number.
func NewNumber(f float64) Number {
	return Number{sql.NullFloat64{Float64: f, Valid: true}}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	raw, ok, err := scalar(data)
	if err != nil || !ok {
		*n = Number{}
		return err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", raw, err)
	}
	*n = NewNumber(f)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return jsonNull, nil
	}
	return json.Marshal(n.Float64)
}

// Integer is a nullable int64 that also accepts numeric strings, integral
// floats and booleans (true = 1).
type Integer struct {
	sql.NullInt64
}

// NewInteger returns a valid Integer.
func NewInteger(i int64) Integer {
	return Integer{sql.NullInt64{Int64: i, Valid: true}}
}

func (i *Integer) UnmarshalJSON(data []byte) error {
	raw, ok, err := scalar(data)
	if err != nil || !ok {
		*i = Integer{}
		return err
	}
	switch raw {
	case "true":
		*i = NewInteger(1)
		return nil
	case "false":
		*i = NewInteger(0)
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*i = NewInteger(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return fmt.Errorf("integer %q: not an integral value", raw)
	}
	*i = NewInteger(int64(f))
	return nil
}

func (i Integer) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return jsonNull, nil
	}
	return json.Marshal(i.Int64)
}

// scalar unwraps a JSON scalar into its literal text. Empty strings count as
// null. ok is false for null.
func scalar(data []byte) (raw string, ok bool, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return "", false, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		s = strings.TrimSpace(s)
		return s, s != "", nil
	}
	if data[0] == '{' || data[0] == '[' {
		return "", false, fmt.Errorf("expected scalar, got %s", string(data[:1]))
	}
	return string(data), true, nil
}

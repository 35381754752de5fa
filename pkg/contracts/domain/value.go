package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the declared type of a canonical column.
type Kind string

const (
	KindDate    Kind = "date"
	KindDecimal Kind = "decimal"
	KindInteger Kind = "integer"
	KindText    Kind = "text"
	KindBoolean Kind = "boolean"
)

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDate, KindDecimal, KindInteger, KindText, KindBoolean:
		return true
	}
	return false
}

// DateLayout is the canonical rendering for date-kind values.
const DateLayout = "2006-01-02"

// Value is one canonical cell: either a properly typed payload or the explicit
// missing marker. A raw string never masquerades as data; coercion either
// produces a typed value or marks the cell missing.
type Value struct {
	Kind    Kind
	Missing bool

	date    time.Time
	number  float64
	integer int64
	text    string
	boolean bool
}

// MissingValue returns the explicit missing marker for the given kind.
func MissingValue(kind Kind) Value {
	return Value{Kind: kind, Missing: true}
}

// DateValue returns a date-kind value truncated to the day in UTC.
func DateValue(t time.Time) Value {
	y, m, d := t.UTC().Date()
	return Value{Kind: KindDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DecimalValue returns a decimal-kind value.
func DecimalValue(f float64) Value {
	return Value{Kind: KindDecimal, number: f}
}

// IntegerValue returns an integer-kind value.
func IntegerValue(i int64) Value {
	return Value{Kind: KindInteger, integer: i}
}

// TextValue returns a text-kind value. Empty text is the missing marker.
func TextValue(s string) Value {
	if s == "" {
		return MissingValue(KindText)
	}
	return Value{Kind: KindText, text: s}
}

// BoolValue returns a boolean-kind value.
func BoolValue(b bool) Value {
	return Value{Kind: KindBoolean, boolean: b}
}

// IsMissing reports whether the cell carries no value.
func (v Value) IsMissing() bool { return v.Missing }

// Date returns the date payload. Valid only for non-missing date kind.
func (v Value) Date() time.Time { return v.date }

// Decimal returns the decimal payload. Valid only for non-missing decimal kind.
func (v Value) Decimal() float64 { return v.number }

// Integer returns the integer payload. Valid only for non-missing integer kind.
func (v Value) Integer() int64 { return v.integer }

// Text returns the text payload. Valid only for non-missing text kind.
func (v Value) Text() string { return v.text }

// Bool returns the boolean payload. Valid only for non-missing boolean kind.
func (v Value) Bool() bool { return v.boolean }

// Float returns the numeric payload of a decimal or integer value and whether
// one was present.
func (v Value) Float() (float64, bool) {
	if v.Missing {
		return 0, false
	}
	switch v.Kind {
	case KindDecimal:
		return v.number, true
	case KindInteger:
		return float64(v.integer), true
	}
	return 0, false
}

// Render returns the cell in its artifact form: dates as 2006-01-02, decimals
// in minimal notation, booleans as true/false, missing as the empty string.
func (v Value) Render() string {
	if v.Missing {
		return ""
	}
	switch v.Kind {
	case KindDate:
		return v.date.Format(DateLayout)
	case KindDecimal:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindBoolean:
		return strconv.FormatBool(v.boolean)
	default:
		return v.text
	}
}

// Equal reports whether two cells hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Missing != o.Missing {
		return false
	}
	if v.Missing {
		return true
	}
	switch v.Kind {
	case KindDate:
		return v.date.Equal(o.date)
	case KindDecimal:
		return v.number == o.number
	case KindInteger:
		return v.integer == o.integer
	case KindBoolean:
		return v.boolean == o.boolean
	default:
		return v.text == o.text
	}
}

// jsonValue is the wire shape of a Value.
type jsonValue struct {
	Kind    Kind        `json:"kind"`
	Missing bool        `json:"missing,omitempty"`
	Value   interface{} `json:"value,omitempty"`
}

// MarshalJSON renders the payload in its native JSON type with the kind tag.
func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: v.Kind, Missing: v.Missing}
	if !v.Missing {
		switch v.Kind {
		case KindDate:
			jv.Value = v.date.Format(DateLayout)
		case KindDecimal:
			jv.Value = v.number
		case KindInteger:
			jv.Value = v.integer
		case KindBoolean:
			jv.Value = v.boolean
		default:
			jv.Value = v.text
		}
	}
	return json.Marshal(jv)
}

// UnmarshalJSON restores a Value from its wire shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	if jv.Missing || jv.Value == nil {
		*v = MissingValue(jv.Kind)
		return nil
	}
	switch jv.Kind {
	case KindDate:
		s, ok := jv.Value.(string)
		if !ok {
			return fmt.Errorf("date value must be a string, got %T", jv.Value)
		}
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return fmt.Errorf("parse date value: %w", err)
		}
		*v = DateValue(t)
	case KindDecimal:
		f, ok := jv.Value.(float64)
		if !ok {
			return fmt.Errorf("decimal value must be a number, got %T", jv.Value)
		}
		*v = DecimalValue(f)
	case KindInteger:
		f, ok := jv.Value.(float64)
		if !ok {
			return fmt.Errorf("integer value must be a number, got %T", jv.Value)
		}
		*v = IntegerValue(int64(f))
	case KindBoolean:
		b, ok := jv.Value.(bool)
		if !ok {
			return fmt.Errorf("boolean value must be a bool, got %T", jv.Value)
		}
		*v = BoolValue(b)
	case KindText:
		s, ok := jv.Value.(string)
		if !ok {
			return fmt.Errorf("text value must be a string, got %T", jv.Value)
		}
		*v = TextValue(s)
	default:
		return fmt.Errorf("unknown value kind %q", jv.Kind)
	}
	return nil
}

package forms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindDate
)

// Value is the tagged union a form field stores. Numbers are kept as the
// numeric string the user entered, never parsed into a float before storage;
// dates are normalized to YYYY-MM-DD.
type Value struct {
	kind    Kind
	str     string
	boolean bool
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

func Number(s string) (Value, error) {
	if s != "" {
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return Value{}, fmt.Errorf("'%v' is not a valid number", s)
		}
	}
	return Value{kind: KindNumber, str: s}, nil
}

const dateLayout = "2006-01-02"

func Date(s string) (Value, error) {
	if s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			return Value{}, fmt.Errorf("'%v' is not a valid date, expected YYYY-MM-DD", s)
		}
		s = parsed.Format(dateLayout)
	}
	return Value{kind: KindDate, str: s}, nil
}

func (v Value) Kind() Kind {
	return v.kind
}

// IsEmpty reports whether the value still holds its seeded default. A
// checkbox always has a definite value and is never empty.
func (v Value) IsEmpty() bool {
	if v.kind == KindBool {
		return false
	}
	return v.str == ""
}

func (v Value) Str() string {
	return v.str
}

func (v Value) Boolean() bool {
	return v.boolean
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindBool {
		return json.Marshal(v.boolean)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var boolean bool
	if err := json.Unmarshal(data, &boolean); err == nil {
		*v = Bool(boolean)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("field values must be strings or booleans")
	}
	*v = String(str)
	return nil
}

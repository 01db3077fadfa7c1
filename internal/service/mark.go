package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MarkKind discriminates Mark.
type MarkKind int

const (
	// MarkRaw is free text the model returned in place of a number.
	MarkRaw MarkKind = iota
	// MarkNumeric is a parsed numeric mark.
	MarkNumeric
)

// NotAvailable is the mark used when the model response could not be parsed.
const NotAvailable = "N/A"

// Mark is either Numeric(value) or Raw(text).
type Mark struct {
	kind  MarkKind
	value float64
	raw   string
}

// NumericMark returns a numeric mark.
func NumericMark(v float64) Mark {
	return Mark{kind: MarkNumeric, value: v}
}

// RawMark returns a free-text mark.
func RawMark(s string) Mark {
	return Mark{kind: MarkRaw, raw: s}
}

// ParseMark trims s and parses it as a finite number, keeping it as text otherwise.
// An empty string yields RawMark(NotAvailable).
func ParseMark(s string) Mark {
	s = strings.TrimSpace(s)
	if s == "" {
		return RawMark(NotAvailable)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return RawMark(s)
	}
	return NumericMark(v)
}

// Kind reports which variant m holds.
func (m Mark) Kind() MarkKind {
	return m.kind
}

// Numeric returns the value and true for numeric marks.
func (m Mark) Numeric() (float64, bool) {
	return m.value, m.kind == MarkNumeric
}

// String renders the mark for reports. Whole numbers keep one decimal place,
// so 85 prints as "85.0".
func (m Mark) String() string {
	if m.kind == MarkRaw {
		return m.raw
	}
	if m.value == math.Trunc(m.value) && math.Abs(m.value) < 1e15 {
		return strconv.FormatFloat(m.value, 'f', 1, 64)
	}
	return strconv.FormatFloat(m.value, 'f', -1, 64)
}

// MarshalJSON encodes numeric marks as numbers and raw marks as strings.
func (m Mark) MarshalJSON() ([]byte, error) {
	if m.kind == MarkNumeric {
		return json.Marshal(m.value)
	}
	return json.Marshal(m.raw)
}

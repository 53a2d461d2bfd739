// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Type coercion for rule values and record attributes.
 *
 * Rule values are text. ParseValue interprets one for a (type, operator)
 * pair and is the single validation point used by both the editor and the
 * compiler, so an accepted edit always compiles.
 *
 * Record attributes arrive as whatever the population source produced.
 * coerceRecord maps them onto the field's semantic type:
 *   - number: float64/intN/uintN, json.Number, numeric strings (trimmed);
 *     booleans and blank strings fail
 *   - string: strings as-is, numbers and booleans formatted; composites fail
 *   - date: time.Time or a string in one of dateLayouts; numbers fail
 *
 * nil and absent attributes are "missing", never a coercion failure.
 *
 * Range encoding: between takes "min,max" with both bounds inclusive and
 * surrounding whitespace ignored. Dates are compared as UTC calendar days.
 */

// dateLayouts are tried in order when parsing date text.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// RangeSeparator separates the bounds of a between value.
const RangeSeparator = ","

// operand is a rule value pre-parsed for its (type, operator).
type operand struct {
	text   string
	num    float64
	lo, hi float64
	day    time.Time
	dlo    time.Time
	dhi    time.Time
	days   int
}

// ParseValue validates raw for the given type and operator. Empty values are
// reported as invalid; callers that tolerate incomplete rules check for ""
// first.
func ParseValue(ft FieldType, op Operator, raw string) error {
	_, err := parseOperand(ft, op, raw)
	return err
}

func parseOperand(ft FieldType, op Operator, raw string) (operand, error) {
	if len(raw) > types.MaxValueLength {
		return operand{}, &types.ValidationError{Err: types.ErrValueTooLong, Operator: string(op)}
	}
	invalid := func(reason string) (operand, error) {
		return operand{}, &types.ValidationError{Err: types.ErrInvalidValue, Operator: string(op), Value: raw, Reason: reason}
	}
	if strings.TrimSpace(raw) == "" {
		return invalid("value is empty")
	}

	switch ft {
	case TypeString:
		return operand{text: raw}, nil

	case TypeNumber:
		if op == OpBetween {
			lo, hi, ok := splitRange(raw)
			if !ok {
				return invalid("expected min,max")
			}
			l, err1 := parseNumber(lo)
			h, err2 := parseNumber(hi)
			if err1 != nil || err2 != nil {
				return invalid("range bounds must be numbers")
			}
			if l > h {
				return invalid("range minimum exceeds maximum")
			}
			return operand{lo: l, hi: h}, nil
		}
		n, err := parseNumber(raw)
		if err != nil {
			return invalid("not a number")
		}
		return operand{num: n}, nil

	case TypeDate:
		switch op {
		case OpDaysAgo:
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || n < 0 {
				return invalid("expected a non-negative whole number of days")
			}
			return operand{days: n}, nil
		case OpBetween:
			lo, hi, ok := splitRange(raw)
			if !ok {
				return invalid("expected start,end")
			}
			l, err1 := parseDate(lo)
			h, err2 := parseDate(hi)
			if err1 != nil || err2 != nil {
				return invalid("range bounds must be dates")
			}
			if l.After(h) {
				return invalid("range start is after end")
			}
			return operand{dlo: l, dhi: h}, nil
		default:
			d, err := parseDate(raw)
			if err != nil {
				return invalid("not a date")
			}
			return operand{day: d}, nil
		}
	}
	return invalid(fmt.Sprintf("unknown field type %q", ft))
}

func splitRange(raw string) (string, string, bool) {
	lo, hi, ok := strings.Cut(raw, RangeSeparator)
	if !ok || strings.Contains(hi, RangeSeparator) {
		return "", "", false
	}
	return strings.TrimSpace(lo), strings.TrimSpace(hi), true
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}

// parseDate returns the UTC calendar day of s.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// coerceResult is a record attribute mapped onto a semantic type.
type coerceResult struct {
	text    string
	num     float64
	instant time.Time
	missing bool
}

// coerceRecord converts a record attribute to ft. The error is non-nil only
// for present but incoercible values.
func coerceRecord(ft FieldType, v any) (coerceResult, error) {
	if v == nil {
		return coerceResult{missing: true}, nil
	}
	switch ft {
	case TypeNumber:
		n, ok := toFloat64(v)
		if !ok {
			return coerceResult{}, fmt.Errorf("%v is not a number", v)
		}
		return coerceResult{num: n}, nil
	case TypeString:
		s, ok := toText(v)
		if !ok {
			return coerceResult{}, fmt.Errorf("%T is not text", v)
		}
		return coerceResult{text: s}, nil
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			if d.IsZero() {
				return coerceResult{missing: true}, nil
			}
			return coerceResult{instant: d}, nil
		case *time.Time:
			if d == nil || d.IsZero() {
				return coerceResult{missing: true}, nil
			}
			return coerceResult{instant: *d}, nil
		case string:
			s := strings.TrimSpace(d)
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return coerceResult{instant: t}, nil
				}
			}
			return coerceResult{}, fmt.Errorf("unrecognized date %q", d)
		}
		return coerceResult{}, fmt.Errorf("%T is not a date", v)
	}
	return coerceResult{}, fmt.Errorf("unknown field type %q", ft)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := parseNumber(n)
		return f, err == nil
	default:
		return 0, false
	}
}

func toText(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

// internal/rules/operators.go
package rules

import (
	"strings"
	"time"
)

/*
 * Operator comparison logic.
 *
 * Values reaching these functions are already coerced: the rule side by
 * parseOperand at compile time, the record side by coerceRecord.
 *
 * Operators by type:
 *   - string: equals, contains, startsWith, endsWith (folded unless the
 *     program is case-sensitive)
 *   - number: equals, greaterThan, lessThan (strict), between (inclusive)
 *   - date: before, after (strict, by calendar day), between (inclusive),
 *     daysAgo (whole days elapsed at the reference time >= N)
 */

const day = 24 * time.Hour

func compareText(op Operator, value, target string) bool {
	switch op {
	case OpEquals:
		return value == target
	case OpContains:
		return strings.Contains(value, target)
	case OpStartsWith:
		return strings.HasPrefix(value, target)
	case OpEndsWith:
		return strings.HasSuffix(value, target)
	default:
		return false
	}
}

func compareNumber(op Operator, value float64, target operand) bool {
	switch op {
	case OpEquals:
		return value == target.num
	case OpGreaterThan:
		return value > target.num
	case OpLessThan:
		return value < target.num
	case OpBetween:
		return value >= target.lo && value <= target.hi
	default:
		return false
	}
}

func compareDate(op Operator, value time.Time, target operand, now time.Time) bool {
	switch op {
	case OpBefore:
		return calendarDay(value).Before(target.day)
	case OpAfter:
		return calendarDay(value).After(target.day)
	case OpBetween:
		d := calendarDay(value)
		return !d.Before(target.dlo) && !d.After(target.dhi)
	case OpDaysAgo:
		return elapsedDays(value, now) >= target.days
	default:
		return false
	}
}

// elapsedDays is the number of whole days from t to now; negative when t is
// in the future.
func elapsedDays(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return -int((-d + day - 1) / day)
	}
	return int(d / day)
}

package translate

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/segmenter/internal/rules"
)

/*
 * Offline keyword translator.
 *
 * Recognizes a handful of marketing phrasings and pulls the number that
 * follows them:
 *
 *   "haven't shopped in 6 months" -> lastPurchaseDate daysAgo 180
 *   "spent over 5K"               -> totalSpend greaterThan 5000
 *   "spent less than 200"         -> totalSpend lessThan 200
 *   "visited less than 3 times"   -> visits lessThan 3
 *   "more than 10 visits"         -> visits greaterThan 10
 *
 * Phrases without a number use the defaults below. Clauses join with OR when
 * the query says "or", AND otherwise. A query with no recognizable phrase
 * yields an empty AND group.
 */

const (
	defaultInactiveDays = 180
	defaultSpend        = 5000
	defaultVisits       = 3
)

var (
	inactivePattern   = regexp.MustCompile(`(?:haven'?t|have not|not) (?:shopped|purchased|bought)|inactive`)
	durationPattern   = regexp.MustCompile(`(\d+)\s*(day|week|month|year)s?`)
	spendOverPattern  = regexp.MustCompile(`(?:spent|spend|spending)\s+(?:over|more than|above|at least)\s*[^\d\s]?\s*([\d,.]+)\s*([km])?\b`)
	spendOverBare     = regexp.MustCompile(`(?:spent|spend|spending)\s+(?:over|more than|above|at least)|high spenders?|big spenders?`)
	spendUnderPattern = regexp.MustCompile(`(?:spent|spend|spending)\s+(?:under|less than|below)\s*[^\d\s]?\s*([\d,.]+)\s*([km])?\b`)
	visitsFewPattern  = regexp.MustCompile(`(?:visited\s+(?:less|fewer)\s+than|fewer\s+than|less\s+than)\s+(\d+)\s+(?:times|visits)`)
	visitsFewBare     = regexp.MustCompile(`visited\s+(?:less|fewer)\s+than|fewer\s+visits|rarely visit`)
	visitsManyPattern = regexp.MustCompile(`(?:visited\s+more\s+than|more\s+than)\s+(\d+)\s+(?:times|visits)`)
	orPattern         = regexp.MustCompile(`\bor\b`)
)

// KeywordTranslator is the offline fallback translator.
type KeywordTranslator struct{}

// NewKeywordTranslator returns a keyword translator.
func NewKeywordTranslator() *KeywordTranslator { return &KeywordTranslator{} }

// Name implements Translator.
func (*KeywordTranslator) Name() string { return "keyword" }

// Translate implements Translator.
func (k *KeywordTranslator) Translate(_ context.Context, query string) (json.RawMessage, error) {
	q := strings.ToLower(strings.ReplaceAll(query, "’", "'"))

	var children []rules.Document
	add := func(field string, op rules.Operator, value string) {
		children = append(children, rules.Document{Type: rules.NodeTypeRule, Field: field, Operator: string(op), Value: value})
	}

	if inactivePattern.MatchString(q) {
		days := defaultInactiveDays
		if m := durationPattern.FindStringSubmatch(q); m != nil {
			days = toDays(m[1], m[2])
		}
		add("lastPurchaseDate", rules.OpDaysAgo, strconv.Itoa(days))
	}

	switch m := spendOverPattern.FindStringSubmatch(q); {
	case m != nil:
		add("totalSpend", rules.OpGreaterThan, amount(m[1], m[2], defaultSpend))
	case spendOverBare.MatchString(q):
		add("totalSpend", rules.OpGreaterThan, strconv.Itoa(defaultSpend))
	}
	if m := spendUnderPattern.FindStringSubmatch(q); m != nil {
		add("totalSpend", rules.OpLessThan, amount(m[1], m[2], defaultSpend))
	}

	switch m := visitsFewPattern.FindStringSubmatch(q); {
	case m != nil:
		add("visits", rules.OpLessThan, m[1])
	case visitsFewBare.MatchString(q):
		add("visits", rules.OpLessThan, strconv.Itoa(defaultVisits))
	}
	if m := visitsManyPattern.FindStringSubmatch(q); m != nil {
		add("visits", rules.OpGreaterThan, m[1])
	}

	combinator := rules.And
	if len(children) > 1 && orPattern.MatchString(q) {
		combinator = rules.Or
	}
	return json.Marshal(rules.Document{Type: rules.NodeTypeGroup, Combinator: string(combinator), Children: children})
}

func toDays(n, unit string) int {
	v, _ := strconv.Atoi(n)
	switch unit {
	case "week":
		return v * 7
	case "month":
		return v * 30
	case "year":
		return v * 365
	}
	return v
}

// amount parses "5,000", "5k" or "1.5m" as a whole number string.
func amount(digits, suffix string, fallback int) string {
	f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	if err != nil {
		return strconv.Itoa(fallback)
	}
	switch suffix {
	case "k":
		f *= 1_000
	case "m":
		f *= 1_000_000
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

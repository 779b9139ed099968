// Package detect matches normalized signals against versioned correlation
// rules and emits immutable detections.
package detect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"

	"vigil/core"
)

// regexMatchTimeout bounds backtracking on the regex operator. regexp2 gives
// proper match timeouts, which the stdlib engine does not expose.
const regexMatchTimeout = 500 * time.Millisecond

// regexCacheSize bounds the compiled-pattern cache.
const regexCacheSize = 512

// MatchResult is the outcome of evaluating one rule against one signal.
// The trace covers every condition up to the cap; evaluation never
// short-circuits, so traces are stable across replays.
type MatchResult struct {
	Matched bool
	Trace   []core.TraceStep
}

// Evaluator evaluates a rule's ordered condition list against a signal with
// AND semantics. Pure except for the internal compiled-regex cache.
type Evaluator struct {
	regexCache *lru.Cache[string, *regexp2.Regexp]
}

// NewEvaluator creates an Evaluator with a bounded regex cache.
func NewEvaluator() *Evaluator {
	cache, _ := lru.New[string, *regexp2.Regexp](regexCacheSize)
	return &Evaluator{regexCache: cache}
}

// Evaluate runs every condition of the rule against the signal, in declared
// order, and records one trace step per condition. An empty condition list is
// an explicit unconditional match. Trace entries beyond core.MaxTraceSteps are
// dropped and a single TRUNCATED marker is appended.
func (ev *Evaluator) Evaluate(rule *core.CorrelationRule, sig *core.NormalizedSignal) MatchResult {
	if len(rule.Filters) == 0 {
		return MatchResult{Matched: true}
	}

	matched := true
	trace := make([]core.TraceStep, 0, min(len(rule.Filters), core.MaxTraceSteps+1))

	for i, cond := range rule.Filters {
		actual, exists := fieldValue(sig, cond.Field)
		passed := ev.evaluateCondition(cond, actual, exists)
		matched = matched && passed

		if i < core.MaxTraceSteps {
			trace = append(trace, core.TraceStep{
				Step:     i + 1,
				Field:    cond.Field,
				Operator: cond.Operator,
				Expected: cond.Value,
				Actual:   actual,
				Passed:   passed,
			})
		} else if i == core.MaxTraceSteps {
			trace = append(trace, core.TraceStep{
				Step:     i + 1,
				Operator: core.TraceStepTruncated,
			})
		}
	}

	return MatchResult{Matched: matched, Trace: trace}
}

// evaluateCondition evaluates a single operator. Unknown operators and type
// mismatches evaluate false; nothing in here ever returns an error.
func (ev *Evaluator) evaluateCondition(cond core.Condition, actual interface{}, exists bool) bool {
	switch cond.Operator {
	case "exists":
		return exists
	case "not_exists":
		return !exists
	}

	if !exists {
		return false
	}

	switch cond.Operator {
	case "equals":
		return looseEqual(actual, cond.Value)
	case "not_equals":
		return !looseEqual(actual, cond.Value)
	case "contains":
		return stringOp(actual, cond.Value, strings.Contains)
	case "not_contains":
		return !stringOp(actual, cond.Value, strings.Contains)
	case "starts_with":
		return stringOp(actual, cond.Value, strings.HasPrefix)
	case "ends_with":
		return stringOp(actual, cond.Value, strings.HasSuffix)
	case "greater_than":
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a > b })
	case "greater_than_or_equal":
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a >= b })
	case "less_than":
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a < b })
	case "less_than_or_equal":
		return compareNumbers(actual, cond.Value, func(a, b float64) bool { return a <= b })
	case "in":
		return inList(actual, cond.Value)
	case "not_in":
		return !inList(actual, cond.Value)
	case "regex":
		return ev.matchRegex(cond.Value, actual)
	}
	return false
}

// matchRegex evaluates the regex operator. An invalid pattern or a match
// timeout evaluates false, never an error: a broken rule must not take down
// signal processing.
func (ev *Evaluator) matchRegex(pattern, actual interface{}) bool {
	patternStr, ok := pattern.(string)
	if !ok || patternStr == "" {
		return false
	}
	input, ok := actual.(string)
	if !ok {
		return false
	}

	re, ok := ev.regexCache.Get(patternStr)
	if !ok {
		compiled, err := regexp2.Compile(patternStr, regexp2.RE2)
		if err != nil {
			return false
		}
		compiled.MatchTimeout = regexMatchTimeout
		ev.regexCache.Add(patternStr, compiled)
		re = compiled
	}

	matched, err := re.MatchString(input)
	if err != nil {
		return false
	}
	return matched
}

// fieldValue resolves a condition field against a signal: canonical top-level
// attributes first, then the signal's structured fields.
func fieldValue(sig *core.NormalizedSignal, field string) (interface{}, bool) {
	switch field {
	case "signalId":
		return sig.SignalID, true
	case "sourceId":
		return sig.SourceID, true
	case "type":
		return sig.Type, true
	case "service":
		return sig.Service, true
	case "severity":
		return sig.Severity, true
	case "identityWindow":
		return sig.IdentityWindow, true
	}
	if sig.Fields == nil {
		return nil, false
	}
	v, ok := sig.Fields[field]
	return v, ok
}

func looseEqual(a, b interface{}) bool {
	if fa, oka := toFloat(a); oka {
		if fb, okb := toFloat(b); okb {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func stringOp(actual, expected interface{}, op func(string, string) bool) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	e, ok := expected.(string)
	if !ok {
		return false
	}
	return op(s, e)
}

func compareNumbers(a, b interface{}, cmp func(float64, float64) bool) bool {
	fa, ok := toFloat(a)
	if !ok {
		return false
	}
	fb, ok := toFloat(b)
	if !ok {
		return false
	}
	return cmp(fa, fb)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func inList(actual, expected interface{}) bool {
	list, ok := expected.([]interface{})
	if !ok {
		if strs, ok := expected.([]string); ok {
			for _, s := range strs {
				if looseEqual(actual, s) {
					return true
				}
			}
		}
		return false
	}
	for _, item := range list {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}

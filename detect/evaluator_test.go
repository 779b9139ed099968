package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/core"
)

func testSignal() *core.NormalizedSignal {
	return &core.NormalizedSignal{
		SignalID:   "sig-1",
		SourceID:   "alarm:checkout-5xx",
		Type:       "metric_alarm",
		Service:    "checkout",
		Severity:   core.SeverityHigh,
		ObservedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Fields: map[string]interface{}{
			"errorRate": 0.12,
			"region":    "eu-west-1",
			"message":   "threshold crossed: 5xx rate",
		},
	}
}

func ruleWithFilters(filters ...core.Condition) *core.CorrelationRule {
	return &core.CorrelationRule{
		RuleID:      "rule-1",
		RuleVersion: "1.0.0",
		Severity:    core.SeverityHigh,
		Filters:     filters,
	}
}

func TestEvaluator_Operators(t *testing.T) {
	ev := NewEvaluator()

	testCases := []struct {
		name string
		cond core.Condition
		want bool
	}{
		{"equals string", core.Condition{Field: "service", Operator: "equals", Value: "checkout"}, true},
		{"equals mismatch", core.Condition{Field: "service", Operator: "equals", Value: "billing"}, false},
		{"equals number", core.Condition{Field: "errorRate", Operator: "equals", Value: 0.12}, true},
		{"not_equals", core.Condition{Field: "service", Operator: "not_equals", Value: "billing"}, true},
		{"contains", core.Condition{Field: "message", Operator: "contains", Value: "5xx"}, true},
		{"not_contains", core.Condition{Field: "message", Operator: "not_contains", Value: "timeout"}, true},
		{"starts_with", core.Condition{Field: "message", Operator: "starts_with", Value: "threshold"}, true},
		{"ends_with", core.Condition{Field: "message", Operator: "ends_with", Value: "rate"}, true},
		{"greater_than", core.Condition{Field: "errorRate", Operator: "greater_than", Value: 0.1}, true},
		{"greater_than false", core.Condition{Field: "errorRate", Operator: "greater_than", Value: 0.5}, false},
		{"greater_than_or_equal", core.Condition{Field: "errorRate", Operator: "greater_than_or_equal", Value: 0.12}, true},
		{"less_than", core.Condition{Field: "errorRate", Operator: "less_than", Value: 1.0}, true},
		{"less_than_or_equal", core.Condition{Field: "errorRate", Operator: "less_than_or_equal", Value: 0.12}, true},
		{"numeric from string", core.Condition{Field: "errorRate", Operator: "greater_than", Value: "0.1"}, true},
		{"exists", core.Condition{Field: "region", Operator: "exists"}, true},
		{"exists missing", core.Condition{Field: "nosuch", Operator: "exists"}, false},
		{"not_exists", core.Condition{Field: "nosuch", Operator: "not_exists"}, true},
		{"in", core.Condition{Field: "region", Operator: "in", Value: []interface{}{"us-east-1", "eu-west-1"}}, true},
		{"in string slice", core.Condition{Field: "region", Operator: "in", Value: []string{"eu-west-1"}}, true},
		{"not_in", core.Condition{Field: "region", Operator: "not_in", Value: []interface{}{"us-east-1"}}, true},
		{"regex", core.Condition{Field: "message", Operator: "regex", Value: `^threshold.*rate$`}, true},
		{"regex no match", core.Condition{Field: "message", Operator: "regex", Value: `^timeout`}, false},
		{"invalid regex evaluates false", core.Condition{Field: "message", Operator: "regex", Value: `([unclosed`}, false},
		{"regex on non-string", core.Condition{Field: "errorRate", Operator: "regex", Value: `.*`}, false},
		{"unknown operator", core.Condition{Field: "service", Operator: "fuzzy_match", Value: "checkout"}, false},
		{"missing field non-exists op", core.Condition{Field: "nosuch", Operator: "equals", Value: "x"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ev.Evaluate(ruleWithFilters(tc.cond), testSignal())
			assert.Equal(t, tc.want, result.Matched)
			require.Len(t, result.Trace, 1)
			assert.Equal(t, tc.want, result.Trace[0].Passed)
		})
	}
}

func TestEvaluator_EmptyConditionsIsUnconditionalMatch(t *testing.T) {
	ev := NewEvaluator()
	result := ev.Evaluate(ruleWithFilters(), testSignal())
	assert.True(t, result.Matched)
	assert.Empty(t, result.Trace)
}

func TestEvaluator_NoShortCircuit(t *testing.T) {
	ev := NewEvaluator()
	rule := ruleWithFilters(
		core.Condition{Field: "service", Operator: "equals", Value: "billing"}, // fails
		core.Condition{Field: "severity", Operator: "equals", Value: core.SeverityHigh},
		core.Condition{Field: "type", Operator: "equals", Value: "metric_alarm"},
	)

	result := ev.Evaluate(rule, testSignal())
	assert.False(t, result.Matched)
	// Every condition is traced even though the first already failed.
	require.Len(t, result.Trace, 3)
	assert.False(t, result.Trace[0].Passed)
	assert.True(t, result.Trace[1].Passed)
	assert.True(t, result.Trace[2].Passed)
}

func TestEvaluator_TraceTruncation(t *testing.T) {
	ev := NewEvaluator()

	conditions := make([]core.Condition, core.MaxTraceSteps+5)
	for i := range conditions {
		conditions[i] = core.Condition{Field: "service", Operator: "equals", Value: "checkout"}
	}
	// The very last condition fails; truncation must not skip its evaluation.
	conditions[len(conditions)-1] = core.Condition{Field: "service", Operator: "equals", Value: "billing"}

	result := ev.Evaluate(ruleWithFilters(conditions...), testSignal())
	assert.False(t, result.Matched, "conditions past the trace cap still evaluate")
	require.Len(t, result.Trace, core.MaxTraceSteps+1)
	assert.Equal(t, core.TraceStepTruncated, result.Trace[core.MaxTraceSteps].Operator)
}

func TestEvaluator_TraceOrderStable(t *testing.T) {
	ev := NewEvaluator()
	rule := ruleWithFilters(
		core.Condition{Field: "service", Operator: "equals", Value: "checkout"},
		core.Condition{Field: "severity", Operator: "equals", Value: core.SeverityHigh},
	)

	first := ev.Evaluate(rule, testSignal())
	for i := 0; i < 5; i++ {
		again := ev.Evaluate(rule, testSignal())
		assert.Equal(t, fmt.Sprintf("%+v", first.Trace), fmt.Sprintf("%+v", again.Trace))
	}
}

package correlate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vigil/core"
)

const validRuleYAML = `
ruleId: rule-err-rate
ruleVersion: 1.0.0
name: elevated error rate
severity: high
enabled: true
filters:
  - field: type
    operator: equals
    value: error_rate
timeWindow:
  duration: 5m
  alignment: fixed
groupBy:
  service: true
threshold:
  minSignals: 2
matcher:
  sameService: true
candidateTemplate:
  title: Elevated error rate
  minDetections: 2
  maxDetections: 5
`

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadRuleSet_ValidRule(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "err-rate.yaml", validRuleYAML)

	rs, err := LoadRuleSet(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())

	rules := rs.EnabledRules()
	require.Len(t, rules, 1)
	rule := rules[0]
	assert.Equal(t, "rule-err-rate", rule.RuleID)
	assert.Equal(t, "1.0.0", rule.RuleVersion)
	assert.Equal(t, 5*time.Minute, rule.TimeWindow.Duration)
	assert.Equal(t, core.WindowAlignmentFixed, rule.TimeWindow.Alignment)
	assert.True(t, rule.GroupBy.Service)
	assert.Equal(t, 2, rule.Threshold.MinSignals)
	require.Len(t, rule.Filters, 1)
	assert.Equal(t, "equals", rule.Filters[0].Operator)
}

func TestLoadRuleSet_IgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "err-rate.yml", validRuleYAML)
	writeRuleFile(t, dir, "README.md", "# not a rule")

	rs, err := LoadRuleSet(dir, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestLoadRuleSet_SingleBadFileFailsLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"missing required field",
			`
ruleId: rule-x
ruleVersion: 1.0.0
severity: high
timeWindow: {duration: 5m, alignment: fixed}
threshold: {minSignals: 1}
candidateTemplate: {title: T, minDetections: 1, maxDetections: 2}
`,
		},
		{
			"bad version format",
			`
ruleId: rule-x
ruleVersion: v1
name: n
severity: high
timeWindow: {duration: 5m, alignment: fixed}
threshold: {minSignals: 1}
candidateTemplate: {title: T, minDetections: 1, maxDetections: 2}
`,
		},
		{
			"unknown alignment",
			`
ruleId: rule-x
ruleVersion: 1.0.0
name: n
severity: high
timeWindow: {duration: 5m, alignment: hopping}
threshold: {minSignals: 1}
candidateTemplate: {title: T, minDetections: 1, maxDetections: 2}
`,
		},
		{
			"unparseable duration",
			`
ruleId: rule-x
ruleVersion: 1.0.0
name: n
severity: high
timeWindow: {duration: five minutes, alignment: fixed}
threshold: {minSignals: 1}
candidateTemplate: {title: T, minDetections: 1, maxDetections: 2}
`,
		},
		{
			"max below min",
			`
ruleId: rule-x
ruleVersion: 1.0.0
name: n
severity: high
timeWindow: {duration: 5m, alignment: fixed}
threshold: {minSignals: 1}
candidateTemplate: {title: T, minDetections: 3, maxDetections: 2}
`,
		},
		{
			"not yaml at all",
			`{{{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeRuleFile(t, dir, "good.yaml", validRuleYAML)
			writeRuleFile(t, dir, "bad.yaml", tt.content)

			_, err := LoadRuleSet(dir, zap.NewNop().Sugar())
			require.Error(t, err, "one invalid file must fail the whole load")
		})
	}
}

func TestLoadRuleSet_MissingDirectory(t *testing.T) {
	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "nope"), zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestRuleSet_EnabledRulesSortedAndFiltered(t *testing.T) {
	enabled := &core.CorrelationRule{RuleID: "b-rule", Enabled: true}
	disabled := &core.CorrelationRule{RuleID: "a-rule", Enabled: false}
	alsoEnabled := &core.CorrelationRule{RuleID: "a-other", Enabled: true}

	rs := NewRuleSet([]*core.CorrelationRule{enabled, disabled, alsoEnabled})
	assert.Equal(t, 3, rs.Len())

	rules := rs.EnabledRules()
	require.Len(t, rules, 2)
	assert.Equal(t, "a-other", rules[0].RuleID)
	assert.Equal(t, "b-rule", rules[1].RuleID)
}

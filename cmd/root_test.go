package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRuleYAML = `
ruleId: rule-err-rate
ruleVersion: 1.0.0
name: elevated error rate
severity: high
enabled: true
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

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["replay"])
	assert.True(t, names["rules"])
	assert.True(t, names["incidents"])
}

func TestRulesValidate_ValidDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "err-rate.yaml"), []byte(validRuleYAML), 0644))

	root := NewRootCmd()
	root.SetArgs([]string{"rules", "validate", dir, "--quiet", "--no-color"})
	assert.NoError(t, root.Execute())
}

func TestRulesValidate_RejectsBadRule(t *testing.T) {
	dir := t.TempDir()
	bad := "ruleId: rule-x\nruleVersion: not-semver\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0644))

	root := NewRootCmd()
	root.SetArgs([]string{"rules", "validate", dir, "--quiet", "--no-color"})
	assert.Error(t, root.Execute())
}

func TestReplay_RequiresIncidentArgument(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"replay"})
	assert.Error(t, root.Execute())
}

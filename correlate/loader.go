package correlate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"vigil/core"
)

// ruleFileSchema validates the raw rule document shape before it is decoded
// into typed structs. Field-level invariants (semver, alignment, severity
// vocabulary) are re-checked on the typed struct afterwards.
const ruleFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "CorrelationRule",
  "type": "object",
  "required": ["ruleId", "ruleVersion", "name", "severity", "timeWindow", "threshold", "candidateTemplate"],
  "properties": {
    "ruleId": {"type": "string", "minLength": 1},
    "ruleVersion": {"type": "string", "pattern": "^\\d+\\.\\d+\\.\\d+$"},
    "name": {"type": "string", "minLength": 1},
    "severity": {"type": "string", "enum": ["critical", "high", "medium", "low", "info"]},
    "enabled": {"type": "boolean"},
    "filters": {"type": "array", "items": {"type": "object", "required": ["field", "operator"]}},
    "timeWindow": {
      "type": "object",
      "required": ["duration", "alignment"],
      "properties": {
        "duration": {"type": "string"},
        "alignment": {"type": "string", "enum": ["fixed", "sliding"]}
      }
    },
    "threshold": {
      "type": "object",
      "required": ["minSignals"],
      "properties": {
        "minSignals": {"type": "integer", "minimum": 1},
        "maxSignals": {"type": "integer", "minimum": 1}
      }
    },
    "candidateTemplate": {
      "type": "object",
      "required": ["title", "minDetections", "maxDetections"],
      "properties": {
        "title": {"type": "string", "minLength": 1},
        "minDetections": {"type": "integer", "minimum": 1},
        "maxDetections": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

// ruleDoc mirrors CorrelationRule for file decoding; the window duration
// arrives as a Go duration string ("5m") and is parsed during conversion.
type ruleDoc struct {
	RuleID      string           `yaml:"ruleId" json:"ruleId"`
	RuleVersion string           `yaml:"ruleVersion" json:"ruleVersion"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Severity    string           `yaml:"severity" json:"severity"`
	Enabled     bool             `yaml:"enabled" json:"enabled"`
	Filters     []core.Condition `yaml:"filters" json:"filters"`
	TimeWindow  struct {
		Duration  string `yaml:"duration" json:"duration"`
		Alignment string `yaml:"alignment" json:"alignment"`
	} `yaml:"timeWindow" json:"timeWindow"`
	GroupBy           core.GroupBy           `yaml:"groupBy" json:"groupBy"`
	Threshold         core.Threshold         `yaml:"threshold" json:"threshold"`
	Matcher           core.Matcher           `yaml:"matcher" json:"matcher"`
	CandidateTemplate core.CandidateTemplate `yaml:"candidateTemplate" json:"candidateTemplate"`
}

// RuleSet is an immutable collection of already-validated correlation rules.
type RuleSet struct {
	rules []*core.CorrelationRule
}

// NewRuleSet wraps pre-validated rules, keeping only well-formed ones.
func NewRuleSet(rules []*core.CorrelationRule) *RuleSet {
	return &RuleSet{rules: rules}
}

// EnabledRules returns the enabled rules in deterministic (ruleId) order.
func (rs *RuleSet) EnabledRules() []*core.CorrelationRule {
	out := make([]*core.CorrelationRule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// Len returns the total rule count, enabled or not.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// LoadRuleSet loads every *.yaml/*.yml rule file under dir. Each file holds
// one rule. Files are schema-validated, struct-validated and invariant-checked
// before admission; a single bad file fails the whole load so a partially
// valid rule set never runs.
func LoadRuleSet(dir string, logger *zap.SugaredLogger) (*RuleSet, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ruleFileSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule schema: %w", err)
	}
	validate := validator.New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %s: %w", dir, err)
	}

	var rules []*core.CorrelationRule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		rule, err := loadRuleFile(filepath.Join(dir, name), schema, validate)
		if err != nil {
			return nil, fmt.Errorf("rule file %s: %w", name, err)
		}
		rules = append(rules, rule)
	}

	logger.Infow("Loaded correlation rule set", "dir", dir, "rules", len(rules))
	return NewRuleSet(rules), nil
}

func loadRuleFile(path string, schema *gojsonschema.Schema, validate *validator.Validate) (*core.CorrelationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	// YAML is converted to JSON for schema validation; gojsonschema only
	// speaks JSON documents.
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse rule YAML: %w", err)
	}
	jsonDoc, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to convert rule to JSON: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonDoc))
	if err != nil {
		return nil, fmt.Errorf("rule schema validation errored: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, core.NewValidationError("rule", strings.Join(msgs, "; "))
	}

	var doc ruleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}

	duration, err := time.ParseDuration(doc.TimeWindow.Duration)
	if err != nil {
		return nil, core.NewValidationError("timeWindow.duration", fmt.Sprintf("bad duration %q", doc.TimeWindow.Duration))
	}

	rule := &core.CorrelationRule{
		RuleID:      doc.RuleID,
		RuleVersion: doc.RuleVersion,
		Name:        doc.Name,
		Description: doc.Description,
		Severity:    doc.Severity,
		Enabled:     doc.Enabled,
		Filters:     doc.Filters,
		TimeWindow: core.TimeWindow{
			Duration:  duration,
			Alignment: core.WindowAlignment(doc.TimeWindow.Alignment),
		},
		GroupBy:           doc.GroupBy,
		Threshold:         doc.Threshold,
		Matcher:           doc.Matcher,
		CandidateTemplate: doc.CandidateTemplate,
	}

	if err := validate.Struct(rule); err != nil {
		return nil, core.NewValidationError("rule", err.Error())
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

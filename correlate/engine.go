package correlate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vigil/core"
	"vigil/detect"
)

// Engine evaluates an incoming signal against every enabled rule and, for any
// rule whose window threshold is met, hands off to the Executor. Stateless;
// all shared state lives in the stores.
type Engine struct {
	rules      RuleProvider
	detections DetectionQuerier
	evaluator  *detect.Evaluator
	executor   *Executor
	logger     *zap.SugaredLogger
}

// NewEngine creates a correlation engine.
func NewEngine(rules RuleProvider, detections DetectionQuerier, executor *Executor, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		rules:      rules,
		detections: detections,
		evaluator:  detect.NewEvaluator(),
		executor:   executor,
		logger:     logger,
	}
}

// ProcessSignal correlates one signal (with its triggering detection) against
// the enabled rule set. Rules whose filters do not match, or whose window has
// not yet collected MinSignals distinct signals, produce no outcome. Any
// failure propagates unchanged: the invoking runtime's redelivery is the only
// retry path.
func (e *Engine) ProcessSignal(ctx context.Context, sig *core.NormalizedSignal, trigger *core.Detection) ([]*GenerateResult, error) {
	var outcomes []*GenerateResult

	for _, rule := range e.rules.EnabledRules() {
		if !e.evaluator.Evaluate(rule, sig).Matched {
			continue
		}

		window := ComputeWindow(rule.TimeWindow, sig.ObservedAt)
		met, err := e.thresholdMet(ctx, rule, trigger, window)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}

		result, err := e.executor.Execute(ctx, rule, trigger, window, rule.CorrelationKeyFor(sig))
		if err != nil {
			return nil, err
		}
		if result != nil && !result.Skipped {
			outcomes = append(outcomes, result)
		}
	}

	return outcomes, nil
}

// thresholdMet counts distinct signals across the window's detections against
// the rule's MinSignals floor. Only detections the rule's matcher accepts
// count, same narrowing the generator applies, so detections belonging to
// other rules or services can never satisfy a threshold they would not be
// correlated into.
func (e *Engine) thresholdMet(ctx context.Context, rule *core.CorrelationRule, trigger *core.Detection, window Window) (bool, error) {
	queryRuleID := ""
	if rule.Matcher.SameRuleID {
		queryRuleID = trigger.RuleID
	}

	dets, err := e.detections.QueryDetectionsInWindow(ctx, window.Start, window.End, queryRuleID)
	if err != nil {
		return false, fmt.Errorf("failed to count window signals for rule %s: %w", rule.RuleID, err)
	}

	signals := make(map[string]struct{})
	for _, det := range filterByMatcher(dets, rule.Matcher, trigger) {
		for _, sid := range det.SignalIDs {
			signals[sid] = struct{}{}
		}
	}
	return len(signals) >= rule.Threshold.MinSignals, nil
}

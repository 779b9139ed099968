package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"vigil/core"
	"vigil/metrics"
)

// DetectionStore is the narrow storage surface the engine needs. The put is
// conditional: it reports whether this call created the record or an
// identical one already existed.
type DetectionStore interface {
	PutDetection(ctx context.Context, det *core.Detection) (isNew bool, err error)
}

// Emitter publishes best-effort observability events about created
// detections. Emission failure never propagates: the detection is already
// durably stored by the time the emitter runs.
type Emitter interface {
	EmitDetectionCreated(ctx context.Context, det *core.Detection) error
}

// ProcessResult reports the outcome of processing one signal group.
type ProcessResult struct {
	Detection *core.Detection
	IsNew     bool
	Matched   bool
}

// Engine turns matched signals into immutable, schema-validated detections.
// Stateless apart from injected collaborators; safe for concurrent use.
type Engine struct {
	store     DetectionStore
	emitter   Emitter
	evaluator *Evaluator
	schema    *gojsonschema.Schema
	logger    *zap.SugaredLogger
}

// NewEngine creates a detection engine. The emitter may be nil when no
// observability sink is configured.
func NewEngine(store DetectionStore, emitter Emitter, logger *zap.SugaredLogger) (*Engine, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(detectionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile detection schema: %w", err)
	}
	return &Engine{
		store:     store,
		emitter:   emitter,
		evaluator: NewEvaluator(),
		schema:    schema,
		logger:    logger,
	}, nil
}

// ProcessSignal evaluates one signal against one rule and, on a match, stores
// the resulting detection idempotently.
func (e *Engine) ProcessSignal(ctx context.Context, rule *core.CorrelationRule, sig *core.NormalizedSignal) (*ProcessResult, error) {
	return e.ProcessSignals(ctx, rule, []*core.NormalizedSignal{sig})
}

// ProcessSignals processes a signal group as one detection. Fail-closed
// validation: every signal needs a signal id, service and severity, and a
// multi-signal group must be uniform in service and severity. The detection
// id is a content hash, so the same group and rule always converge on the
// same stored record; the IsNew flag distinguishes create from already-exists.
func (e *Engine) ProcessSignals(ctx context.Context, rule *core.CorrelationRule, signals []*core.NormalizedSignal) (*ProcessResult, error) {
	if len(signals) == 0 {
		return nil, core.NewValidationError("signals", "at least one signal is required")
	}
	if err := validateGroup(signals); err != nil {
		return nil, err
	}

	// Every signal in the group must match; the trace of the first signal is
	// kept as the detection's evaluation trace.
	var trace []core.TraceStep
	for i, sig := range signals {
		result := e.evaluator.Evaluate(rule, sig)
		if i == 0 {
			trace = result.Trace
		}
		if !result.Matched {
			return &ProcessResult{Matched: false}, nil
		}
	}

	det := e.buildDetection(rule, signals, trace)
	if err := e.validateSchema(det); err != nil {
		return nil, err
	}

	isNew, err := e.store.PutDetection(ctx, det)
	if err != nil {
		return nil, fmt.Errorf("failed to store detection %s: %w", det.DetectionID, err)
	}
	if isNew {
		metrics.DetectionsCreated.WithLabelValues(det.Severity).Inc()
	} else {
		metrics.DetectionsDuplicate.Inc()
	}

	e.emitCreated(ctx, det, isNew)

	return &ProcessResult{Detection: det, IsNew: isNew, Matched: true}, nil
}

func (e *Engine) buildDetection(rule *core.CorrelationRule, signals []*core.NormalizedSignal, trace []core.TraceStep) *core.Detection {
	signalIDs := make([]string, 0, len(signals))
	var resourceRefs []string
	for _, sig := range signals {
		signalIDs = append(signalIDs, sig.SignalID)
		resourceRefs = append(resourceRefs, sig.ResourceRefs...)
	}

	first := signals[0]
	return &core.Detection{
		DetectionID:     core.ComputeDetectionID(signalIDs, rule.RuleID, rule.RuleVersion),
		RuleID:          rule.RuleID,
		RuleVersion:     rule.RuleVersion,
		Service:         first.Service,
		Severity:        first.Severity,
		Source:          first.SourceID,
		SignalType:      first.Type,
		Confidence:      core.DetectionConfidence(len(signals)),
		SignalIDs:       core.SortedCopy(signalIDs),
		ResourceRefs:    core.DedupSorted(resourceRefs),
		DetectedAt:      first.ObservedAt,
		EvaluationTrace: trace,
	}
}

func (e *Engine) validateSchema(det *core.Detection) error {
	doc, err := json.Marshal(det)
	if err != nil {
		return fmt.Errorf("failed to marshal detection for schema validation: %w", err)
	}
	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("detection schema validation errored: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return core.NewValidationError("detection", strings.Join(msgs, "; "))
	}
	return nil
}

// emitCreated publishes the DetectionCreated event. Failures are logged and
// swallowed: the detection is already durable and emission must never fail
// the primary operation.
func (e *Engine) emitCreated(ctx context.Context, det *core.Detection, isNew bool) {
	if e.emitter == nil || !isNew {
		return
	}
	if err := e.emitter.EmitDetectionCreated(ctx, det); err != nil {
		metrics.EmitFailures.Inc()
		e.logger.Warnw("DetectionCreated emission failed, continuing",
			"detectionId", det.DetectionID,
			"error", err)
	}
}

func validateGroup(signals []*core.NormalizedSignal) error {
	service := signals[0].Service
	severity := signals[0].Severity
	for _, sig := range signals {
		if sig.SignalID == "" {
			return core.NewValidationError("signalId", "signal id is required")
		}
		if sig.Service == "" {
			return core.NewValidationError("service", "service is required")
		}
		if sig.Severity == "" {
			return core.NewValidationError("severity", "severity is required")
		}
		if sig.Service != service {
			return core.NewValidationError("service",
				fmt.Sprintf("mixed services in signal group: %q and %q", service, sig.Service))
		}
		if sig.Severity != severity {
			return core.NewValidationError("severity",
				fmt.Sprintf("mixed severities in signal group: %q and %q", severity, sig.Severity))
		}
	}
	return nil
}

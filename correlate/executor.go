package correlate

import (
	"context"

	"vigil/core"
)

// Executor is deliberately minimal wiring between rule evaluation and
// candidate generation: one call site, no retries, no branching, no error
// swallowing. Any failure propagates so the invoking runtime's redelivery is
// the only retry path.
type Executor struct {
	generator *Generator
}

// NewExecutor creates an executor over a generator.
func NewExecutor(generator *Generator) *Executor {
	return &Executor{generator: generator}
}

// Execute runs candidate generation for one triggered rule.
func (x *Executor) Execute(ctx context.Context, rule *core.CorrelationRule, trigger *core.Detection, window Window, correlationKey string) (*GenerateResult, error) {
	return x.generator.Generate(ctx, rule, trigger, window, correlationKey)
}

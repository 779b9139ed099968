package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vigil/core"
)

// fakeDetectionStore is an in-memory conditional-write store.
type fakeDetectionStore struct {
	detections map[string]*core.Detection
	putErr     error
}

func newFakeDetectionStore() *fakeDetectionStore {
	return &fakeDetectionStore{detections: make(map[string]*core.Detection)}
}

func (s *fakeDetectionStore) PutDetection(_ context.Context, det *core.Detection) (bool, error) {
	if s.putErr != nil {
		return false, s.putErr
	}
	if _, ok := s.detections[det.DetectionID]; ok {
		return false, nil
	}
	s.detections[det.DetectionID] = det
	return true, nil
}

// failingEmitter always fails, to prove emission errors are swallowed.
type failingEmitter struct{ calls int }

func (e *failingEmitter) EmitDetectionCreated(context.Context, *core.Detection) error {
	e.calls++
	return errors.New("sink unavailable")
}

func matchAllRule() *core.CorrelationRule {
	return &core.CorrelationRule{
		RuleID:      "rule-any",
		RuleVersion: "1.0.0",
		Severity:    core.SeverityHigh,
	}
}

func engineSignal(id string) *core.NormalizedSignal {
	return &core.NormalizedSignal{
		SignalID:   id,
		SourceID:   "alarm:checkout",
		Type:       "metric_alarm",
		Service:    "checkout",
		Severity:   core.SeverityHigh,
		ObservedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEngine_ProcessSignal_CreatesDetection(t *testing.T) {
	store := newFakeDetectionStore()
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	result, err := engine.ProcessSignal(context.Background(), matchAllRule(), engineSignal("sig-1"))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.IsNew)
	assert.Len(t, result.Detection.DetectionID, 64)
	assert.InDelta(t, 0.1, result.Detection.Confidence, 1e-9)
	assert.Equal(t, result.Detection.DetectedAt, engineSignal("sig-1").ObservedAt)
}

func TestEngine_ProcessSignal_IdempotentStore(t *testing.T) {
	store := newFakeDetectionStore()
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	first, err := engine.ProcessSignal(context.Background(), matchAllRule(), engineSignal("sig-1"))
	require.NoError(t, err)
	second, err := engine.ProcessSignal(context.Background(), matchAllRule(), engineSignal("sig-1"))
	require.NoError(t, err)

	assert.True(t, first.IsNew)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Detection.DetectionID, second.Detection.DetectionID)
	assert.Len(t, store.detections, 1)
}

func TestEngine_ProcessSignals_GroupConfidence(t *testing.T) {
	store := newFakeDetectionStore()
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	signals := make([]*core.NormalizedSignal, 5)
	for i := range signals {
		signals[i] = engineSignal("sig-" + string(rune('a'+i)))
	}

	result, err := engine.ProcessSignals(context.Background(), matchAllRule(), signals)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.Detection.Confidence, 1e-9)
	assert.Len(t, result.Detection.SignalIDs, 5)
}

func TestEngine_ProcessSignals_FailClosed(t *testing.T) {
	store := newFakeDetectionStore()
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.ProcessSignals(ctx, matchAllRule(), nil)
	assert.True(t, core.IsValidation(err))

	noID := engineSignal("")
	_, err = engine.ProcessSignals(ctx, matchAllRule(), []*core.NormalizedSignal{noID})
	assert.True(t, core.IsValidation(err))

	mixedService := engineSignal("sig-2")
	mixedService.Service = "billing"
	_, err = engine.ProcessSignals(ctx, matchAllRule(), []*core.NormalizedSignal{engineSignal("sig-1"), mixedService})
	assert.True(t, core.IsValidation(err))

	mixedSeverity := engineSignal("sig-3")
	mixedSeverity.Severity = core.SeverityLow
	_, err = engine.ProcessSignals(ctx, matchAllRule(), []*core.NormalizedSignal{engineSignal("sig-1"), mixedSeverity})
	assert.True(t, core.IsValidation(err))

	// Nothing reached the store.
	assert.Empty(t, store.detections)
}

func TestEngine_ProcessSignal_NoMatchStoresNothing(t *testing.T) {
	store := newFakeDetectionStore()
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	rule := matchAllRule()
	rule.Filters = []core.Condition{{Field: "service", Operator: "equals", Value: "billing"}}

	result, err := engine.ProcessSignal(context.Background(), rule, engineSignal("sig-1"))
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Nil(t, result.Detection)
	assert.Empty(t, store.detections)
}

func TestEngine_EmitterFailureIsSwallowed(t *testing.T) {
	store := newFakeDetectionStore()
	emitter := &failingEmitter{}
	engine, err := NewEngine(store, emitter, zap.NewNop().Sugar())
	require.NoError(t, err)

	result, err := engine.ProcessSignal(context.Background(), matchAllRule(), engineSignal("sig-1"))
	require.NoError(t, err, "emission failure must never propagate")
	assert.True(t, result.IsNew)
	assert.Equal(t, 1, emitter.calls)
	assert.Len(t, store.detections, 1)
}

func TestEngine_StoreFailurePropagates(t *testing.T) {
	store := newFakeDetectionStore()
	store.putErr = errors.New("store down")
	engine, err := NewEngine(store, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = engine.ProcessSignal(context.Background(), matchAllRule(), engineSignal("sig-1"))
	require.Error(t, err)
}

func TestChannelEmitter_DropsWhenFull(t *testing.T) {
	emitter := NewChannelEmitter(1, zap.NewNop().Sugar())
	det := &core.Detection{DetectionID: "d1"}

	require.NoError(t, emitter.EmitDetectionCreated(context.Background(), det))
	err := emitter.EmitDetectionCreated(context.Background(), det)
	assert.Error(t, err, "bounded send must give up, not block forever")

	received := <-emitter.Events()
	assert.Equal(t, "d1", received.DetectionID)
}

package detect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vigil/core"
)

// sendTimeout bounds how long the channel emitter waits for a slow consumer
// before giving up. The caller swallows the resulting error.
const sendTimeout = 50 * time.Millisecond

// ChannelEmitter publishes DetectionCreated events onto a bounded channel
// with a non-blocking, bounded-timeout send. A full channel or absent
// consumer drops the event; it never blocks or fails detection processing.
type ChannelEmitter struct {
	ch     chan *core.Detection
	logger *zap.SugaredLogger
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int, logger *zap.SugaredLogger) *ChannelEmitter {
	return &ChannelEmitter{
		ch:     make(chan *core.Detection, buffer),
		logger: logger,
	}
}

// Events exposes the consumer side of the emitter.
func (em *ChannelEmitter) Events() <-chan *core.Detection {
	return em.ch
}

// EmitDetectionCreated sends the detection with a bounded wait.
func (em *ChannelEmitter) EmitDetectionCreated(ctx context.Context, det *core.Detection) error {
	select {
	case em.ch <- det:
		return nil
	default:
	}

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case em.ch <- det:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

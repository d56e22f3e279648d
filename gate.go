package kv

import (
	"context"
	"fmt"
	"time"
)

// writerGate admits one writer per environment at a time.
type writerGate struct {
	slot    chan struct{}
	timeout time.Duration
}

func newWriterGate(timeout time.Duration) *writerGate {
	return &writerGate{
		slot:    make(chan struct{}, 1),
		timeout: timeout,
	}
}

func (g *writerGate) acquire(ctx context.Context) error {
	start := time.Now()
	defer writeWait.UpdateDuration(start)

	select {
	case g.slot <- struct{}{}:
		return nil
	default:
	}

	if g.timeout == 0 {
		return ErrWriterBusy
	}

	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case g.slot <- struct{}{}:
		return nil
	case <-expired:
		return fmt.Errorf("%w: waited %s", ErrWriterBusy, g.timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriterBusy, ctx.Err())
	}
}

func (g *writerGate) release() {
	<-g.slot
}

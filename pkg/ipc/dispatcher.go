package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/simplepos/shell/pkg/logger"
	"github.com/simplepos/shell/pkg/metrics"
	"github.com/simplepos/shell/pkg/workerpool"
)

// Dispatcher runs registered commands on a worker pool.
type Dispatcher struct {
	registry *Registry
	pool     *workerpool.Pool
}

// NewDispatcher returns a Dispatcher over registry that executes on pool.
func NewDispatcher(registry *Registry, pool *workerpool.Pool) *Dispatcher {
	return &Dispatcher{registry: registry, pool: pool}
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

type outcome struct {
	value any
	err   error
}

// Invoke runs command name with args and waits for its result. The wait
// ends early when ctx is done; the handler then finishes in the background
// and its result is discarded.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	h, ok := d.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	start := time.Now()
	defer func() { metrics.ObserveCommand(name, err, start) }()

	done := make(chan outcome, 1)
	task := func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithCtx(ctx).Error("ipc: command panicked",
					"command", name,
					"panic", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
				)
				done <- outcome{err: fmt.Errorf("ipc: %s: internal error", name)}
			}
		}()
		v, err := h(ctx, args)
		done <- outcome{value: v, err: err}
	}

	if err := d.pool.SubmitContext(ctx, task); err != nil {
		return nil, fmt.Errorf("ipc: %s: %w", name, err)
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

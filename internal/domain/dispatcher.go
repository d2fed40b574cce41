package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dbaas.io/workflow/internal/pkg/logger"
)

// EventHandler reacts to one step or pipeline event of a run.
type EventHandler func(ctx context.Context, event *Event) error

// EventDispatcher fans step and pipeline events out to handlers. The
// pipeline dispatches synchronously from its own goroutine, so handlers
// see the events of one run in order.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register adds a handler for eventType. Register before the first run.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// Dispatch calls the handlers of event.EventType in registration order. A
// failing handler is logged with the run and step and the rest still run;
// the first error is returned. The pipeline never fails a step on it.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *Event) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers for pipeline event",
			zap.String("event_type", string(event.EventType)),
			zap.String("run_id", event.RunID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Pipeline event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("run_id", event.RunID),
				zap.String("step", event.Step),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}

package events

import (
	"log/slog"

	"settlenet/core/types"
)

// Event represents a structured state change emitted by the settlement engine.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts committed events to downstream subscribers.
type Emitter interface {
	Emit(*types.Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*types.Event) {}

// LogEmitter renders every committed event as a structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (e LogEmitter) Emit(evt *types.Event) {
	if evt == nil || e.Logger == nil {
		return
	}
	attrs := make([]any, 0, len(evt.Attributes)*2)
	for key, value := range evt.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	e.Logger.Info(evt.Type, attrs...)
}

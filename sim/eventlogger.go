package sim

import "log"

// A LogHook is a hook that records information from the simulation.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks.
type LogHookBase struct {
	*log.Logger
}

// EventLogger is a hook that prints every event the engine consumes.
type EventLogger struct {
	LogHookBase
}

// NewEventLogger returns an EventLogger that writes into the given logger.
func NewEventLogger(logger *log.Logger) *EventLogger {
	h := new(EventLogger)
	h.Logger = logger

	return h
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeStep {
		return
	}

	evt, ok := ctx.Item.(*Event)
	if !ok {
		return
	}

	h.Printf("%d, %s -> %s", evt.Time, evt.Kind, evt.TargetNode)
}

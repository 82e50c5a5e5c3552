package sim

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookPosBeforeStep triggers before the engine hands an event to a
// processor.
var HookPosBeforeStep = &HookPos{Name: "BeforeStep"}

// HookPosAfterStep triggers after the processor returned and its results
// were committed.
var HookPosAfterStep = &HookPos{Name: "AfterStep"}

// HookPosEventScheduled triggers when a new event enters the queue.
var HookPosEventScheduled = &HookPos{Name: "EventScheduled"}

// HookCtx holds all the information about the site where a hook is
// triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hook is a short piece of program invoked by a hookable object.
type Hook interface {
	Func(ctx HookCtx)
}

// Hookable defines an object that accepts hooks.
type Hookable interface {
	AcceptHook(hook Hook)
}

// A HookableBase provides the utility functions for types that implement the
// Hookable interface.
type HookableBase struct {
	hooks []Hook
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.hooks = append(h.hooks, hook)
}

// NumHooks returns the number of registered hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// InvokeHook triggers all registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

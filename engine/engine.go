// Package engine provides the simulation driver: it owns the scenario, the
// per-node states, the event queue, and the activity ledger, and advances
// the simulation one event at a time. The engine is single-threaded and
// cooperative: exactly one event is processed to full completion before the
// next one is considered, so node states need no locking of their own.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flowlab/flowsim/ledger"
	"github.com/flowlab/flowsim/proc"
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// LifecycleState is the engine's lifecycle position.
type LifecycleState string

// The lifecycle states. Errored is reachable from any state on a fatal
// non-processor failure, such as a validation error during Initialize.
const (
	StateUninitialized LifecycleState = "uninitialized"
	StateReady         LifecycleState = "ready"
	StateRunning       LifecycleState = "running"
	StatePaused        LifecycleState = "paused"
	StateCompleted     LifecycleState = "completed"
	StateErrored       LifecycleState = "errored"
)

// A StateError reports an operation attempted in the wrong lifecycle state.
type StateError struct {
	Op    string
	State LifecycleState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while engine is %s", e.Op, e.State)
}

// An Engine drives one simulation. Engines share no mutable state, so
// running multiple independent engines in parallel is safe.
type Engine struct {
	sim.HookableBase

	mu      sync.Mutex
	runLock sync.Mutex

	lifecycle LifecycleState
	scn       *scenario.Scenario
	registry  *proc.Registry

	queue      *sim.EventQueue
	ldg        *ledger.Ledger
	nodeStates map[string]proc.State
	ids        sim.IDGenerator

	now   sim.Tick
	steps uint64

	pauseRequested atomic.Bool

	newIDGen   func() sim.IDGenerator
	globalCap  int
	perNodeCap int
	historyCap int
}

// An Option adjusts an Engine at construction.
type Option func(*Engine)

// WithLedgerCaps sets the retention caps of the activity ledger.
func WithLedgerCaps(globalCap, perNodeCap int) Option {
	return func(e *Engine) {
		e.globalCap = globalCap
		e.perNodeCap = perNodeCap
	}
}

// WithHistoryCap bounds the queue's popped-event history. Zero keeps
// everything.
func WithHistoryCap(n int) Option {
	return func(e *Engine) {
		e.historyCap = n
	}
}

// WithIDGeneratorFactory replaces the per-initialization ID generator. The
// default mints sequential IDs so that two engines initialized from the
// same scenario produce identical runs.
func WithIDGeneratorFactory(f func() sim.IDGenerator) Option {
	return func(e *Engine) {
		e.newIDGen = f
	}
}

// New creates an engine in the Uninitialized state. A nil registry gets the
// full default registry.
func New(registry *proc.Registry, opts ...Option) *Engine {
	if registry == nil {
		registry = proc.NewRegistry()
	}

	e := &Engine{
		lifecycle:  StateUninitialized,
		registry:   registry,
		newIDGen:   sim.NewSequentialIDGenerator,
		globalCap:  ledger.DefaultGlobalCap,
		perNodeCap: ledger.DefaultPerNodeCap,
		historyCap: sim.DefaultHistoryCap,
	}

	for _, o := range opts {
		o(e)
	}

	return e
}

// Initialize builds the scenario, creates every node's internal state,
// resets the queue and the ledger, and enqueues the SimulationStart events.
// It fails atomically: on a ValidationError nothing of the partial build is
// retained and the engine transitions to Errored.
func (e *Engine) Initialize(cfg *scenario.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	scn, err := scenario.Build(cfg)
	if err != nil {
		e.lifecycle = StateErrored
		e.scn = nil
		e.nodeStates = nil
		return err
	}

	ids := e.newIDGen()
	states := map[string]proc.State{}

	for _, id := range scn.NodeIDs() {
		node := scn.Node(id)

		p, ok := e.registry.Lookup(node.Type)
		if !ok {
			e.lifecycle = StateErrored
			return fmt.Errorf("no processor registered for node type %q", node.Type)
		}

		states[id] = p.InitializeState(node)
	}

	queue := sim.NewEventQueue()
	queue.HistoryCap = e.historyCap

	for _, node := range scn.NodesByType(scenario.NodeDataSource) {
		queue.Push(&sim.Event{
			ID:         ids.Generate(),
			Time:       0,
			Kind:       sim.EventSimulationStart,
			TargetNode: node.ID,
		})
	}

	e.scn = scn
	e.ids = ids
	e.nodeStates = states
	e.queue = queue
	e.ldg = ledger.New(e.globalCap, e.perNodeCap)
	e.now = 0
	e.steps = 0
	e.pauseRequested.Store(false)
	e.lifecycle = StateReady

	return nil
}

// Step dequeues and processes the single earliest event and returns it.
// When the queue is empty it returns (nil, nil) and the engine is naturally
// complete; that is not an error. A failure inside a processor is caught,
// recorded as an error activity for that node, and the triggering event is
// consumed without retry, so one misbehaving node cannot halt the run.
func (e *Engine) Step() (*sim.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.step()
}

func (e *Engine) step() (*sim.Event, error) {
	switch e.lifecycle {
	case StateReady, StateRunning, StatePaused:
	default:
		return nil, &StateError{Op: "step", State: e.lifecycle}
	}

	evt := e.queue.Pop()
	if evt == nil {
		e.lifecycle = StateCompleted
		return nil, nil
	}

	e.lifecycle = StateRunning
	e.now = evt.Time

	hookCtx := sim.HookCtx{
		Domain: e,
		Pos:    sim.HookPosBeforeStep,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	e.dispatch(evt)

	e.steps++

	// Hooks run while the engine lock is held, so they must not call back
	// into the engine. The queue depth rides along in Detail instead.
	hookCtx.Pos = sim.HookPosAfterStep
	hookCtx.Detail = e.queue.Len()
	e.InvokeHook(hookCtx)

	return evt, nil
}

func (e *Engine) dispatch(evt *sim.Event) {
	node := e.scn.Node(evt.TargetNode)
	if node == nil {
		e.ldg.Append(ledger.Activity{
			Time:   e.now,
			NodeID: evt.TargetNode,
			Action: "validation",
			Details: map[string]any{
				"reason": "event targets unknown node",
				"event":  string(evt.Kind),
			},
		})
		return
	}

	p, ok := e.registry.Lookup(node.Type)
	if !ok {
		// Validation rejects unknown tags, so this only fires with a
		// custom registry narrower than the scenario.
		e.ldg.Append(ledger.Activity{
			Time:   e.now,
			NodeID: node.ID,
			Action: "validation",
			Details: map[string]any{
				"reason": "no processor for node type",
				"type":   string(node.Type),
			},
		})
		return
	}

	ctx := &proc.Context{
		Now:      e.now,
		IDs:      e.ids,
		Config:   node,
		Outgoing: e.scn.Outgoing(node.ID),
	}

	res, err := invoke(p, ctx, evt, e.nodeStates[node.ID])

	switch {
	case errors.Is(err, proc.ErrUnhandledEvent):
		e.ldg.Append(ledger.Activity{
			Time:   e.now,
			NodeID: node.ID,
			Action: "validation",
			Details: map[string]any{
				"reason": "event kind not recognized",
				"event":  string(evt.Kind),
			},
		})
		return

	case err != nil:
		e.ldg.Append(ledger.Activity{
			Time:   e.now,
			NodeID: node.ID,
			Action: "error",
			Details: map[string]any{
				"error": err.Error(),
				"event": string(evt.Kind),
			},
		})
		return
	}

	if res.State != nil {
		e.nodeStates[node.ID] = res.State
	}

	for _, a := range res.Activities {
		e.ldg.Append(a)
	}

	for _, out := range res.Events {
		e.schedule(out, evt)
	}
}

// schedule enqueues a processor-produced event, filling in the bookkeeping
// fields the processor left empty.
func (e *Engine) schedule(out *sim.Event, cause *sim.Event) {
	if out.ID == "" {
		out.ID = e.ids.Generate()
	}
	if out.CausedBy == "" {
		out.CausedBy = cause.ID
	}
	if out.Time < e.now {
		out.Time = e.now
	}

	e.queue.Push(out)

	if e.NumHooks() > 0 {
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    sim.HookPosEventScheduled,
			Item:   out,
		})
	}
}

// invoke calls the processor, converting a panic into an error so the
// engine's per-event failure semantics apply to both.
func invoke(
	p proc.Processor,
	ctx *proc.Context,
	evt *sim.Event,
	state proc.State,
) (res proc.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = proc.Result{}
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	return p.Process(ctx, evt, state)
}

// Run repeatedly steps until the queue is empty, maxSteps is reached
// (maxSteps <= 0 means unbounded), or a pause request is observed between
// steps. Cancellation is cooperative: a processor call is never interrupted
// once started. Run returns the number of steps executed.
func (e *Engine) Run(maxSteps int) (int, error) {
	e.runLock.Lock()
	defer e.runLock.Unlock()

	e.mu.Lock()
	switch e.lifecycle {
	case StateReady, StateRunning, StatePaused:
		e.lifecycle = StateRunning
	default:
		state := e.lifecycle
		e.mu.Unlock()
		return 0, &StateError{Op: "run", State: state}
	}
	e.mu.Unlock()

	// The engine mutex is released between steps so that read-only
	// accessors (the monitoring surface) can observe a long run.
	executed := 0
	for {
		if maxSteps > 0 && executed >= maxSteps {
			e.setLifecycle(StatePaused)
			return executed, nil
		}

		if e.pauseRequested.Swap(false) {
			e.setLifecycle(StatePaused)
			return executed, nil
		}

		evt, err := e.Step()
		if err != nil {
			return executed, err
		}
		if evt == nil {
			return executed, nil
		}

		executed++
	}
}

func (e *Engine) setLifecycle(s LifecycleState) {
	e.mu.Lock()
	e.lifecycle = s
	e.mu.Unlock()
}

// Pause requests a pause. The flag is consulted between steps; the step in
// flight completes first. Pausing is a state transition, never an error.
func (e *Engine) Pause() {
	e.pauseRequested.Store(true)
}

// State returns the lifecycle state.
func (e *Engine) State() LifecycleState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lifecycle
}

// Now returns the current simulated time.
func (e *Engine) Now() sim.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.now
}

// StepCount returns the number of events consumed so far.
func (e *Engine) StepCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.steps
}

// Scenario returns the immutable scenario, or nil before initialization.
func (e *Engine) Scenario() *scenario.Scenario {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.scn
}

// Queue returns the event queue. Callers must treat it as read-only.
func (e *Engine) Queue() *sim.EventQueue {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.queue
}

// Ledger returns the activity ledger. Callers must treat it as read-only.
func (e *Engine) Ledger() *ledger.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ldg
}

// Activities returns a copy of the retained global activity log.
func (e *Engine) Activities() []ledger.Entry {
	e.mu.Lock()
	l := e.ldg
	e.mu.Unlock()

	if l == nil {
		return nil
	}

	return l.Entries()
}

// NodeState returns the internal state of one node, or nil.
func (e *Engine) NodeState(nodeID string) proc.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.nodeStates[nodeID]
}

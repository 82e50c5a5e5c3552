// Package proc implements the per-node-type processors. All variants share
// one contract: a node type tag, an initial-state constructor, and a
// Process function that consumes one event and returns the new events, the
// new node state, and the activities to commit. Processors never touch the
// queue or the ledger directly.
package proc

import (
	"errors"
	"fmt"

	"github.com/flowlab/flowsim/ledger"
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// ErrUnhandledEvent is returned when a processor receives an event kind it
// does not recognize. The engine records it as a validation activity and
// discards the event instead of re-queueing it.
var ErrUnhandledEvent = errors.New("event kind not handled by this node type")

// State is the discriminated per-node internal state. Each processor
// variant owns its own concrete type and is the only code that touches it.
type State interface {
	isNodeState()
}

// A Context carries everything a Process call may consult besides the event
// and the node state.
type Context struct {
	// Now is the engine's current simulated time.
	Now sim.Tick

	// IDs mints token and event IDs. The engine owns the generator, so a
	// deterministic generator makes whole runs deterministic.
	IDs sim.IDGenerator

	// Config is the processed node's configuration.
	Config *scenario.NodeConfig

	// Outgoing holds the node's deduplicated outgoing edges in stable
	// order.
	Outgoing []*scenario.EdgeConfig
}

// A Result is what a Process call hands back to the engine.
type Result struct {
	Events     []*sim.Event
	State      State
	Activities []ledger.Activity
}

// A Processor is the behavior implementation for one node type.
type Processor interface {
	NodeType() scenario.NodeType

	// InitializeState produces the node's internal state. Called once per
	// node during engine initialization.
	InitializeState(cfg *scenario.NodeConfig) State

	// Process consumes one event addressed to the node.
	Process(ctx *Context, evt *sim.Event, state State) (Result, error)
}

func errWrongState(nodeID string) error {
	return fmt.Errorf("node %q holds a state of the wrong type", nodeID)
}

// route fans a token out along every outgoing edge whose condition matches
// the token value. The token is delivered as-is to every matching target;
// callers derive or combine before routing.
func (ctx *Context) route(at sim.Tick, tok *sim.Token, causedBy string) []*sim.Event {
	var events []*sim.Event

	for _, e := range ctx.Outgoing {
		if e.Condition != nil && !e.Condition.Matches(tok.Value) {
			continue
		}

		events = append(events, &sim.Event{
			ID:         ctx.IDs.Generate(),
			Time:       at,
			Kind:       sim.EventTokenArrival,
			SourceNode: ctx.Config.ID,
			TargetNode: e.Target,
			CausedBy:   causedBy,
			Token:      tok,
		})
	}

	return events
}

// selfEvent schedules a future event addressed back to the node itself.
func (ctx *Context) selfEvent(
	at sim.Tick,
	kind sim.EventKind,
	causedBy string,
	data map[string]any,
) *sim.Event {
	return &sim.Event{
		ID:         ctx.IDs.Generate(),
		Time:       at,
		Kind:       kind,
		SourceNode: ctx.Config.ID,
		TargetNode: ctx.Config.ID,
		CausedBy:   causedBy,
		Data:       data,
	}
}

// activity builds a ledger activity stamped with the node and time.
func (ctx *Context) activity(action string, value any, tok *sim.Token) ledger.Activity {
	a := ledger.Activity{
		Time:   ctx.Now,
		NodeID: ctx.Config.ID,
		Action: action,
		Value:  value,
	}

	if tok != nil {
		a.CorrelationIDs = tok.CorrelationIDs
	}

	return a
}

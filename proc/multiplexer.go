package proc

import (
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// MultiplexerState is the internal state of a multiplexer node.
type MultiplexerState struct {
	Routed    int
	Unmatched int
}

func (*MultiplexerState) isNodeState() {}

// Multiplexer routes an incoming token to every outgoing edge whose
// condition matches the token value. Parallel fan-out is the default: all
// matching edges receive the token, not just the first winner. Edges
// without a condition always match.
type Multiplexer struct{}

// NodeType returns the tag this processor handles.
func (Multiplexer) NodeType() scenario.NodeType {
	return scenario.NodeMultiplexer
}

// InitializeState creates empty routing counters.
func (Multiplexer) InitializeState(_ *scenario.NodeConfig) State {
	return &MultiplexerState{}
}

// Process evaluates the outgoing edge conditions and fans the token out.
func (Multiplexer) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*MultiplexerState)
	if !ok {
		return Result{}, errWrongState(ctx.Config.ID)
	}

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
	default:
		return Result{}, ErrUnhandledEvent
	}

	res := Result{State: st}
	tok := evt.Token

	out := tok.Derive(ctx.IDs.Generate(), tok.Value, sim.LineageStep{
		NodeID:    ctx.Config.ID,
		Time:      ctx.Now,
		Operation: "route",
	})

	events := ctx.route(ctx.Now, out, evt.ID)
	if len(events) == 0 {
		st.Unmatched++

		dropSilently := ctx.Config.Multiplexer != nil &&
			ctx.Config.Multiplexer.DropUnmatched
		if !dropSilently {
			res.Activities = append(res.Activities,
				ctx.activity("no_match", tok.Value, tok))
		}

		return res, nil
	}

	st.Routed++

	targets := make([]string, 0, len(events))
	for _, e := range events {
		targets = append(targets, e.TargetNode)
	}

	a := ctx.activity("route", out.Value, out)
	a.Details = map[string]any{"targets": targets}

	res.Events = events
	res.Activities = append(res.Activities, a)

	return res, nil
}

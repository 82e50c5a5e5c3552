package proc

import (
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// A TransitionRecord is one fired transition in a machine's history.
type TransitionRecord struct {
	From    string
	To      string
	At      sim.Tick
	TokenID string
}

// FSMNodeState is the internal state of a process node: the current state
// name, the normalized state records, and the transition history.
type FSMNodeState struct {
	Current string
	States  map[string]scenario.FSMStateDecl
	History []TransitionRecord
}

func (*FSMNodeState) isNodeState() {}

// ProcessNode is the finite-state-machine node type. Configuration may
// declare states as bare names or as full records with an onEntry action
// list; InitializeState normalizes everything to full records before the
// machine runs. Transitions are tried in declared order against the
// incoming token; the entered state's actions execute in declared order.
type ProcessNode struct{}

// NodeType returns the tag this processor handles.
func (ProcessNode) NodeType() scenario.NodeType {
	return scenario.NodeProcess
}

// InitializeState normalizes the state declarations and positions the
// machine at the initial state (the first declared one when no initial
// state is named).
func (ProcessNode) InitializeState(cfg *scenario.NodeConfig) State {
	st := &FSMNodeState{
		States: map[string]scenario.FSMStateDecl{},
	}

	for _, decl := range cfg.Process.States {
		st.States[decl.Name] = decl
	}

	st.Current = cfg.Process.Initial
	if st.Current == "" && len(cfg.Process.States) > 0 {
		st.Current = cfg.Process.States[0].Name
	}

	return st
}

// Process fires the first transition whose source state and guard match the
// incoming token, then executes the entered state's onEntry actions.
func (ProcessNode) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*FSMNodeState)
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

	tr, found := matchTransition(ctx.Config.Process, st.Current, tok)
	if !found {
		res.Activities = append(res.Activities,
			ctx.activity("no_transition", tok.Value, tok))

		return res, nil
	}

	st.History = append(st.History, TransitionRecord{
		From:    tr.From,
		To:      tr.To,
		At:      ctx.Now,
		TokenID: tok.ID,
	})
	st.Current = tr.To

	a := ctx.activity("transition", tok.Value, tok)
	a.Details = map[string]any{"from": tr.From, "to": tr.To}
	res.Activities = append(res.Activities, a)

	runEntryActions(ctx, evt, st, &res, tok)

	return res, nil
}

func matchTransition(
	cfg *scenario.ProcessConfig,
	current string,
	tok *sim.Token,
) (scenario.FSMTransition, bool) {
	for _, tr := range cfg.Transitions {
		if tr.From != current {
			continue
		}
		if tr.Guard != nil && !tr.Guard.Matches(tok.Value) {
			continue
		}

		return tr, true
	}

	return scenario.FSMTransition{}, false
}

// runEntryActions executes the entered state's onEntry actions in declared
// order. set_metadata entries accumulate onto the working token, so an emit
// later in the list carries everything set before it.
func runEntryActions(
	ctx *Context,
	evt *sim.Event,
	st *FSMNodeState,
	res *Result,
	tok *sim.Token,
) {
	working := tok

	for _, action := range st.States[st.Current].OnEntry {
		switch action.Type {
		case "set_metadata":
			working = working.WithMetadata(action.Key, action.Value)

		case "log":
			a := ctx.activity("log", action.Value, working)
			a.Details = map[string]any{"state": st.Current}
			res.Activities = append(res.Activities, a)

		case "emit":
			out := working.Derive(
				ctx.IDs.Generate(),
				working.Value,
				sim.LineageStep{
					NodeID:    ctx.Config.ID,
					Time:      ctx.Now,
					Operation: "process",
				},
			)

			res.Events = append(res.Events, ctx.route(ctx.Now, out, evt.ID)...)
			res.Activities = append(res.Activities,
				ctx.activity("emit", out.Value, out))

		default:
			a := ctx.activity("unknown_action", action.Type, working)
			a.Details = map[string]any{"state": st.Current}
			res.Activities = append(res.Activities, a)
		}
	}
}

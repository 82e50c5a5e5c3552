package proc

import (
	"strings"

	"github.com/flowlab/flowsim/ledger"
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// SinkState is the internal state of a sink node.
type SinkState struct {
	Consumed  int
	LastValue any
}

func (*SinkState) isNodeState() {}

// Sink is the terminal node type: it records selected fields of every
// incoming token into the ledger and emits nothing, retiring the token.
type Sink struct{}

// NodeType returns the tag this processor handles.
func (Sink) NodeType() scenario.NodeType {
	return scenario.NodeSink
}

// InitializeState creates an empty consumption counter.
func (Sink) InitializeState(_ *scenario.NodeConfig) State {
	return &SinkState{}
}

// Process consumes one token.
func (Sink) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*SinkState)
	if !ok {
		return Result{}, errWrongState(ctx.Config.ID)
	}

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
	default:
		return Result{}, ErrUnhandledEvent
	}

	tok := evt.Token

	st.Consumed++
	st.LastValue = tok.Value

	a := ctx.activity("consume", tok.Value, tok)
	a.Details = selectFields(ctx.Config.Sink, tok)

	return Result{State: st, Activities: []ledger.Activity{a}}, nil
}

// selectFields extracts the configured token fields for the audit record.
// An empty selection records the value.
func selectFields(cfg *scenario.SinkConfig, tok *sim.Token) map[string]any {
	fields := []string{"value"}
	if cfg != nil && len(cfg.Fields) > 0 {
		fields = cfg.Fields
	}

	out := map[string]any{}
	for _, f := range fields {
		switch {
		case f == "id":
			out["id"] = tok.ID
		case f == "value":
			out["value"] = tok.Value
		case f == "correlation_ids":
			out["correlation_ids"] = tok.CorrelationIDs
		case f == "lineage":
			out["lineage"] = tok.Lineage
		case f == "metadata":
			out["metadata"] = tok.Metadata
		case strings.HasPrefix(f, "metadata."):
			key := strings.TrimPrefix(f, "metadata.")
			out[f] = tok.Metadata[key]
		}
	}

	return out
}

package proc

import (
	"math"

	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// DataSourceState is the internal state of a data_source node.
type DataSourceState struct {
	Scheduled bool
	Emitted   int
	Relayed   int
}

func (*DataSourceState) isNodeState() {}

// DataSource emits tokens on a deterministic schedule. On SimulationStart
// it pre-computes the entire emission timeline up front, so the full future
// schedule is knowable without re-entering the processor. When it receives
// an externally injected token addressed to it, it acts as a relay and
// forwards the token's value and correlation IDs unchanged instead of
// generating new data.
type DataSource struct{}

// NodeType returns the tag this processor handles.
func (DataSource) NodeType() scenario.NodeType {
	return scenario.NodeDataSource
}

// InitializeState creates an empty emission record.
func (DataSource) InitializeState(_ *scenario.NodeConfig) State {
	return &DataSourceState{}
}

// Process handles SimulationStart (schedule), DataEmit (release one
// scheduled token), and ExternalInput (relay).
func (DataSource) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*DataSourceState)
	if !ok {
		return Result{}, errWrongState(ctx.Config.ID)
	}

	switch evt.Kind {
	case sim.EventSimulationStart:
		return scheduleEmissions(ctx, evt, st), nil

	case sim.EventDataEmit:
		st.Emitted++

		res := Result{State: st}
		res.Events = ctx.route(evt.Time, evt.Token, evt.ID)
		res.Activities = append(res.Activities,
			ctx.activity("emit", evt.Token.Value, evt.Token))

		return res, nil

	case sim.EventExternalInput:
		return relay(ctx, evt, st), nil

	default:
		return Result{}, ErrUnhandledEvent
	}
}

// scheduleEmissions computes the full schedule: maxEvents emissions spaced
// at round(i * 1000 / rate) ticks, each carrying a freshly generated value
// and a newly minted correlation ID.
func scheduleEmissions(ctx *Context, evt *sim.Event, st *DataSourceState) Result {
	res := Result{State: st}

	if st.Scheduled {
		return res
	}
	st.Scheduled = true

	cfg := ctx.Config.DataSource

	for i := 1; i <= cfg.MaxEvents; i++ {
		at := sim.Tick(math.Round(
			float64(i) * float64(sim.TicksPerSecond) / cfg.Rate))

		var value any = i
		if len(cfg.Values) > 0 {
			value = cfg.Values[(i-1)%len(cfg.Values)]
		}

		tok := sim.NewToken(
			ctx.IDs.Generate(),
			"corr-"+ctx.IDs.Generate(),
			value,
			sim.LineageStep{NodeID: ctx.Config.ID, Time: at, Operation: "emit"},
		)

		res.Events = append(res.Events, &sim.Event{
			ID:         ctx.IDs.Generate(),
			Time:       at,
			Kind:       sim.EventDataEmit,
			SourceNode: ctx.Config.ID,
			TargetNode: ctx.Config.ID,
			CausedBy:   evt.ID,
			Token:      tok,
		})
	}

	res.Activities = append(res.Activities,
		ctx.activity("schedule", cfg.MaxEvents, nil))

	return res
}

// relay forwards an injected token without generating data. The value and
// the correlation IDs pass through unchanged; only the token ID is new.
func relay(ctx *Context, evt *sim.Event, st *DataSourceState) Result {
	st.Relayed++

	res := Result{State: st}

	if evt.Token == nil {
		res.Activities = append(res.Activities,
			ctx.activity("relay_empty", nil, nil))
		return res
	}

	forwarded := evt.Token.Derive(
		ctx.IDs.Generate(),
		evt.Token.Value,
		sim.LineageStep{NodeID: ctx.Config.ID, Time: ctx.Now, Operation: "relay"},
	)

	res.Events = ctx.route(ctx.Now, forwarded, evt.ID)
	res.Activities = append(res.Activities,
		ctx.activity("relay", forwarded.Value, forwarded))

	return res
}

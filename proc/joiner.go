package proc

import (
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// A PendingJoin holds the tokens received so far for one correlation ID,
// keyed by source node, plus the deadline after which the partial state is
// discarded.
type PendingJoin struct {
	Tokens map[string]*sim.Token

	// ArrivalOrder lists the contributing sources oldest first, for the
	// first/last strategies.
	ArrivalOrder []string

	Deadline sim.Tick
}

// JoinerState is the internal state of a joiner node. PendingOrder mirrors
// the map keys in creation order so that deadline sweeps are deterministic.
type JoinerState struct {
	Pending      map[string]*PendingJoin
	PendingOrder []string
}

func (*JoinerState) isNodeState() {}

// Joiner holds partial token sets per correlation ID until every node in
// requiredSources has contributed, then combines them into exactly one
// output token. When a per-correlation deadline elapses first, the partial
// state is discarded and a timeout activity is recorded; a partial token is
// never emitted. Deadlines are realized as scheduled JoinTimeout events and
// additionally swept at every Process call.
type Joiner struct{}

// NodeType returns the tag this processor handles.
func (Joiner) NodeType() scenario.NodeType {
	return scenario.NodeJoiner
}

// InitializeState creates an empty pending-join map.
func (Joiner) InitializeState(_ *scenario.NodeConfig) State {
	return &JoinerState{Pending: map[string]*PendingJoin{}}
}

// Process handles token arrivals and timeout checks.
func (Joiner) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*JoinerState)
	if !ok {
		return Result{}, errWrongState(ctx.Config.ID)
	}

	res := Result{State: st}

	sweepExpired(ctx, st, &res)

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
		receiveContribution(ctx, evt, st, &res)
		return res, nil

	case sim.EventJoinTimeout:
		// A timeout scheduled by an earlier round for the same correlation
		// may still be in flight after that round completed. It must not
		// touch a fresh pending join whose own deadline lies ahead.
		corr, _ := evt.Data["correlation_id"].(string)
		if p, pending := st.Pending[corr]; pending && p.Deadline <= ctx.Now {
			discard(ctx, st, &res, corr)
		}

		return res, nil

	default:
		return Result{}, ErrUnhandledEvent
	}
}

// sweepExpired drops every pending join whose deadline is strictly in the
// past. The scheduled JoinTimeout event handles the boundary tick itself.
func sweepExpired(ctx *Context, st *JoinerState, res *Result) {
	for _, corr := range append([]string(nil), st.PendingOrder...) {
		p := st.Pending[corr]
		if p != nil && p.Deadline > 0 && p.Deadline < ctx.Now {
			discard(ctx, st, res, corr)
		}
	}
}

func discard(ctx *Context, st *JoinerState, res *Result, corr string) {
	delete(st.Pending, corr)
	st.PendingOrder = removeString(st.PendingOrder, corr)

	a := ctx.activity("timeout", nil, nil)
	a.CorrelationIDs = []string{corr}
	res.Activities = append(res.Activities, a)
}

func receiveContribution(ctx *Context, evt *sim.Event, st *JoinerState, res *Result) {
	cfg := ctx.Config.Joiner
	tok := evt.Token
	corr := tok.PrimaryCorrelationID()

	p, exists := st.Pending[corr]
	if !exists {
		p = &PendingJoin{Tokens: map[string]*sim.Token{}}
		if cfg.TimeoutTicks > 0 {
			p.Deadline = ctx.Now + cfg.TimeoutTicks
			res.Events = append(res.Events, ctx.selfEvent(
				p.Deadline,
				sim.EventJoinTimeout,
				evt.ID,
				map[string]any{"correlation_id": corr},
			))
		}

		st.Pending[corr] = p
		st.PendingOrder = append(st.PendingOrder, corr)
	}

	if _, dup := p.Tokens[evt.SourceNode]; !dup {
		p.ArrivalOrder = append(p.ArrivalOrder, evt.SourceNode)
	}
	p.Tokens[evt.SourceNode] = tok

	res.Activities = append(res.Activities,
		ctx.activity("receive", tok.Value, tok))

	for _, src := range cfg.RequiredSources {
		if _, have := p.Tokens[src]; !have {
			return
		}
	}

	emitJoin(ctx, evt, st, res, corr, p)
}

// emitJoin combines the complete contribution set into exactly one token
// and discards the pending state for the correlation.
func emitJoin(
	ctx *Context,
	evt *sim.Event,
	st *JoinerState,
	res *Result,
	corr string,
	p *PendingJoin,
) {
	cfg := ctx.Config.Joiner

	contributors := make([]*sim.Token, 0, len(cfg.RequiredSources))
	for _, src := range cfg.RequiredSources {
		contributors = append(contributors, p.Tokens[src])
	}

	value := combineValues(cfg, p)

	tok := sim.Combine(ctx.IDs.Generate(), value, contributors, sim.LineageStep{
		NodeID:    ctx.Config.ID,
		Time:      ctx.Now,
		Operation: "join",
	})

	delete(st.Pending, corr)
	st.PendingOrder = removeString(st.PendingOrder, corr)

	res.Events = append(res.Events, ctx.route(ctx.Now, tok, evt.ID)...)
	res.Activities = append(res.Activities,
		ctx.activity("join", tok.Value, tok))
}

// combineValues builds the output value per the configured strategy.
func combineValues(cfg *scenario.JoinerConfig, p *PendingJoin) any {
	switch cfg.Strategy {
	case "array":
		values := make([]any, 0, len(cfg.RequiredSources))
		for _, src := range cfg.RequiredSources {
			values = append(values, p.Tokens[src].Value)
		}
		return values

	case "first":
		return p.Tokens[p.ArrivalOrder[0]].Value

	case "last":
		return p.Tokens[p.ArrivalOrder[len(p.ArrivalOrder)-1]].Value

	default: // merge
		merged := map[string]any{}
		for _, src := range cfg.RequiredSources {
			v := p.Tokens[src].Value
			if fields, ok := v.(map[string]any); ok {
				for k, fv := range fields {
					merged[k] = fv
				}
				continue
			}
			merged[src] = v
		}
		return merged
	}
}

package proc

import (
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// A BufferedToken is one entry in a queue node's buffer. Seq records the
// arrival order, which drop_oldest and the FIFO tie-breaks rely on.
type BufferedToken struct {
	Token    *sim.Token
	Priority float64
	Source   string
	Seq      uint64
	At       sim.Tick
}

// A BatchGroup accumulates tokens sharing one group-key value.
type BatchGroup struct {
	Tokens  []*sim.Token
	FirstAt sim.Tick
}

// QueueNodeState is the internal state of a queue node. One node runs in
// exactly one of the three modes, so only that mode's fields are live.
type QueueNodeState struct {
	// Buffering.
	Buffer         []BufferedToken
	ArrivalSeq     uint64
	DrainScheduled bool
	SourceOrder    []string
	RRNext         int

	// Aggregation.
	Window          []*sim.Token
	WindowTriggerAt sim.Tick

	// Batching.
	Groups   map[string]*BatchGroup
	GroupIDs []string
}

func (*QueueNodeState) isNodeState() {}

// QueueNode implements the queue node type: plain buffering with an
// insertion strategy and an overflow policy, count/time-windowed
// aggregation, or grouped batching. The modes are mutually exclusive and
// selected by configuration.
type QueueNode struct{}

// NodeType returns the tag this processor handles.
func (QueueNode) NodeType() scenario.NodeType {
	return scenario.NodeQueue
}

// InitializeState creates empty buffers for all modes.
func (QueueNode) InitializeState(_ *scenario.NodeConfig) State {
	return &QueueNodeState{Groups: map[string]*BatchGroup{}}
}

// Process dispatches on the configured mode.
func (QueueNode) Process(ctx *Context, evt *sim.Event, state State) (Result, error) {
	st, ok := state.(*QueueNodeState)
	if !ok {
		return Result{}, errWrongState(ctx.Config.ID)
	}

	switch ctx.Config.Queue.Mode {
	case scenario.QueueModeBuffer:
		return processBuffer(ctx, evt, st)
	case scenario.QueueModeAggregate:
		return processAggregate(ctx, evt, st)
	default:
		return processBatch(ctx, evt, st)
	}
}

// processBuffer handles the plain buffering mode.
func processBuffer(ctx *Context, evt *sim.Event, st *QueueNodeState) (Result, error) {
	cfg := ctx.Config.Queue
	res := Result{State: st}

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
		insertToken(ctx, evt, st, &res)

		if cfg.AutoProcess && !st.DrainScheduled && len(st.Buffer) > 0 {
			st.DrainScheduled = true
			res.Events = append(res.Events,
				ctx.selfEvent(ctx.Now+1, sim.EventQueueDrain, evt.ID, nil))
		}

		return res, nil

	case sim.EventQueueDrain:
		st.DrainScheduled = false
		drain(ctx, evt, st, &res)

		if cfg.AutoProcess && len(st.Buffer) > 0 {
			st.DrainScheduled = true
			res.Events = append(res.Events,
				ctx.selfEvent(ctx.Now+1, sim.EventQueueDrain, evt.ID, nil))
		}

		return res, nil

	case sim.EventProcessComplete:
		// Manual drain request for queues without auto-processing.
		drain(ctx, evt, st, &res)

		return res, nil

	default:
		return Result{}, ErrUnhandledEvent
	}
}

// insertToken applies the overflow policy and the insertion strategy.
func insertToken(ctx *Context, evt *sim.Event, st *QueueNodeState, res *Result) {
	cfg := ctx.Config.Queue
	tok := evt.Token

	entry := BufferedToken{
		Token:    tok,
		Priority: tokenPriority(cfg, tok),
		Source:   evt.SourceNode,
		At:       ctx.Now,
	}

	if cfg.MaxSize > 0 && len(st.Buffer) >= cfg.MaxSize {
		if !applyOverflow(ctx, st, res, tok) {
			return
		}
	}

	st.ArrivalSeq++
	entry.Seq = st.ArrivalSeq

	switch cfg.Strategy {
	case "lifo":
		st.Buffer = append([]BufferedToken{entry}, st.Buffer...)
	case "priority":
		i := 0
		for i < len(st.Buffer) && st.Buffer[i].Priority <= entry.Priority {
			i++
		}
		st.Buffer = append(st.Buffer, BufferedToken{})
		copy(st.Buffer[i+1:], st.Buffer[i:])
		st.Buffer[i] = entry
	default: // fifo, round_robin
		st.Buffer = append(st.Buffer, entry)
	}

	if entry.Source != "" && !containsString(st.SourceOrder, entry.Source) {
		st.SourceOrder = append(st.SourceOrder, entry.Source)
	}

	res.Activities = append(res.Activities,
		ctx.activity("enqueue", tok.Value, tok))
}

// applyOverflow resolves a full buffer per the configured policy. It
// returns false when the incoming token must be rejected. Overflow is never
// an error; the policy fully resolves it.
func applyOverflow(ctx *Context, st *QueueNodeState, res *Result, incoming *sim.Token) bool {
	switch ctx.Config.Queue.OverflowAction {
	case "drop_oldest":
		idx := 0
		for i, b := range st.Buffer {
			if b.Seq < st.Buffer[idx].Seq {
				idx = i
			}
		}
		dropped := st.Buffer[idx]
		st.Buffer = append(st.Buffer[:idx], st.Buffer[idx+1:]...)

		res.Activities = append(res.Activities,
			ctx.activity("overflow_drop_oldest", dropped.Token.Value, dropped.Token))

		return true

	case "drop_lowest_priority":
		// Ascending priority values dequeue first, so the numerically
		// largest value is the least urgent entry.
		idx := 0
		for i, b := range st.Buffer {
			if b.Priority > st.Buffer[idx].Priority {
				idx = i
			}
		}
		dropped := st.Buffer[idx]
		st.Buffer = append(st.Buffer[:idx], st.Buffer[idx+1:]...)

		res.Activities = append(res.Activities,
			ctx.activity("overflow_drop_lowest_priority",
				dropped.Token.Value, dropped.Token))

		return true

	default: // reject
		res.Activities = append(res.Activities,
			ctx.activity("overflow_reject", incoming.Value, incoming))

		return false
	}
}

// drain releases up to processingRate tokens to the downstream targets.
func drain(ctx *Context, evt *sim.Event, st *QueueNodeState, res *Result) {
	cfg := ctx.Config.Queue

	rate := cfg.ProcessingRate
	if rate <= 0 {
		rate = 1
	}

	for i := 0; i < rate && len(st.Buffer) > 0; i++ {
		entry := removeNext(cfg, st)

		out := entry.Token.Derive(
			ctx.IDs.Generate(),
			entry.Token.Value,
			sim.LineageStep{
				NodeID:    ctx.Config.ID,
				Time:      ctx.Now,
				Operation: "dequeue",
			},
		)

		res.Events = append(res.Events, ctx.route(ctx.Now, out, evt.ID)...)
		res.Activities = append(res.Activities,
			ctx.activity("dequeue", out.Value, out))
	}
}

// removeNext picks the token to release. All strategies remove from the
// buffer front except round_robin, which rotates across source nodes in
// first-seen order.
func removeNext(cfg *scenario.QueueConfig, st *QueueNodeState) BufferedToken {
	if cfg.Strategy != "round_robin" || len(st.SourceOrder) == 0 {
		entry := st.Buffer[0]
		st.Buffer = st.Buffer[1:]

		return entry
	}

	for probe := 0; probe < len(st.SourceOrder); probe++ {
		src := st.SourceOrder[st.RRNext%len(st.SourceOrder)]
		st.RRNext++

		for i, b := range st.Buffer {
			if b.Source == src {
				st.Buffer = append(st.Buffer[:i], st.Buffer[i+1:]...)

				return b
			}
		}
	}

	entry := st.Buffer[0]
	st.Buffer = st.Buffer[1:]

	return entry
}

// tokenPriority reads the numeric priority from the configured metadata
// field, falling back to a numeric token value.
func tokenPriority(cfg *scenario.QueueConfig, tok *sim.Token) float64 {
	field := cfg.PriorityField
	if field == "" {
		field = "priority"
	}

	if v, ok := tok.Metadata[field]; ok {
		if p, ok := sim.AsFloat(v); ok {
			return p
		}
	}

	if p, ok := sim.AsFloat(tok.Value); ok {
		return p
	}

	return 0
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}

package proc

import (
	"github.com/flowlab/flowsim/sim"
)

// processAggregate handles the aggregation mode: tokens accumulate until a
// count threshold or a time-window boundary is reached, then reduce to one
// output token. Window boundaries are realized by scheduling an explicit
// AggregationTrigger event, never by a background timer.
func processAggregate(ctx *Context, evt *sim.Event, st *QueueNodeState) (Result, error) {
	cfg := ctx.Config.Queue
	res := Result{State: st}

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
		st.Window = append(st.Window, evt.Token)
		res.Activities = append(res.Activities,
			ctx.activity("buffer", evt.Token.Value, evt.Token))

		if cfg.CountThreshold > 0 && len(st.Window) >= cfg.CountThreshold {
			flushWindow(ctx, evt, st, &res)
			return res, nil
		}

		if cfg.WindowTicks > 0 && st.WindowTriggerAt == 0 {
			boundary := (ctx.Now/cfg.WindowTicks + 1) * cfg.WindowTicks
			st.WindowTriggerAt = boundary
			res.Events = append(res.Events,
				ctx.selfEvent(boundary, sim.EventAggregationTrigger, evt.ID, nil))
		}

		return res, nil

	case sim.EventAggregationTrigger:
		if _, isBatch := evt.Data["group"]; isBatch {
			return Result{}, ErrUnhandledEvent
		}

		st.WindowTriggerAt = 0
		if len(st.Window) > 0 {
			flushWindow(ctx, evt, st, &res)
		}

		return res, nil

	default:
		return Result{}, ErrUnhandledEvent
	}
}

// flushWindow reduces the buffered tokens into one output token and clears
// the buffer. With a pure numeric method and no custom expression the
// output value is the scalar; with a custom expression the value is the
// ordered source-value list and the scalar is kept in metadata for
// consumers that need both.
func flushWindow(ctx *Context, evt *sim.Event, st *QueueNodeState, res *Result) {
	cfg := ctx.Config.Queue

	values := make([]any, 0, len(st.Window))
	for _, t := range st.Window {
		values = append(values, t.Value)
	}

	scalar := reduce(cfg.Method, values)

	var out any = scalar
	if cfg.CustomExpression != "" {
		out = values
	}

	tok := sim.Combine(ctx.IDs.Generate(), out, st.Window, sim.LineageStep{
		NodeID:    ctx.Config.ID,
		Time:      ctx.Now,
		Operation: "aggregate",
	})

	if cfg.CustomExpression != "" {
		tok.Metadata = map[string]any{
			"aggregate":  scalar,
			"expression": cfg.CustomExpression,
		}
	}

	st.Window = nil

	res.Events = append(res.Events, ctx.route(ctx.Now, tok, evt.ID)...)
	res.Activities = append(res.Activities,
		ctx.activity("aggregate", scalar, tok))
}

// reduce applies a pure numeric reduction. Non-numeric values are skipped
// for sum/average/min/max; count counts every token.
func reduce(method string, values []any) float64 {
	if method == "count" {
		return float64(len(values))
	}

	var (
		nums  []float64
		total float64
	)

	for _, v := range values {
		if f, ok := sim.AsFloat(v); ok {
			nums = append(nums, f)
			total += f
		}
	}

	if len(nums) == 0 {
		return 0
	}

	switch method {
	case "average":
		return total / float64(len(nums))
	case "min":
		m := nums[0]
		for _, f := range nums[1:] {
			if f < m {
				m = f
			}
		}
		return m
	case "max":
		m := nums[0]
		for _, f := range nums[1:] {
			if f > m {
				m = f
			}
		}
		return m
	default: // sum
		return total
	}
}

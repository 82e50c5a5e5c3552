package proc

import (
	"fmt"

	"github.com/flowlab/flowsim/sim"
)

// processBatch handles the batching mode: tokens are grouped by a field
// value and each group is emitted as its own list-valued token once its
// size or age threshold is met. Age thresholds are realized by scheduling a
// group-tagged AggregationTrigger event when the group is opened.
func processBatch(ctx *Context, evt *sim.Event, st *QueueNodeState) (Result, error) {
	cfg := ctx.Config.Queue
	res := Result{State: st}

	switch evt.Kind {
	case sim.EventTokenArrival, sim.EventExternalInput:
		key := groupKey(cfg.GroupBy, evt.Token)

		g, exists := st.Groups[key]
		if !exists {
			g = &BatchGroup{FirstAt: ctx.Now}
			st.Groups[key] = g
			st.GroupIDs = append(st.GroupIDs, key)

			if cfg.MaxAgeTicks > 0 {
				res.Events = append(res.Events, ctx.selfEvent(
					ctx.Now+cfg.MaxAgeTicks,
					sim.EventAggregationTrigger,
					evt.ID,
					map[string]any{"group": key},
				))
			}
		}

		g.Tokens = append(g.Tokens, evt.Token)
		res.Activities = append(res.Activities,
			ctx.activity("buffer", evt.Token.Value, evt.Token))

		if cfg.BatchSize > 0 && len(g.Tokens) >= cfg.BatchSize {
			flushGroup(ctx, evt, st, &res, key)
		}

		return res, nil

	case sim.EventAggregationTrigger:
		key, ok := evt.Data["group"].(string)
		if !ok {
			return Result{}, ErrUnhandledEvent
		}

		// The group may already have been flushed by its size threshold.
		if _, exists := st.Groups[key]; exists {
			flushGroup(ctx, evt, st, &res, key)
		}

		return res, nil

	default:
		return Result{}, ErrUnhandledEvent
	}
}

// flushGroup emits one list-valued token for the group and discards the
// group state. The scalar aggregate (the configured method, or the token
// count) rides along in metadata.
func flushGroup(ctx *Context, evt *sim.Event, st *QueueNodeState, res *Result, key string) {
	cfg := ctx.Config.Queue
	g := st.Groups[key]

	values := make([]any, 0, len(g.Tokens))
	for _, t := range g.Tokens {
		values = append(values, t.Value)
	}

	method := cfg.Method
	if method == "" {
		method = "count"
	}
	scalar := reduce(method, values)

	tok := sim.Combine(ctx.IDs.Generate(), values, g.Tokens, sim.LineageStep{
		NodeID:    ctx.Config.ID,
		Time:      ctx.Now,
		Operation: "batch",
	})
	tok.Metadata = map[string]any{
		"group":     key,
		"aggregate": scalar,
	}

	delete(st.Groups, key)
	st.GroupIDs = removeString(st.GroupIDs, key)

	res.Events = append(res.Events, ctx.route(ctx.Now, tok, evt.ID)...)
	res.Activities = append(res.Activities,
		ctx.activity("batch", key, tok))
}

// groupKey extracts the grouping value from a map-shaped token value or,
// failing that, from token metadata.
func groupKey(field string, tok *sim.Token) string {
	if v, ok := sim.Field(tok.Value, field); ok {
		return fmt.Sprintf("%v", v)
	}

	if v, ok := tok.Metadata[field]; ok {
		return fmt.Sprintf("%v", v)
	}

	return fmt.Sprintf("%v", tok.Value)
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}

	return s
}

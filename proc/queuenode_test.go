package proc

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

var _ = ginkgo.Describe("QueueNode buffering", func() {
	var (
		p    QueueNode
		node *scenario.NodeConfig
		st   State
	)

	queueNode := func(cfg scenario.QueueConfig) *scenario.NodeConfig {
		cfg.Mode = scenario.QueueModeBuffer
		return &scenario.NodeConfig{
			ID:    "node",
			Type:  scenario.NodeQueue,
			Queue: &cfg,
		}
	}

	push := func(ctx *Context, tok *sim.Token, source string) Result {
		res, err := p.Process(ctx, arrival(source, tok, ctx.Now), st)
		Expect(err).To(BeNil())
		st = res.State

		return res
	}

	drainAll := func(ctx *Context) Result {
		res, err := p.Process(ctx, &sim.Event{
			ID:   "drain",
			Time: ctx.Now,
			Kind: sim.EventProcessComplete,
		}, st)
		Expect(err).To(BeNil())
		st = res.State

		return res
	}

	ginkgo.BeforeEach(func() {
		p = QueueNode{}
	})

	ginkgo.It("should dequeue FIFO by default", func() {
		node = queueNode(scenario.QueueConfig{ProcessingRate: 3})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 5), "s1")
		push(ctx, valueToken("b", 1), "s1")
		push(ctx, valueToken("c", 3), "s1")

		res := drainAll(ctx)

		Expect(res.Events).To(HaveLen(3))
		Expect(res.Events[0].Token.Value).To(Equal(5))
		Expect(res.Events[1].Token.Value).To(Equal(1))
		Expect(res.Events[2].Token.Value).To(Equal(3))
	})

	ginkgo.It("should dequeue LIFO when configured", func() {
		node = queueNode(scenario.QueueConfig{
			Strategy:       "lifo",
			ProcessingRate: 2,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 1), "s1")
		push(ctx, valueToken("b", 2), "s1")

		res := drainAll(ctx)

		Expect(res.Events[0].Token.Value).To(Equal(2))
		Expect(res.Events[1].Token.Value).To(Equal(1))
	})

	ginkgo.It("should dequeue ascending priority first", func() {
		node = queueNode(scenario.QueueConfig{
			Strategy:       "priority",
			ProcessingRate: 3,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 5), "s1")
		push(ctx, valueToken("b", 1), "s1")
		push(ctx, valueToken("c", 3), "s1")

		res := drainAll(ctx)

		Expect(res.Events[0].Token.Value).To(Equal(1))
		Expect(res.Events[1].Token.Value).To(Equal(3))
		Expect(res.Events[2].Token.Value).To(Equal(5))
	})

	ginkgo.It("should read the priority from the configured metadata field", func() {
		node = queueNode(scenario.QueueConfig{
			Strategy:       "priority",
			PriorityField:  "urgency",
			ProcessingRate: 2,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", "slow").WithMetadata("urgency", 9), "s1")
		push(ctx, valueToken("b", "fast").WithMetadata("urgency", 1), "s1")

		res := drainAll(ctx)

		Expect(res.Events[0].Token.Value).To(Equal("fast"))
		Expect(res.Events[1].Token.Value).To(Equal("slow"))
	})

	ginkgo.It("should rotate across sources in round-robin", func() {
		node = queueNode(scenario.QueueConfig{
			Strategy:       "round_robin",
			ProcessingRate: 4,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a1", "a1"), "A")
		push(ctx, valueToken("a2", "a2"), "A")
		push(ctx, valueToken("b1", "b1"), "B")
		push(ctx, valueToken("b2", "b2"), "B")

		res := drainAll(ctx)

		values := []any{
			res.Events[0].Token.Value,
			res.Events[1].Token.Value,
			res.Events[2].Token.Value,
			res.Events[3].Token.Value,
		}
		Expect(values).To(Equal([]any{"a1", "b1", "a2", "b2"}))
	})

	ginkgo.It("should reject overflow by default", func() {
		node = queueNode(scenario.QueueConfig{MaxSize: 2})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10)

		push(ctx, valueToken("a", 1), "s1")
		push(ctx, valueToken("b", 2), "s1")
		res := push(ctx, valueToken("c", 3), "s1")

		Expect(actions(res)).To(Equal([]string{"overflow_reject"}))
		Expect(st.(*QueueNodeState).Buffer).To(HaveLen(2))
	})

	ginkgo.It("should drop the oldest entry on overflow when configured", func() {
		node = queueNode(scenario.QueueConfig{
			MaxSize:        2,
			OverflowAction: "drop_oldest",
			ProcessingRate: 2,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 1), "s1")
		push(ctx, valueToken("b", 2), "s1")
		res := push(ctx, valueToken("c", 3), "s1")

		Expect(actions(res)).To(Equal(
			[]string{"overflow_drop_oldest", "enqueue"}))

		res = drainAll(ctx)
		Expect(res.Events[0].Token.Value).To(Equal(2))
		Expect(res.Events[1].Token.Value).To(Equal(3))
	})

	ginkgo.It("should drop the least urgent entry on overflow when configured", func() {
		node = queueNode(scenario.QueueConfig{
			Strategy:       "priority",
			MaxSize:        2,
			OverflowAction: "drop_lowest_priority",
			ProcessingRate: 2,
		})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 7), "s1")
		push(ctx, valueToken("b", 2), "s1")
		res := push(ctx, valueToken("c", 4), "s1")

		Expect(actions(res)).To(Equal(
			[]string{"overflow_drop_lowest_priority", "enqueue"}))

		res = drainAll(ctx)
		Expect(res.Events[0].Token.Value).To(Equal(2))
		Expect(res.Events[1].Token.Value).To(Equal(4))
	})

	ginkgo.It("should schedule drains while auto-processing", func() {
		node = queueNode(scenario.QueueConfig{AutoProcess: true})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		res := push(ctx, valueToken("a", 1), "s1")

		Expect(res.Events).To(HaveLen(1))
		Expect(res.Events[0].Kind).To(Equal(sim.EventQueueDrain))
		Expect(res.Events[0].Time).To(Equal(sim.Tick(11)))
		Expect(res.Events[0].TargetNode).To(Equal("node"))

		// A second arrival must not schedule another drain.
		res = push(ctx, valueToken("b", 2), "s1")
		Expect(res.Events).To(BeEmpty())

		// The drain releases one token and reschedules itself while the
		// buffer is still occupied.
		ctx.Now = 11
		res, err := p.Process(ctx, &sim.Event{
			ID:   "d1",
			Time: 11,
			Kind: sim.EventQueueDrain,
		}, st)
		Expect(err).To(BeNil())
		st = res.State

		var kinds []sim.EventKind
		for _, evt := range res.Events {
			kinds = append(kinds, evt.Kind)
		}
		Expect(kinds).To(Equal(
			[]sim.EventKind{sim.EventTokenArrival, sim.EventQueueDrain}))

		// The last drain empties the buffer and stops.
		ctx.Now = 12
		res, err = p.Process(ctx, &sim.Event{
			ID:   "d2",
			Time: 12,
			Kind: sim.EventQueueDrain,
		}, st)
		Expect(err).To(BeNil())
		Expect(res.Events).To(HaveLen(1))
		Expect(res.Events[0].Kind).To(Equal(sim.EventTokenArrival))
	})

	ginkgo.It("should stamp dequeued tokens with a lineage step", func() {
		node = queueNode(scenario.QueueConfig{})
		st = p.InitializeState(node)
		ctx := testCtx(node, 10, edgeTo("out"))

		push(ctx, valueToken("a", 1), "s1")
		res := drainAll(ctx)

		out := res.Events[0].Token
		Expect(out.Lineage[len(out.Lineage)-1].Operation).To(Equal("dequeue"))
		Expect(out.CorrelationIDs).To(Equal([]string{"corr-a"}))
	})
})

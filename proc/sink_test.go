package proc

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

var _ = ginkgo.Describe("Sink", func() {
	var (
		p    Sink
		node *scenario.NodeConfig
		st   State
	)

	ginkgo.BeforeEach(func() {
		p = Sink{}
		node = &scenario.NodeConfig{ID: "node", Type: scenario.NodeSink}
		st = p.InitializeState(node)
	})

	ginkgo.It("should consume the token and record its value", func() {
		res, err := p.Process(
			testCtx(node, 40), arrival("src", valueToken("t1", 7), 40), st)

		Expect(err).To(BeNil())
		Expect(res.Events).To(BeEmpty())
		Expect(actions(res)).To(Equal([]string{"consume"}))
		Expect(res.Activities[0].Details).To(Equal(map[string]any{"value": 7}))
		Expect(res.Activities[0].CorrelationIDs).To(Equal([]string{"corr-t1"}))

		state := res.State.(*SinkState)
		Expect(state.Consumed).To(Equal(1))
		Expect(state.LastValue).To(Equal(7))
	})

	ginkgo.It("should record only the configured fields", func() {
		node.Sink = &scenario.SinkConfig{
			Fields: []string{"id", "correlation_ids", "metadata.stage"},
		}
		tok := valueToken("t1", 7).WithMetadata("stage", "done")

		res, err := p.Process(
			testCtx(node, 40), arrival("src", tok, 40), st)

		Expect(err).To(BeNil())
		Expect(res.Activities[0].Details).To(Equal(map[string]any{
			"id":              "t1",
			"correlation_ids": []string{"corr-t1"},
			"metadata.stage":  "done",
		}))
	})

	ginkgo.It("should count every consumed token", func() {
		ctx := testCtx(node, 40)

		res, _ := p.Process(ctx, arrival("src", valueToken("t1", 1), 40), st)
		res, _ = p.Process(ctx, arrival("src", valueToken("t2", 2), 40), res.State)

		Expect(res.State.(*SinkState).Consumed).To(Equal(2))
	})

	ginkgo.It("should reject event kinds it does not handle", func() {
		_, err := p.Process(
			testCtx(node, 40), &sim.Event{Kind: sim.EventDataEmit}, st)

		Expect(err).To(MatchError(ErrUnhandledEvent))
	})
})

var _ = ginkgo.Describe("Registry", func() {
	ginkgo.It("should register all six node types", func() {
		r := NewRegistry()

		for _, t := range []scenario.NodeType{
			scenario.NodeDataSource,
			scenario.NodeQueue,
			scenario.NodeProcess,
			scenario.NodeMultiplexer,
			scenario.NodeJoiner,
			scenario.NodeSink,
		} {
			p, ok := r.Lookup(t)
			Expect(ok).To(BeTrue())
			Expect(p.NodeType()).To(Equal(t))
		}
	})

	ginkgo.It("should reject duplicate registrations", func() {
		r := NewRegistry()

		Expect(func() { r.Register(Sink{}) }).To(Panic())
	})

	ginkgo.It("should miss unknown tags", func() {
		_, ok := NewRegistry().Lookup("teleporter")
		Expect(ok).To(BeFalse())
	})
})

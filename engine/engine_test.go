package engine

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/flowlab/flowsim/ledger"
	"github.com/flowlab/flowsim/proc"
	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// pipelineConfig is a source -> queue -> sink chain with a fully
// deterministic schedule.
func pipelineConfig() *scenario.Config {
	return &scenario.Config{
		Name: "pipeline",
		Nodes: []*scenario.NodeConfig{
			{
				ID:   "src",
				Type: scenario.NodeDataSource,
				DataSource: &scenario.DataSourceConfig{
					Rate:      2,
					MaxEvents: 3,
				},
			},
			{
				ID:   "q",
				Type: scenario.NodeQueue,
				Queue: &scenario.QueueConfig{
					Mode:        scenario.QueueModeBuffer,
					AutoProcess: true,
				},
			},
			{ID: "out", Type: scenario.NodeSink},
		},
		Edges: []*scenario.EdgeConfig{
			{ID: "e1", Source: "src", Target: "q"},
			{ID: "e2", Source: "q", Target: "out"},
		},
	}
}

type countingHook struct {
	before, after, scheduled int
}

func (h *countingHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosBeforeStep:
		h.before++
	case sim.HookPosAfterStep:
		h.after++
	case sim.HookPosEventScheduled:
		h.scheduled++
	}
}

var _ = Describe("Engine", func() {
	var (
		mockCtrl *gomock.Controller
		e        *Engine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		e = New(nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start uninitialized", func() {
		Expect(e.State()).To(Equal(StateUninitialized))

		_, err := e.Step()
		var sErr *StateError
		Expect(errors.As(err, &sErr)).To(BeTrue())
		Expect(sErr.State).To(Equal(StateUninitialized))
	})

	It("should enqueue one start event per data source on initialize", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		Expect(e.State()).To(Equal(StateReady))
		Expect(e.Now()).To(Equal(sim.Tick(0)))

		pending := e.Queue().Snapshot()
		Expect(pending).To(HaveLen(1))
		Expect(pending[0].Kind).To(Equal(sim.EventSimulationStart))
		Expect(pending[0].TargetNode).To(Equal("src"))
	})

	It("should fail initialization atomically", func() {
		cfg := pipelineConfig()
		cfg.Nodes[0].DataSource.Rate = 0

		err := e.Initialize(cfg)

		var vErr *scenario.ValidationError
		Expect(errors.As(err, &vErr)).To(BeTrue())
		Expect(e.State()).To(Equal(StateErrored))
		Expect(e.Scenario()).To(BeNil())
		Expect(e.NodeState("src")).To(BeNil())

		_, err = e.Run(0)
		Expect(err).To(HaveOccurred())
	})

	It("should recover by re-initializing with a valid configuration", func() {
		cfg := pipelineConfig()
		cfg.Nodes[0].DataSource.Rate = 0
		Expect(e.Initialize(cfg)).NotTo(Succeed())

		Expect(e.Initialize(pipelineConfig())).To(Succeed())
		Expect(e.State()).To(Equal(StateReady))
	})

	It("should run a pipeline to completion", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		steps, err := e.Run(0)
		Expect(err).To(BeNil())
		Expect(steps).To(BeNumerically(">", 0))
		Expect(e.State()).To(Equal(StateCompleted))
		Expect(e.Queue().Len()).To(Equal(0))

		var consumed []any
		for _, entry := range e.Ledger().NodeEntries("out") {
			Expect(entry.Action).To(Equal("consume"))
			consumed = append(consumed, entry.Value)
		}
		Expect(consumed).To(Equal([]any{1, 2, 3}))
	})

	It("should complete naturally on an empty queue", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		for {
			evt, err := e.Step()
			Expect(err).To(BeNil())
			if evt == nil {
				break
			}
		}

		Expect(e.State()).To(Equal(StateCompleted))

		// Stepping a completed engine is a state error, not a panic.
		_, err := e.Step()
		Expect(err).To(HaveOccurred())
	})

	It("should never move time backwards", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		last := sim.Tick(0)
		for {
			evt, err := e.Step()
			Expect(err).To(BeNil())
			if evt == nil {
				break
			}
			Expect(evt.Time).To(BeNumerically(">=", last))
			last = evt.Time
		}
	})

	It("should invoke hooks around each step", func() {
		hook := &countingHook{}
		e.AcceptHook(hook)

		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		steps, err := e.Run(0)
		Expect(err).To(BeNil())
		Expect(hook.before).To(Equal(steps))
		Expect(hook.after).To(Equal(steps))
		Expect(hook.scheduled).To(BeNumerically(">", 0))
	})

	It("should record a validation activity for an unknown target node", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		Expect(e.AddEvent(&sim.Event{
			Time:       1,
			Kind:       sim.EventTokenArrival,
			TargetNode: "ghost",
		})).To(Succeed())

		_, err := e.Run(0)
		Expect(err).To(BeNil())

		entries := e.Ledger().NodeEntries("ghost")
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Action).To(Equal("validation"))
	})

	It("should record a validation activity for an unhandled event kind", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		Expect(e.AddEvent(&sim.Event{
			Time:       1,
			Kind:       sim.EventJoinTimeout,
			TargetNode: "out",
		})).To(Succeed())

		_, err := e.Run(0)
		Expect(err).To(BeNil())
		Expect(e.State()).To(Equal(StateCompleted))

		var validations int
		for _, entry := range e.Ledger().NodeEntries("out") {
			if entry.Action == "validation" {
				validations++
			}
		}
		Expect(validations).To(Equal(1))
	})

	It("should consume the event and continue when a processor fails", func() {
		p := NewMockProcessor(mockCtrl)
		p.EXPECT().NodeType().Return(scenario.NodeDataSource).AnyTimes()
		p.EXPECT().InitializeState(gomock.Any()).Return(nil)
		p.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(proc.Result{}, errors.New("boom"))

		registry := proc.NewEmptyRegistry()
		registry.Register(p)
		registry.Register(proc.QueueNode{})
		registry.Register(proc.Sink{})

		e = New(registry)
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		_, err := e.Run(0)
		Expect(err).To(BeNil())
		Expect(e.State()).To(Equal(StateCompleted))

		entries := e.Ledger().NodeEntries("src")
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Action).To(Equal("error"))
		Expect(entries[0].Details["error"]).To(Equal("boom"))
	})

	It("should convert a processor panic into an error activity", func() {
		p := NewMockProcessor(mockCtrl)
		p.EXPECT().NodeType().Return(scenario.NodeDataSource).AnyTimes()
		p.EXPECT().InitializeState(gomock.Any()).Return(nil)
		p.EXPECT().Process(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(*proc.Context, *sim.Event, proc.State) (proc.Result, error) {
				panic("kaboom")
			})

		registry := proc.NewEmptyRegistry()
		registry.Register(p)
		registry.Register(proc.QueueNode{})
		registry.Register(proc.Sink{})

		e = New(registry)
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		_, err := e.Run(0)
		Expect(err).To(BeNil())

		entries := e.Ledger().NodeEntries("src")
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Action).To(Equal("error"))
		Expect(entries[0].Details["error"]).To(
			ContainSubstring("processor panic: kaboom"))
	})

	It("should pause between steps and resume", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		e.Pause()
		steps, err := e.Run(0)
		Expect(err).To(BeNil())
		Expect(steps).To(Equal(0))
		Expect(e.State()).To(Equal(StatePaused))

		_, err = e.Run(0)
		Expect(err).To(BeNil())
		Expect(e.State()).To(Equal(StateCompleted))
	})

	It("should stop after maxSteps and stay resumable", func() {
		Expect(e.Initialize(pipelineConfig())).To(Succeed())

		steps, err := e.Run(2)
		Expect(err).To(BeNil())
		Expect(steps).To(Equal(2))
		Expect(e.State()).To(Equal(StatePaused))

		_, err = e.Run(0)
		Expect(err).To(BeNil())
		Expect(e.State()).To(Equal(StateCompleted))
	})

	It("should terminate a cyclic scenario under a step bound", func() {
		cfg := &scenario.Config{
			Name: "cycle",
			Nodes: []*scenario.NodeConfig{
				{ID: "a", Type: scenario.NodeMultiplexer},
				{ID: "b", Type: scenario.NodeMultiplexer},
			},
			Edges: []*scenario.EdgeConfig{
				{ID: "e1", Source: "a", Target: "b"},
				{ID: "e2", Source: "b", Target: "a"},
			},
		}

		Expect(e.Initialize(cfg)).To(Succeed())
		Expect(e.Scenario().Warnings()).NotTo(BeEmpty())

		_, err := e.Inject(ExternalEvent{
			Timestamp:    1,
			TargetNodeID: "a",
			Data:         map[string]any{"value": 1},
		})
		Expect(err).To(BeNil())

		steps, err := e.Run(100)
		Expect(err).To(BeNil())
		Expect(steps).To(Equal(100))
		Expect(e.State()).To(Equal(StatePaused))
	})

	It("should replay deterministically", func() {
		run := func() []ledger.Entry {
			fresh := New(nil)
			Expect(fresh.Initialize(pipelineConfig())).To(Succeed())

			_, err := fresh.Run(0)
			Expect(err).To(BeNil())

			return fresh.Activities()
		}

		first := run()
		second := run()

		Expect(second).To(HaveLen(len(first)))
		for i := range first {
			Expect(second[i].Sequence).To(Equal(first[i].Sequence))
			Expect(second[i].NodeID).To(Equal(first[i].NodeID))
			Expect(second[i].Action).To(Equal(first[i].Action))
			Expect(second[i].Value).To(Equal(first[i].Value))
			Expect(second[i].Time).To(Equal(first[i].Time))
			Expect(second[i].CorrelationIDs).To(Equal(first[i].CorrelationIDs))
		}
	})

	It("should produce an identical event history on replay", func() {
		ids := func() []string {
			fresh := New(nil)
			Expect(fresh.Initialize(pipelineConfig())).To(Succeed())

			_, err := fresh.Run(0)
			Expect(err).To(BeNil())

			var out []string
			for _, evt := range fresh.Queue().History() {
				out = append(out, evt.ID)
			}

			return out
		}

		Expect(ids()).To(Equal(ids()))
	})
})

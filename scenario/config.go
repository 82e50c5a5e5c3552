package scenario

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/flowlab/flowsim/sim"
)

// NodeType tags the processor variant a node is handled by. The vocabulary
// is closed; Build rejects unknown tags.
type NodeType string

// The node types supported by the engine.
const (
	NodeDataSource  NodeType = "data_source"
	NodeQueue       NodeType = "queue"
	NodeProcess     NodeType = "process"
	NodeMultiplexer NodeType = "multiplexer"
	NodeJoiner      NodeType = "joiner"
	NodeSink        NodeType = "sink"
)

// A Config is the declarative scenario a Scenario is built from. Edges can
// be declared both in the explicit edge list and as outputs embedded on the
// source node; Build reconciles the two into one deduplicated connection
// map.
type Config struct {
	Name  string        `json:"name" yaml:"name"`
	Nodes []*NodeConfig `json:"nodes" yaml:"nodes"`
	Edges []*EdgeConfig `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// A NodeConfig declares one node of the graph. Exactly one per-type payload
// should be set, matching Type.
type NodeConfig struct {
	ID          string       `json:"id" yaml:"id"`
	Type        NodeType     `json:"type" yaml:"type"`
	DisplayName string       `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Outputs     []OutputDecl `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	DataSource  *DataSourceConfig  `json:"data_source,omitempty" yaml:"data_source,omitempty"`
	Queue       *QueueConfig       `json:"queue,omitempty" yaml:"queue,omitempty"`
	Process     *ProcessConfig     `json:"process,omitempty" yaml:"process,omitempty"`
	Multiplexer *MultiplexerConfig `json:"multiplexer,omitempty" yaml:"multiplexer,omitempty"`
	Joiner      *JoinerConfig      `json:"joiner,omitempty" yaml:"joiner,omitempty"`
	Sink        *SinkConfig        `json:"sink,omitempty" yaml:"sink,omitempty"`
}

// An OutputDecl is an edge embedded on its source node.
type OutputDecl struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Target     string     `json:"target" yaml:"target"`
	SourcePort string     `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	TargetPort string     `json:"target_port,omitempty" yaml:"target_port,omitempty"`
	Condition  *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// An EdgeConfig declares one explicit edge.
type EdgeConfig struct {
	ID         string     `json:"id" yaml:"id"`
	Source     string     `json:"source" yaml:"source"`
	Target     string     `json:"target" yaml:"target"`
	SourcePort string     `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	TargetPort string     `json:"target_port,omitempty" yaml:"target_port,omitempty"`
	Condition  *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// DataSourceConfig configures a data_source node. Rate is in tokens per
// simulated second (1000 ticks).
type DataSourceConfig struct {
	Rate      float64 `json:"rate" yaml:"rate"`
	MaxEvents int     `json:"max_events" yaml:"max_events"`

	// Values, when set, is cycled through for the emitted token values.
	// When empty, the 1-based emission index is used as the value.
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`
}

// QueueMode selects one of the three mutually exclusive behaviors of a
// queue node.
type QueueMode string

// The queue modes.
const (
	QueueModeBuffer    QueueMode = "buffer"
	QueueModeAggregate QueueMode = "aggregate"
	QueueModeBatch     QueueMode = "batch"
)

// QueueConfig configures a queue node. Only the fields of the selected mode
// are consulted.
type QueueConfig struct {
	Mode QueueMode `json:"mode" yaml:"mode"`

	// Buffering.
	Strategy       string `json:"strategy,omitempty" yaml:"strategy,omitempty"` // fifo, lifo, priority, round_robin
	MaxSize        int    `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	OverflowAction string `json:"overflow_action,omitempty" yaml:"overflow_action,omitempty"` // reject, drop_oldest, drop_lowest_priority
	AutoProcess    bool   `json:"auto_process,omitempty" yaml:"auto_process,omitempty"`
	ProcessingRate int    `json:"processing_rate,omitempty" yaml:"processing_rate,omitempty"` // tokens per tick
	PriorityField  string `json:"priority_field,omitempty" yaml:"priority_field,omitempty"`   // metadata field, default "priority"

	// Aggregation.
	Method           string   `json:"method,omitempty" yaml:"method,omitempty"` // sum, average, count, min, max
	CountThreshold   int      `json:"count_threshold,omitempty" yaml:"count_threshold,omitempty"`
	WindowTicks      sim.Tick `json:"window_ticks,omitempty" yaml:"window_ticks,omitempty"`
	CustomExpression string   `json:"custom_expression,omitempty" yaml:"custom_expression,omitempty"`

	// Batching.
	GroupBy     string   `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxAgeTicks sim.Tick `json:"max_age_ticks,omitempty" yaml:"max_age_ticks,omitempty"`
}

// ProcessConfig configures a process (finite-state-machine) node.
type ProcessConfig struct {
	Initial     string          `json:"initial,omitempty" yaml:"initial,omitempty"`
	States      []FSMStateDecl  `json:"states" yaml:"states"`
	Transitions []FSMTransition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// An FSMStateDecl declares one FSM state. In configuration files a state
// may appear either as a bare name or as a full record with an onEntry
// action list; bare names decode into a record with no actions.
type FSMStateDecl struct {
	Name    string      `json:"name" yaml:"name"`
	OnEntry []FSMAction `json:"on_entry,omitempty" yaml:"on_entry,omitempty"`
}

// fsmStateRecord mirrors FSMStateDecl without the custom decoding, to avoid
// unmarshal recursion.
type fsmStateRecord struct {
	Name    string      `json:"name" yaml:"name"`
	OnEntry []FSMAction `json:"on_entry,omitempty" yaml:"on_entry,omitempty"`
}

// UnmarshalJSON accepts either "idle" or {"name": "idle", "on_entry": [...]}.
func (s *FSMStateDecl) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Name = name
		s.OnEntry = nil
		return nil
	}

	var rec fsmStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	s.Name = rec.Name
	s.OnEntry = rec.OnEntry

	return nil
}

// UnmarshalYAML accepts the same two shapes as UnmarshalJSON.
func (s *FSMStateDecl) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.OnEntry = nil
		return node.Decode(&s.Name)
	}

	var rec fsmStateRecord
	if err := node.Decode(&rec); err != nil {
		return err
	}

	s.Name = rec.Name
	s.OnEntry = rec.OnEntry

	return nil
}

// An FSMAction is executed when its state is entered. Types: "emit"
// (forward the token downstream), "log" (record an activity), and
// "set_metadata" (set Key to Value on the working token).
type FSMAction struct {
	Type  string `json:"type" yaml:"type"`
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// An FSMTransition fires when a token arrives while the machine is in From
// and the guard matches the token value. A nil guard always matches.
// Transitions are tried in declared order; the first match wins.
type FSMTransition struct {
	From  string     `json:"from" yaml:"from"`
	To    string     `json:"to" yaml:"to"`
	Guard *Condition `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// JoinerConfig configures a joiner node.
type JoinerConfig struct {
	RequiredSources []string `json:"required_sources" yaml:"required_sources"`

	// Strategy is one of merge, array, first, last.
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// TimeoutTicks bounds how long a partial join is held. Zero disables
	// the deadline.
	TimeoutTicks sim.Tick `json:"timeout_ticks,omitempty" yaml:"timeout_ticks,omitempty"`
}

// MultiplexerConfig configures a multiplexer node. Routing conditions live
// on the outgoing edges; the payload only controls the unmatched-token
// behavior.
type MultiplexerConfig struct {
	// DropUnmatched suppresses the no_match activity when a token matches
	// no edge.
	DropUnmatched bool `json:"drop_unmatched,omitempty" yaml:"drop_unmatched,omitempty"`
}

// SinkConfig configures a sink node. Fields selects what the sink records
// from each consumed token: "id", "value", "correlation_ids", "lineage", or
// "metadata.<key>". An empty list records the value.
type SinkConfig struct {
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

package sim

// EventKind tags the kind of an event. The vocabulary is closed; scenario
// validation rejects configurations that could reference anything else.
type EventKind string

// The event kinds understood by the engine and the node processors.
const (
	EventSimulationStart    EventKind = "simulation_start"
	EventDataEmit           EventKind = "data_emit"
	EventTokenArrival       EventKind = "token_arrival"
	EventProcessComplete    EventKind = "process_complete"
	EventAggregationTrigger EventKind = "aggregation_trigger"
	EventQueueDrain         EventKind = "queue_drain"
	EventJoinTimeout        EventKind = "join_timeout"
	EventExternalInput      EventKind = "external_input"
)

// An Event is something going to happen at a point in simulated time. Events
// are immutable once enqueued.
type Event struct {
	ID         string         `json:"id"`
	Time       Tick           `json:"time"`
	Kind       EventKind      `json:"kind"`
	SourceNode string         `json:"source_node,omitempty"`
	TargetNode string         `json:"target_node"`
	CausedBy   string         `json:"caused_by,omitempty"`
	Token      *Token         `json:"token,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

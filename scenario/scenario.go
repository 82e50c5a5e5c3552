package scenario

import (
	"fmt"
	"sort"
	"strings"
)

// A ValidationError reports every violation found in a scenario
// configuration, not just the first one.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scenario: %s", strings.Join(e.Violations, "; "))
}

// A Scenario is the validated, immutable graph a simulation runs on. A
// reload builds a fresh Scenario from scratch; nothing is ever patched in
// place.
type Scenario struct {
	name  string
	nodes map[string]*NodeConfig
	order []string

	connections map[connKey]*EdgeConfig
	outgoing    map[string][]*EdgeConfig
	incoming    map[string]int

	warnings []string
}

type connKey struct {
	source string
	target string
}

// Stats summarizes a scenario for callers that render or sanity-check it.
type Stats struct {
	NodeCount   int              `json:"node_count"`
	EdgeCount   int              `json:"edge_count"`
	NodesByType map[NodeType]int `json:"nodes_by_type"`

	// StartNodes are sources with no incoming edge; EndNodes are sinks
	// with no outgoing edge.
	StartNodes []string `json:"start_nodes"`
	EndNodes   []string `json:"end_nodes"`
}

// Build validates the configuration and constructs a Scenario. All
// violations are collected into a single ValidationError. Cycles are
// permitted (joiner and queue feedback loops are valid designs) and only
// produce warnings.
func Build(cfg *Config) (*Scenario, error) {
	s := &Scenario{
		name:        cfg.Name,
		nodes:       map[string]*NodeConfig{},
		connections: map[connKey]*EdgeConfig{},
		outgoing:    map[string][]*EdgeConfig{},
		incoming:    map[string]int{},
	}

	var violations []string

	for _, n := range cfg.Nodes {
		if _, dup := s.nodes[n.ID]; dup {
			violations = append(violations,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}

		s.nodes[n.ID] = n
		s.order = append(s.order, n.ID)

		violations = append(violations, validateNode(n)...)
	}

	violations = append(violations, s.mergeEdges(cfg)...)

	for _, id := range s.order {
		violations = append(violations, s.validateReferences(s.nodes[id])...)
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	s.detectCycles()

	return s, nil
}

// mergeEdges reconciles the explicit edge list and the node-embedded
// outputs into one connection map. The dedup key is (source, target); the
// first declaration wins.
func (s *Scenario) mergeEdges(cfg *Config) []string {
	var violations []string

	edgeIDs := map[string]bool{}

	add := func(e *EdgeConfig) {
		key := connKey{source: e.Source, target: e.Target}
		if _, dup := s.connections[key]; dup {
			return
		}

		s.connections[key] = e
		s.outgoing[e.Source] = append(s.outgoing[e.Source], e)
		s.incoming[e.Target]++
	}

	check := func(e *EdgeConfig, where string) bool {
		ok := true
		if _, known := s.nodes[e.Source]; !known {
			violations = append(violations, fmt.Sprintf(
				"%s %q references unknown source node %q", where, e.ID, e.Source))
			ok = false
		}
		if _, known := s.nodes[e.Target]; !known {
			violations = append(violations, fmt.Sprintf(
				"%s %q references unknown target node %q", where, e.ID, e.Target))
			ok = false
		}
		if e.Condition != nil {
			if err := e.Condition.validate(); err != nil {
				violations = append(violations, fmt.Sprintf(
					"%s %q: %s", where, e.ID, err))
				ok = false
			}
		}
		return ok
	}

	for _, e := range cfg.Edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				violations = append(violations,
					fmt.Sprintf("duplicate edge id %q", e.ID))
				continue
			}
			edgeIDs[e.ID] = true
		}

		if check(e, "edge") {
			add(e)
		}
	}

	for _, id := range s.order {
		n := s.nodes[id]
		for i, out := range n.Outputs {
			e := &EdgeConfig{
				ID:         out.ID,
				Source:     n.ID,
				Target:     out.Target,
				SourcePort: out.SourcePort,
				TargetPort: out.TargetPort,
				Condition:  out.Condition,
			}
			if e.ID == "" {
				e.ID = fmt.Sprintf("%s-out-%d", n.ID, i)
			}

			if check(e, "output") {
				add(e)
			}
		}
	}

	return violations
}

func validateNode(n *NodeConfig) []string {
	var violations []string

	bad := func(format string, args ...any) {
		violations = append(violations,
			fmt.Sprintf("node %q: ", n.ID)+fmt.Sprintf(format, args...))
	}

	switch n.Type {
	case NodeDataSource:
		if n.DataSource == nil {
			bad("missing data_source configuration")
		} else if n.DataSource.Rate <= 0 {
			bad("data_source rate must be positive")
		}
	case NodeQueue:
		violations = append(violations, validateQueue(n)...)
	case NodeProcess:
		violations = append(violations, validateProcess(n)...)
	case NodeMultiplexer, NodeSink:
		// Payloads are optional for these.
	case NodeJoiner:
		if n.Joiner == nil {
			bad("missing joiner configuration")
		} else {
			if len(n.Joiner.RequiredSources) == 0 {
				bad("joiner requires at least one required source")
			}
			switch n.Joiner.Strategy {
			case "", "merge", "array", "first", "last":
			default:
				bad("unknown joiner strategy %q", n.Joiner.Strategy)
			}
		}
	default:
		bad("unknown node type %q", n.Type)
	}

	return violations
}

func validateQueue(n *NodeConfig) []string {
	var violations []string

	bad := func(format string, args ...any) {
		violations = append(violations,
			fmt.Sprintf("node %q: ", n.ID)+fmt.Sprintf(format, args...))
	}

	q := n.Queue
	if q == nil {
		bad("missing queue configuration")
		return violations
	}

	switch q.Mode {
	case QueueModeBuffer:
		switch q.Strategy {
		case "", "fifo", "lifo", "priority", "round_robin":
		default:
			bad("unknown queue strategy %q", q.Strategy)
		}
		switch q.OverflowAction {
		case "", "reject", "drop_oldest", "drop_lowest_priority":
		default:
			bad("unknown overflow action %q", q.OverflowAction)
		}
	case QueueModeAggregate:
		switch q.Method {
		case "sum", "average", "count", "min", "max":
		default:
			bad("unknown aggregation method %q", q.Method)
		}
		if q.CountThreshold <= 0 && q.WindowTicks <= 0 {
			bad("aggregation requires a count threshold or a time window")
		}
	case QueueModeBatch:
		if q.GroupBy == "" {
			bad("batching requires a group_by field")
		}
		if q.BatchSize <= 0 && q.MaxAgeTicks <= 0 {
			bad("batching requires a batch size or a max age")
		}
	default:
		bad("unknown queue mode %q", q.Mode)
	}

	return violations
}

func validateProcess(n *NodeConfig) []string {
	var violations []string

	bad := func(format string, args ...any) {
		violations = append(violations,
			fmt.Sprintf("node %q: ", n.ID)+fmt.Sprintf(format, args...))
	}

	p := n.Process
	if p == nil {
		bad("missing process configuration")
		return violations
	}

	if len(p.States) == 0 {
		bad("process requires at least one state")
		return violations
	}

	names := map[string]bool{}
	for _, st := range p.States {
		if names[st.Name] {
			bad("duplicate state %q", st.Name)
		}
		names[st.Name] = true
	}

	if p.Initial != "" && !names[p.Initial] {
		bad("initial state %q is not declared", p.Initial)
	}

	for _, tr := range p.Transitions {
		if !names[tr.From] {
			bad("transition references undeclared state %q", tr.From)
		}
		if !names[tr.To] {
			bad("transition references undeclared state %q", tr.To)
		}
		if tr.Guard != nil {
			if err := tr.Guard.validate(); err != nil {
				bad("transition %s -> %s: %s", tr.From, tr.To, err)
			}
		}
	}

	return violations
}

// validateReferences checks the cross-node references a node declares.
func (s *Scenario) validateReferences(n *NodeConfig) []string {
	var violations []string

	if n.Type == NodeJoiner && n.Joiner != nil {
		for _, src := range n.Joiner.RequiredSources {
			if _, known := s.nodes[src]; !known {
				violations = append(violations, fmt.Sprintf(
					"node %q: required source %q is not a node", n.ID, src))
			}
		}
	}

	return violations
}

// detectCycles runs a depth-first traversal and records a warning for every
// back edge found.
func (s *Scenario) detectCycles() {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := map[string]int{}
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, e := range s.outgoing[id] {
			switch color[e.Target] {
			case white:
				visit(e.Target)
			case gray:
				s.warnings = append(s.warnings,
					"cycle detected: "+cyclePath(stack, e.Target))
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range s.order {
		if color[id] == white {
			visit(id)
		}
	}
}

func cyclePath(stack []string, target string) string {
	start := 0
	for i, id := range stack {
		if id == target {
			start = i
			break
		}
	}

	return strings.Join(append(stack[start:len(stack):len(stack)], target), " -> ")
}

// Name returns the scenario name.
func (s *Scenario) Name() string {
	return s.name
}

// Node returns the node with the given ID, or nil.
func (s *Scenario) Node(id string) *NodeConfig {
	return s.nodes[id]
}

// NodeIDs returns all node IDs in declaration order.
func (s *Scenario) NodeIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}

// Outgoing returns the deduplicated outgoing edges of a node in stable
// order (explicit edges first, then embedded outputs, each in declaration
// order).
func (s *Scenario) Outgoing(id string) []*EdgeConfig {
	return s.outgoing[id]
}

// Targets returns the target node IDs reachable from the given node.
func (s *Scenario) Targets(id string) []string {
	edges := s.outgoing[id]

	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Target)
	}

	return out
}

// NodesByType returns the nodes of the given type in declaration order.
func (s *Scenario) NodesByType(t NodeType) []*NodeConfig {
	var out []*NodeConfig
	for _, id := range s.order {
		if s.nodes[id].Type == t {
			out = append(out, s.nodes[id])
		}
	}

	return out
}

// ConnectionCount returns the number of deduplicated connections.
func (s *Scenario) ConnectionCount() int {
	return len(s.connections)
}

// Warnings returns the non-fatal findings from Build, such as cycles.
func (s *Scenario) Warnings() []string {
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)

	return out
}

// GetStats computes the node-type histogram and the start and end nodes.
func (s *Scenario) GetStats() Stats {
	st := Stats{
		NodeCount:   len(s.nodes),
		EdgeCount:   len(s.connections),
		NodesByType: map[NodeType]int{},
	}

	for _, id := range s.order {
		n := s.nodes[id]
		st.NodesByType[n.Type]++

		if s.incoming[id] == 0 {
			st.StartNodes = append(st.StartNodes, id)
		}
		if len(s.outgoing[id]) == 0 {
			st.EndNodes = append(st.EndNodes, id)
		}
	}

	sort.Strings(st.StartNodes)
	sort.Strings(st.EndNodes)

	return st
}

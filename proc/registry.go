package proc

import (
	"fmt"

	"github.com/flowlab/flowsim/scenario"
)

// A Registry holds one processor implementation per node type. The set is
// closed: all known processors register at construction, and the engine
// rejects unknown tags during scenario validation, not at dispatch time.
type Registry struct {
	procs map[scenario.NodeType]Processor
}

// NewRegistry returns a registry with all six node-type processors
// registered.
func NewRegistry() *Registry {
	r := &Registry{procs: map[scenario.NodeType]Processor{}}

	r.Register(DataSource{})
	r.Register(QueueNode{})
	r.Register(ProcessNode{})
	r.Register(Multiplexer{})
	r.Register(Joiner{})
	r.Register(Sink{})

	return r
}

// NewEmptyRegistry returns a registry with no processors registered, for
// callers that replace node behaviors wholesale.
func NewEmptyRegistry() *Registry {
	return &Registry{procs: map[scenario.NodeType]Processor{}}
}

// Register adds a processor. Registering two processors for one node type
// is a programming error.
func (r *Registry) Register(p Processor) {
	if _, dup := r.procs[p.NodeType()]; dup {
		panic(fmt.Sprintf("processor for %q already registered", p.NodeType()))
	}

	r.procs[p.NodeType()] = p
}

// Lookup returns the processor for a node type.
func (r *Registry) Lookup(t scenario.NodeType) (Processor, bool) {
	p, ok := r.procs[t]

	return p, ok
}

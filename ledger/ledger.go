// Package ledger provides the append-only audit log of node activities.
// Given an identical ordered event history, a fresh engine produces a
// ledger with an identical sequence of (node, action, value) tuples; that
// determinism contract is what replay and audit are built on.
package ledger

import (
	"sync"

	"github.com/flowlab/flowsim/sim"
)

// Default retention caps. The global log grows faster than any per-node
// slice, so the two caps are independent.
const (
	DefaultGlobalCap  = 50000
	DefaultPerNodeCap = 1000
)

// An Activity is what a processor reports; the ledger turns it into an
// Entry by assigning the next sequence number.
type Activity struct {
	Time           sim.Tick       `json:"time"`
	NodeID         string         `json:"node_id"`
	Action         string         `json:"action"`
	Value          any            `json:"value,omitempty"`
	CorrelationIDs []string       `json:"correlation_ids,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// An Entry is a committed activity. Entries are never mutated or removed
// except by bounded-retention trimming.
type Entry struct {
	Sequence uint64 `json:"sequence"`
	Activity
}

// A Ledger is the append-only activity log. The monotonic sequence counter
// is owned by the ledger itself; it is never read from ambient state.
type Ledger struct {
	mu sync.Mutex

	nextSeq uint64
	global  []Entry
	perNode map[string][]Entry

	globalCap  int
	perNodeCap int
}

// New creates a Ledger with the given retention caps. A cap of zero keeps
// everything.
func New(globalCap, perNodeCap int) *Ledger {
	return &Ledger{
		perNode:    map[string][]Entry{},
		globalCap:  globalCap,
		perNodeCap: perNodeCap,
	}
}

// NewWithDefaults creates a Ledger with the default retention caps.
func NewWithDefaults() *Ledger {
	return New(DefaultGlobalCap, DefaultPerNodeCap)
}

// Append commits an activity, assigning it the next sequence number. The
// oldest entries are dropped once a retention cap is exceeded.
func (l *Ledger) Append(a Activity) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	e := Entry{Sequence: l.nextSeq, Activity: a}

	l.global = append(l.global, e)
	if l.globalCap > 0 && len(l.global) > l.globalCap {
		l.global = l.global[len(l.global)-l.globalCap:]
	}

	node := append(l.perNode[a.NodeID], e)
	if l.perNodeCap > 0 && len(node) > l.perNodeCap {
		node = node[len(node)-l.perNodeCap:]
	}
	l.perNode[a.NodeID] = node

	return e
}

// Entries returns a copy of the retained global slice, oldest first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.global))
	copy(out, l.global)

	return out
}

// NodeEntries returns a copy of the retained slice for one node.
func (l *Ledger) NodeEntries(nodeID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := l.perNode[nodeID]

	out := make([]Entry, len(node))
	copy(out, node)

	return out
}

// Len returns the number of retained global entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.global)
}

// Seq returns the last assigned sequence number.
func (l *Ledger) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.nextSeq
}

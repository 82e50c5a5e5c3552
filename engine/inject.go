package engine

import (
	"fmt"

	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
)

// A PastTimestampError reports an injected event whose timestamp is
// strictly behind the engine's current simulated time. Injection rejects
// such events instead of clamping them forward: clamping would silently
// reorder history and break the replay contract.
type PastTimestampError struct {
	EventTime sim.Tick
	Now       sim.Tick
}

func (e *PastTimestampError) Error() string {
	return fmt.Sprintf(
		"event timestamp %d is behind the current simulated time %d",
		e.EventTime, e.Now)
}

// An ExternalEvent is the record the outside world hands to the engine. The
// adapter that receives real-world events must serialize its calls into
// Inject; the engine itself performs no I/O and never blocks on an external
// source mid-step.
type ExternalEvent struct {
	ID        string         `json:"id,omitempty"`
	Timestamp sim.Tick       `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Data      map[string]any `json:"data,omitempty"`

	// TargetNodeID addresses an arbitrary node.
	TargetNodeID string `json:"target_node_id,omitempty"`

	// TargetDataSourceID addresses a data_source node operating in relay
	// mode; it takes precedence over TargetNodeID.
	TargetDataSourceID string `json:"target_data_source_id,omitempty"`
}

// Inject enqueues an external event, respecting timestamp ordering. The
// event's data becomes a freshly minted token: data["value"] is the token
// value and data["correlation_id"], when present, threads the token into an
// existing correlation.
func (e *Engine) Inject(ext ExternalEvent) (*sim.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.lifecycle {
	case StateUninitialized, StateErrored:
		return nil, &StateError{Op: "inject", State: e.lifecycle}
	}

	if ext.Timestamp < e.now {
		return nil, &PastTimestampError{EventTime: ext.Timestamp, Now: e.now}
	}

	target, err := e.resolveTarget(ext)
	if err != nil {
		return nil, err
	}

	id := ext.ID
	if id == "" {
		id = e.ids.Generate()
	}

	evt := &sim.Event{
		ID:         id,
		Time:       ext.Timestamp,
		Kind:       sim.EventExternalInput,
		SourceNode: ext.Source,
		TargetNode: target,
		Token:      e.buildExternalToken(ext, target),
		Data:       ext.Data,
	}

	e.queue.Push(evt)

	if e.NumHooks() > 0 {
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    sim.HookPosEventScheduled,
			Item:   evt,
		})
	}

	return evt, nil
}

func (e *Engine) resolveTarget(ext ExternalEvent) (string, error) {
	if ext.TargetDataSourceID != "" {
		node := e.scn.Node(ext.TargetDataSourceID)
		if node == nil {
			return "", fmt.Errorf(
				"target data source %q is not a node", ext.TargetDataSourceID)
		}
		if node.Type != scenario.NodeDataSource {
			return "", fmt.Errorf(
				"target node %q is a %s, not a data source",
				ext.TargetDataSourceID, node.Type)
		}

		return ext.TargetDataSourceID, nil
	}

	if ext.TargetNodeID == "" {
		return "", fmt.Errorf("external event %q names no target node", ext.ID)
	}
	if e.scn.Node(ext.TargetNodeID) == nil {
		return "", fmt.Errorf("target node %q is not a node", ext.TargetNodeID)
	}

	return ext.TargetNodeID, nil
}

func (e *Engine) buildExternalToken(ext ExternalEvent, target string) *sim.Token {
	var value any
	if ext.Data != nil {
		value = ext.Data["value"]
	}

	corr, _ := ext.Data["correlation_id"].(string)
	if corr == "" {
		corr = "ext-" + e.ids.Generate()
	}

	origin := ext.Source
	if origin == "" {
		origin = target
	}

	return sim.NewToken(e.ids.Generate(), corr, value, sim.LineageStep{
		NodeID:    origin,
		Time:      ext.Timestamp,
		Operation: "inject",
	})
}

// AddEvent enqueues a fully formed event, applying the same past-timestamp
// policy as Inject. Replay tooling uses it to feed a recorded history back
// into a fresh engine.
func (e *Engine) AddEvent(evt *sim.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.lifecycle {
	case StateUninitialized, StateErrored:
		return &StateError{Op: "add event", State: e.lifecycle}
	}

	if evt.Time < e.now {
		return &PastTimestampError{EventTime: evt.Time, Now: e.now}
	}

	if evt.ID == "" {
		evt.ID = e.ids.Generate()
	}

	e.queue.Push(evt)

	return nil
}

// Package simulation bundles the engine with its supporting services, the
// data recorder and the monitoring server, so that callers get a fully wired
// simulation from a single builder.
package simulation

import (
	"github.com/flowlab/flowsim/datarecording"
	"github.com/flowlab/flowsim/engine"
	"github.com/flowlab/flowsim/monitoring"
	"github.com/flowlab/flowsim/scenario"
)

// A Simulation owns one engine together with the services wired around it.
type Simulation struct {
	id string

	engine       *engine.Engine
	dataRecorder datarecording.DataRecorder
	exporter     *datarecording.Exporter
	monitor      *monitoring.Monitor
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Engine returns the engine driving the simulation.
func (s *Simulation) Engine() *engine.Engine {
	return s.engine
}

// DataRecorder returns the data recorder used in the simulation.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitoring server, or nil when monitoring is disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Initialize loads the scenario into the engine.
func (s *Simulation) Initialize(cfg *scenario.Config) error {
	return s.engine.Initialize(cfg)
}

// Run drives the engine until the queue drains or maxSteps is reached.
func (s *Simulation) Run(maxSteps int) (int, error) {
	return s.engine.Run(maxSteps)
}

// Terminate exports the run's ledger and event history to the data recorder
// and flushes it to disk.
func (s *Simulation) Terminate() {
	if l := s.engine.Ledger(); l != nil {
		s.exporter.ExportLedger(l.Entries())
	}
	if q := s.engine.Queue(); q != nil {
		s.exporter.ExportHistory(q.History())
	}

	s.exporter.Flush()
}

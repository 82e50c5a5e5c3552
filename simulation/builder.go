package simulation

import (
	"github.com/rs/xid"

	"github.com/flowlab/flowsim/datarecording"
	"github.com/flowlab/flowsim/engine"
	"github.com/flowlab/flowsim/monitoring"
)

// Builder can be used to build a simulation.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	browserOn      bool
	outputFileName string
	engineOpts     []engine.Option
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn: true,
	}
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitoring page in a browser once the server is up.
func (b Builder) WithBrowser() Builder {
	b.browserOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithEngineOptions passes options through to the engine.
func (b Builder) WithEngineOptions(opts ...engine.Option) Builder {
	b.engineOpts = append(b.engineOpts, opts...)
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
	if !b.monitorOn && b.browserOn {
		panic("browser cannot be opened when monitoring is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id: xid.New().String(),
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "flowsim_" + s.id
	}
	s.dataRecorder = datarecording.New(outputPath)
	s.exporter = datarecording.NewExporter(s.dataRecorder)

	s.engine = engine.New(nil, b.engineOpts...)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.browserOn {
			s.monitor.WithBrowser()
		}
		s.monitor.RegisterEngine(s.engine)

		if err := s.monitor.StartServer(); err != nil {
			panic(err)
		}
	}

	return s
}

package cmd

import (
	stdlog "log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/flowlab/flowsim/scenario"
	"github.com/flowlab/flowsim/sim"
	"github.com/flowlab/flowsim/simulation"
)

var runFlags = struct {
	scenarioPath string
	maxSteps     int
	monitorPort  int
	noMonitor    bool
	browser      bool
	output       string
	logEvents    bool
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario to completion.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := scenario.LoadFile(runFlags.scenarioPath)
		if err != nil {
			return err
		}

		b := simulation.MakeBuilder()
		if runFlags.noMonitor {
			b = b.WithoutMonitoring()
		} else {
			if runFlags.monitorPort > 0 {
				b = b.WithMonitorPort(runFlags.monitorPort)
			}
			if runFlags.browser {
				b = b.WithBrowser()
			}
		}
		if runFlags.output != "" {
			b = b.WithOutputFileName(runFlags.output)
		}

		s := b.Build()

		if runFlags.logEvents {
			s.Engine().AcceptHook(sim.NewEventLogger(
				stdlog.New(os.Stderr, "", 0)))
		}

		if err := s.Initialize(cfg); err != nil {
			return err
		}

		steps, err := s.Run(runFlags.maxSteps)
		if err != nil {
			return err
		}

		s.Terminate()

		log.WithField("steps", steps).
			WithField("state", s.Engine().State()).
			WithField("now", s.Engine().Now()).
			Info("simulation finished")

		atexit.Exit(0)

		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.scenarioPath,
		"scenario", "s", "", "path to the scenario file (json or yaml)")
	runCmd.Flags().IntVar(&runFlags.maxSteps,
		"max-steps", 0, "stop after this many events (0 means unbounded)")
	runCmd.Flags().IntVar(&runFlags.monitorPort,
		"monitor-port", 0, "port for the monitoring server (0 picks one)")
	runCmd.Flags().BoolVar(&runFlags.noMonitor,
		"no-monitor", false, "disable the monitoring server")
	runCmd.Flags().BoolVar(&runFlags.browser,
		"browser", false, "open the monitoring page in a browser")
	runCmd.Flags().StringVarP(&runFlags.output,
		"output", "o", "", "base name of the recorded sqlite3 database")
	runCmd.Flags().BoolVar(&runFlags.logEvents,
		"log-events", false, "print every consumed event to stderr")

	_ = runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
}

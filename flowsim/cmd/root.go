// Package cmd provides the command-line interface for flowsim.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flowsim",
	Short: "Flowsim runs event-driven workflow scenarios.",
	Long: `Flowsim loads a workflow scenario from a JSON or YAML file and ` +
		`drives it through a deterministic discrete-event simulation, ` +
		`recording every node activity along the way.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		_ = godotenv.Load()

		if lvl, err := logrus.ParseLevel(
			os.Getenv("FLOWSIM_LOG_LEVEL")); err == nil {
			log.SetLevel(lvl)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowlab/flowsim/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario-file>",
	Short: "Validate a scenario file without running it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := scenario.LoadFile(args[0])
		if err != nil {
			return err
		}

		scn, err := scenario.Build(cfg)

		var vErr *scenario.ValidationError
		if errors.As(err, &vErr) {
			for _, v := range vErr.Violations {
				fmt.Fprintln(cmd.ErrOrStderr(), "violation:", v)
			}
			return fmt.Errorf("%d violation(s) found", len(vErr.Violations))
		}
		if err != nil {
			return err
		}

		for _, w := range scn.Warnings() {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
		}

		stats := scn.GetStats()
		fmt.Fprintf(cmd.OutOrStdout(),
			"scenario %q is valid: %d node(s), %d connection(s)\n",
			scn.Name(), stats.NodeCount, stats.EdgeCount)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

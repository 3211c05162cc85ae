package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmoxy/moxy/pkg/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate <rules.json>",
	Short: "Check a rule document without serving",
	Long: `Parse a rule document and report errors and warnings. Exits non-zero
when the document cannot be loaded at all; malformed patterns inside an
otherwise valid document are reported as warnings, matching the serve
behavior of disabling just the affected handlers.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := rules.Load(args[0])
		if err != nil {
			return err
		}
		for _, warning := range rs.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", warning)
		}

		requests := countHandlers(&rs.Request)
		responses := countHandlers(&rs.Response)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d request handlers, %d response handlers, %d warnings)\n",
			args[0], requests, responses, len(rs.Warnings))
		return nil
	},
}

func countHandlers(ph *rules.Phase) int {
	n := len(ph.Exact)
	n += len(ph.Patterns)
	if ph.Base != nil {
		n++
	}
	return n
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

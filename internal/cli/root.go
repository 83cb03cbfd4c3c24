// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caregap",
		Short: "caregap - care-gap spreadsheet import and reconciliation",
		Long: `caregap imports care-gap exports from external healthcare systems,
reconciles them with stored patient measures and commits the result atomically.
Every import is previewed first; nothing is written until the preview is executed.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewImportCmd(), newSystemsCmd(), newServeCmd())

	return rootCmd
}

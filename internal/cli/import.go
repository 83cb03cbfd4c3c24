package cli

import (
	"github.com/spf13/cobra"
)

type ImportOptions struct {
	SystemID string
	File     string
	Mode     string
	Yes      bool
	Force    bool
	Verbose  bool
}

func NewImportCmd() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Preview or run a spreadsheet import",
	}

	cmd.PersistentFlags().StringVarP(&opts.SystemID, "system", "s", "", "Source system id (see 'caregap systems')")
	cmd.PersistentFlags().StringVarP(&opts.File, "file", "f", "", "Path to the CSV export")
	cmd.PersistentFlags().StringVarP(&opts.Mode, "mode", "m", "merge", "Import mode: merge or replace")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "List every change, not just the summary")
	cmd.MarkPersistentFlagRequired("system")
	cmd.MarkPersistentFlagRequired("file")

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Compute and print the diff without writing anything",
		RunE: func(c *cobra.Command, args []string) error {
			return runPreview(c, opts)
		},
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Compute the diff and commit it in one transaction",
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c, opts)
		},
	}
	run.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	run.Flags().BoolVar(&opts.Force, "force", false, "Execute even when validation reports errors")

	cmd.AddCommand(preview, run)
	return cmd
}

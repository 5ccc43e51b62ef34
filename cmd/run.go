package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var printJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single pass over every configured document",
		Long: `Processes every configured document once, overwrites the output file and
posts notifications. Per-document failures are reported but do not fail the
command; an unwritable output file does.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if !printJSON {
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the run report as JSON")
	return cmd
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/havenops/ric/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case short:
				fmt.Fprintln(cmd.OutOrStdout(), version.Short())
			case jsonOutput:
				data, err := json.MarshalIndent(version.GetInfo(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			default:
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	var extended bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s %s\n", appName, versionInfo.Version); err != nil {
				return err
			}
			if !extended {
				return nil
			}
			_, err := fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s\n",
				versionInfo.Commit, versionInfo.BuildDate, runtime.Version())
			return err
		},
	}
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	return versionCmd
}

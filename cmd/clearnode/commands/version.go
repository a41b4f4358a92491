package commands

import (
	"fmt"

	"github.com/linecrypto/clearnode/src/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd ...
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}

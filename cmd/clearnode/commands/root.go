package commands

import (
	"github.com/linecrypto/clearnode/src/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _config = config.NewDefaultConfig()

// NewRootCmd builds the clearnode command tree with fresh configuration.
func NewRootCmd() *cobra.Command {
	_config = config.NewDefaultConfig()
	viper.Reset()

	cmd := &cobra.Command{
		Use:               "clearnode",
		Short:             "ClearNode session client",
		TraverseChildren:  true,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	AddGlobalFlags(cmd)

	cmd.AddCommand(
		NewRunCmd(),
		NewKeygenCmd(),
		NewChannelsCmd(),
		NewBalancesCmd(),
		NewTransferCmd(),
		NewSessionCmd(),
		NewLogoutCmd(),
		NewVersionCmd(),
	)

	return cmd
}

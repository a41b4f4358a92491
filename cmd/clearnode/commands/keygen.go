package commands

import (
	"fmt"

	"github.com/linecrypto/clearnode/src/clearnode"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/spf13/cobra"
)

// NewKeygenCmd produces a KeygenCmd which creates the wallet key in the data
// directory.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create a wallet key",
		RunE:  keygen,
	}
}

func keygen(cmd *cobra.Command, args []string) error {
	key, err := clearnode.Keygen(_config.DataDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Your private key has been saved to: %s\n", _config.Keyfile())
	fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\n", keys.KeyAddress(key))

	return nil
}

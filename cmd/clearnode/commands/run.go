package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/linecrypto/clearnode/src/clearnode"
	"github.com/spf13/cobra"
)

// NewRunCmd returns the command that keeps an authenticated session open and
// serves its state over HTTP.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client",
		RunE:  runClearNode,
	}
	AddRunFlags(cmd)
	return cmd
}

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
}

func runClearNode(cmd *cobra.Command, args []string) error {
	engine := clearnode.NewClearNode(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

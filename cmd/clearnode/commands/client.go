package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/linecrypto/clearnode/src/clearnode"
	"github.com/linecrypto/clearnode/src/client"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/spf13/cobra"
)

// NewChannelsCmd ...
func NewChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the channels of the authenticated participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, engine *clearnode.ClearNode) error {
				channels, err := engine.Client.GetChannels(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, channels)
			})
		},
	}
}

// NewBalancesCmd ...
func NewBalancesCmd() *cobra.Command {
	var participant string

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show ledger balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, engine *clearnode.ClearNode) error {
				balances, err := engine.Client.GetLedgerBalances(ctx, participant)
				if err != nil {
					return err
				}
				return printJSON(cmd, balances)
			})
		},
	}

	cmd.Flags().StringVar(&participant, "participant", "", "Participant address, defaults to our own")

	return cmd
}

// NewTransferCmd ...
func NewTransferCmd() *cobra.Command {
	var allocations []string

	cmd := &cobra.Command{
		Use:   "transfer <destination>",
		Short: "Transfer ledger funds, e.g. --allocation usdc:10",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allocs, err := parseTransferAllocations(allocations)
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, engine *clearnode.ClearNode) error {
				res, err := engine.Client.Transfer(ctx, args[0], allocs)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	cmd.Flags().StringArrayVar(&allocations, "allocation", nil, "asset:amount, repeatable")

	return cmd
}

// NewLogoutCmd ...
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session key and token",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Shutdown()

			engine.Client.Logout()

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newEngine() (*clearnode.ClearNode, error) {
	_config.NoService = true

	engine := clearnode.NewClearNode(_config)
	if err := engine.Init(); err != nil {
		return nil, err
	}
	return engine, nil
}

// withClient authenticates a fresh engine, runs f and shuts the engine down.
func withClient(f func(ctx context.Context, engine *clearnode.ClearNode) error) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actx, cancel := context.WithTimeout(ctx, _config.DialTimeout+2*_config.RequestTimeout)
	defer cancel()

	if err := engine.Authenticate(actx); err != nil {
		return fmt.Errorf("authentication: %v", err)
	}

	return f(ctx, engine)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// parseAllocations reads participant:asset:amount triples.
func parseAllocations(specs []string) ([]rpc.Allocation, error) {
	allocs := make([]rpc.Allocation, 0, len(specs))
	for _, s := range specs {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("allocation %q should be participant:asset:amount", s)
		}
		allocs = append(allocs, rpc.Allocation{
			Participant: parts[0],
			Asset:       strings.ToLower(parts[1]),
			Amount:      parts[2],
		})
	}
	return allocs, nil
}

// parseTransferAllocations reads asset:amount pairs.
func parseTransferAllocations(specs []string) ([]rpc.TransferAllocation, error) {
	allocs := make([]rpc.TransferAllocation, 0, len(specs))
	for _, s := range specs {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("allocation %q should be asset:amount", s)
		}
		allocs = append(allocs, rpc.TransferAllocation{Asset: parts[0], Amount: parts[1]})
	}
	return allocs, nil
}

func sessionsByStatus(reg *client.SessionRegistry, status string) ([]*client.AppSession, error) {
	switch status {
	case "", "all":
		return reg.All(), nil
	case string(client.SessionOpen):
		return reg.Active(), nil
	case string(client.SessionClosed):
		closed := []*client.AppSession{}
		for _, s := range reg.All() {
			if s.Status == client.SessionClosed {
				closed = append(closed, s)
			}
		}
		return closed, nil
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
}

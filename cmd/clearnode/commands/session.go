package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/linecrypto/clearnode/src/clearnode"
	"github.com/linecrypto/clearnode/src/client"
	"github.com/spf13/cobra"
)

// sessionFlags are the inputs of session create.
type sessionFlags struct {
	template     string
	participants []string
	weights      []string
	quorum       uint64
	challenge    uint64
	allocations  []string
	amount       string
	asset        string
	server       string
}

// NewSessionCmd groups the application session commands.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage application sessions",
	}

	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionCloseCmd(),
		newSessionListCmd(),
	)

	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an application session",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := sf.request()
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			return withClient(func(ctx context.Context, engine *clearnode.ClearNode) error {
				s, err := engine.Client.CreateAppSession(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, s)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.template, "template", "", "two-player, game or equal; empty for a custom session")
	f.StringSliceVar(&sf.participants, "participant", nil, "Participant addresses")
	f.StringSliceVar(&sf.weights, "weight", nil, "Signature weights, one per participant")
	f.Uint64Var(&sf.quorum, "quorum", 0, "Weight required to act on the session")
	f.Uint64Var(&sf.challenge, "challenge", 0, "Challenge period")
	f.StringArrayVar(&sf.allocations, "allocation", nil, "participant:asset:amount, repeatable")
	f.StringVar(&sf.amount, "amount", "0", "Stake of two-player sessions, total of equal sessions")
	f.StringVar(&sf.asset, "asset", client.DefaultAsset, "Asset of template sessions")
	f.StringVar(&sf.server, "server", "", "Server address of game sessions")

	return cmd
}

func (sf *sessionFlags) request() (client.AppSessionRequest, error) {
	switch sf.template {
	case "":
	case "two-player":
		if len(sf.participants) != 2 {
			return client.AppSessionRequest{}, fmt.Errorf("two-player sessions take exactly 2 participants")
		}
		return client.TwoPlayerSession(sf.participants[0], sf.participants[1], sf.amount, sf.asset), nil
	case "game":
		if sf.server == "" {
			return client.AppSessionRequest{}, fmt.Errorf("game sessions need --server")
		}
		return client.GameSession(sf.participants, sf.server), nil
	case "equal":
		return client.EqualPartnershipSession(sf.participants, sf.amount, sf.asset)
	default:
		return client.AppSessionRequest{}, fmt.Errorf("unknown template %q", sf.template)
	}

	weights := make([]uint64, 0, len(sf.weights))
	for _, w := range sf.weights {
		n, err := strconv.ParseUint(w, 10, 64)
		if err != nil {
			return client.AppSessionRequest{}, fmt.Errorf("bad weight %q", w)
		}
		weights = append(weights, n)
	}

	allocs, err := parseAllocations(sf.allocations)
	if err != nil {
		return client.AppSessionRequest{}, err
	}

	return client.AppSessionRequest{
		Participants: sf.participants,
		Weights:      weights,
		Quorum:       sf.quorum,
		Challenge:    sf.challenge,
		Allocations:  allocs,
	}, nil
}

func newSessionCloseCmd() *cobra.Command {
	var allocations []string

	cmd := &cobra.Command{
		Use:   "close <app_session_id>",
		Short: "Close an application session",
		Long:  "Close an application session. Without --allocation the allocations it was created with are used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			final, err := parseAllocations(allocations)
			if err != nil {
				return err
			}
			if len(final) == 0 {
				final = nil
			}
			return withClient(func(ctx context.Context, engine *clearnode.ClearNode) error {
				s, err := engine.Client.CloseAppSession(ctx, args[0], final)
				if err != nil {
					return err
				}
				return printJSON(cmd, s)
			})
		},
	}

	cmd.Flags().StringArrayVar(&allocations, "allocation", nil, "participant:asset:amount, repeatable")

	return cmd
}

func newSessionListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the application sessions recorded locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Shutdown()

			sessions, err := sessionsByStatus(engine.Sessions, status)
			if err != nil {
				return err
			}
			return printJSON(cmd, sessions)
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "all, open or closed")

	return cmd
}

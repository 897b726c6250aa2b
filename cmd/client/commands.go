package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phessophissy/POSVault/internal/client"
	"github.com/phessophissy/POSVault/internal/models"
)

// simple builds a leaf command calling fn with the parsed arguments.
func simple(opts *globalOptions, use, short string, args cobra.PositionalArgs,
	fn func(ctx context.Context, c *client.Client, args []string) (any, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			return opts.call(cmd, func(ctx context.Context, c *client.Client) (any, error) {
				return fn(ctx, c, a)
			})
		},
	}
}

func vaultCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "vault", Short: "Deposit, withdraw and manage the vault"}
	cmd.AddCommand(
		simple(opts, "state", "Show vault totals", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.VaultState(ctx)
			}),
		simple(opts, "account <principal>", "Show a principal's deposit, stats and pending reward", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return c.Account(ctx, models.Principal(args[0]))
			}),
		simple(opts, "deposit <amount>", "Lock base asset in the vault", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				amount, err := parseUint(args[0])
				if err != nil {
					return nil, err
				}
				return nil, c.Deposit(ctx, amount)
			}),
		simple(opts, "withdraw", "Close the deposit and collect rewards", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.Withdraw(ctx)
			}),
		simple(opts, "claim", "Claim pending rewards", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				reward, err := c.ClaimRewards(ctx)
				return map[string]uint64{"rewards": reward}, err
			}),
		simple(opts, "set-rate <bps>", "Set the reward rate in basis points per cycle", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				rate, err := parseUint(args[0])
				if err != nil {
					return nil, err
				}
				if rate > 1<<32-1 {
					return nil, fmt.Errorf("rate %d out of range", rate)
				}
				return nil, c.SetRewardRate(ctx, uint32(rate))
			}),
		simple(opts, "toggle-pause", "Pause or resume the vault", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				paused, err := c.TogglePause(ctx)
				return map[string]bool{"paused": paused}, err
			}),
		simple(opts, "emergency-withdraw", "Sweep all locked funds to the owner", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				amount, err := c.EmergencyWithdraw(ctx)
				return map[string]uint64{"amount": amount}, err
			}),
		adminsCommand(opts),
	)
	return cmd
}

func adminsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "admins", Short: "Manage vault admins"}
	cmd.AddCommand(
		simple(opts, "list", "List vault admins", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.Admins(ctx)
			}),
		simple(opts, "add <principal>", "Grant the admin role", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return nil, c.AddAdmin(ctx, models.Principal(args[0]))
			}),
		simple(opts, "remove <principal>", "Revoke the admin role", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return nil, c.RemoveAdmin(ctx, models.Principal(args[0]))
			}),
	)
	return cmd
}

func ledgerCommand(opts *globalOptions) *cobra.Command {
	var asset string
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect and move tokens"}
	cmd.PersistentFlags().StringVar(&asset, "asset", "base", "asset name (base or reward)")

	amountAndPrincipal := func(args []string) (models.Principal, uint64, error) {
		amount, err := parseUint(args[1])
		return models.Principal(args[0]), amount, err
	}
	cmd.AddCommand(
		simple(opts, "info", "Show supply, owner and minters", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.Ledger(ctx, asset)
			}),
		simple(opts, "balance <principal>", "Show a balance", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				bal, err := c.Balance(ctx, asset, models.Principal(args[0]))
				return map[string]uint64{"balance": bal}, err
			}),
		simple(opts, "transfer <recipient> <amount>", "Transfer tokens", cobra.ExactArgs(2),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				to, amount, err := amountAndPrincipal(args)
				if err != nil {
					return nil, err
				}
				return nil, c.Transfer(ctx, asset, to, amount)
			}),
		simple(opts, "mint <recipient> <amount>", "Mint tokens (minters only)", cobra.ExactArgs(2),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				to, amount, err := amountAndPrincipal(args)
				if err != nil {
					return nil, err
				}
				return nil, c.Mint(ctx, asset, to, amount)
			}),
		simple(opts, "burn <amount>", "Burn own tokens", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				amount, err := parseUint(args[0])
				if err != nil {
					return nil, err
				}
				return nil, c.Burn(ctx, asset, amount)
			}),
		simple(opts, "add-minter <principal>", "Grant the minter role", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return nil, c.AddMinter(ctx, asset, models.Principal(args[0]))
			}),
		simple(opts, "remove-minter <principal>", "Revoke the minter role", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return nil, c.RemoveMinter(ctx, asset, models.Principal(args[0]))
			}),
		simple(opts, "minting <on|off>", "Switch minting on or off", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				switch args[0] {
				case "on":
					return nil, c.SetMinting(ctx, asset, true)
				case "off":
					return nil, c.SetMinting(ctx, asset, false)
				default:
					return nil, fmt.Errorf("expected on or off, got %q", args[0])
				}
			}),
	)
	return cmd
}

func governanceCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "gov", Short: "Create, vote on and execute proposals"}

	var in client.ProposalInput
	var kind string
	propose := &cobra.Command{
		Use:   "propose <title>",
		Short: "Create a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			in.Title = args[0]
			in.Kind = models.ProposalKind(kind)
			return opts.call(c, func(ctx context.Context, api *client.Client) (any, error) {
				id, err := api.CreateProposal(ctx, in)
				return map[string]uint64{"id": id}, err
			})
		},
	}
	propose.Flags().StringVar(&in.Description, "description", "", "proposal description")
	propose.Flags().StringVar(&kind, "kind", string(models.KindGeneral), "general, reward-rate or pause")
	propose.Flags().Uint64Var(&in.Value, "value", 0, "new reward rate for reward-rate proposals")

	withID := func(args []string, fn func(id uint64) (any, error)) (any, error) {
		id, err := parseUint(args[0])
		if err != nil {
			return nil, err
		}
		return fn(id)
	}
	vote := func(use, short string, support bool) *cobra.Command {
		return simple(opts, use, short, cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return withID(args, func(id uint64) (any, error) { return nil, c.Vote(ctx, id, support) })
			})
	}

	cmd.AddCommand(
		propose,
		simple(opts, "params", "Show governance parameters", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				return c.GovernanceParams(ctx)
			}),
		simple(opts, "count", "Show the number of proposals", cobra.NoArgs,
			func(ctx context.Context, c *client.Client, _ []string) (any, error) {
				n, err := c.ProposalCount(ctx)
				return map[string]uint64{"count": n}, err
			}),
		simple(opts, "show <id>", "Show a proposal", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return withID(args, func(id uint64) (any, error) { return c.Proposal(ctx, id) })
			}),
		vote("vote-for <id>", "Vote for a proposal", true),
		vote("vote-against <id>", "Vote against a proposal", false),
		simple(opts, "vote <id> <voter>", "Show a recorded vote", cobra.ExactArgs(2),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return withID(args, func(id uint64) (any, error) {
					return c.VoteRecord(ctx, id, models.Principal(args[1]))
				})
			}),
		simple(opts, "execute <id>", "Execute a proposal after its deadline", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				return withID(args, func(id uint64) (any, error) {
					passed, err := c.ExecuteProposal(ctx, id)
					return map[string]bool{"passed": passed}, err
				})
			}),
		simple(opts, "active <principal>", "Show a principal's live proposal", cobra.ExactArgs(1),
			func(ctx context.Context, c *client.Client, args []string) (any, error) {
				id, ok, err := c.ActiveProposal(ctx, models.Principal(args[0]))
				return map[string]any{"active": ok, "id": id}, err
			}),
	)
	return cmd
}

func eventsCommand(opts *globalOptions) *cobra.Command {
	var (
		principal string
		after     uint64
		limit     int
		follow    bool
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List committed events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !follow {
				return opts.call(cmd, func(ctx context.Context, c *client.Client) (any, error) {
					return c.Events(ctx, models.Principal(principal), after, limit)
				})
			}
			c, err := opts.connect()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			_, err = c.Follow(ctx, models.Principal(principal), after, interval, func(ev models.Event) {
				_ = printJSON(cmd.OutOrStdout(), ev)
			})
			return err
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "only events of this caller")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this commit sequence")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval with --follow")
	return cmd
}

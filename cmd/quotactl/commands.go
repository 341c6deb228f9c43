// AngelaMos | 2026
// commands.go

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/admin"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/auth"
	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/lifecycle"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, d *deps) error {
				if err := withRetry(ctx, defaultRetry, d.db.Migrate); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write a new token signing key pair to the configured paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := auth.GenerateKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", cfg.JWT.PrivateKeyPath, "and", cfg.JWT.PublicKeyPath)
			return nil
		},
	}

	keys := &cobra.Command{Use: "keys", Short: "Token signing keys"}
	keys.AddCommand(generate)
	return keys
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	issue := &cobra.Command{
		Use:   "issue <account-id>",
		Short: "Mint an access token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(_ context.Context, d *deps) error {
				signer, err := d.signer()
				if err != nil {
					return err
				}
				token, err := signer.CreateAccessToken(args[0], ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: configured access token lifetime)")

	token := &cobra.Command{Use: "token", Short: "Access tokens"}
	token.AddCommand(issue)
	return token
}

func newTierCmd(opts *rootOptions) *cobra.Command {
	set := &cobra.Command{
		Use:   "set <account-id> <tier>",
		Short: "Change the tier of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.admin.ChangeTier(ctx, op, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	tier := &cobra.Command{Use: "tier", Short: "Tier assignment"}
	tier.AddCommand(set)
	return tier
}

func newQueriesCmd(opts *rootOptions) *cobra.Command {
	set := &cobra.Command{
		Use:   "set <account-id> <count>",
		Short: "Set the used query count of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseCount(args[1])
			if err != nil {
				return err
			}
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				return d.admin.SetQueryCount(ctx, op, args[0], value)
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset <account-id>",
		Short: "Reset the used query count of an account to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				return d.admin.ResetQueryCount(ctx, op, args[0])
			})
		},
	}

	queries := &cobra.Command{Use: "queries", Short: "Query counters"}
	queries.AddCommand(set, reset)
	return queries
}

func newLimitCmd(opts *rootOptions) *cobra.Command {
	set := &cobra.Command{
		Use:   "set <account-id> <limit>",
		Short: "Override the query limit of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := parseCount(args[1])
			if err != nil {
				return err
			}
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.admin.SetQueryLimit(ctx, op, args[0], limit)
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <account-id>",
		Short: "Drop a limit override and restore the tier limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.admin.ClearQueryLimit(ctx, op, args[0])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	limit := &cobra.Command{Use: "limit", Short: "Query limit overrides"}
	limit.AddCommand(set, clearCmd)
	return limit
}

func newAdminCmd(opts *rootOptions) *cobra.Command {
	grant := &cobra.Command{
		Use:   "grant <account-id>",
		Short: "Grant admin capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.admin.GrantAdmin(ctx, op, args[0])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <account-id>",
		Short: "Revoke admin capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.admin.RevokeAdmin(ctx, op, args[0])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	cmd := &cobra.Command{Use: "admin", Short: "Admin capability"}
	cmd.AddCommand(grant, revoke)
	return cmd
}

func newAccountCmd(opts *rootOptions) *cobra.Command {
	var req admin.ProvisionRequest

	provision := &cobra.Command{
		Use:   "provision <email> <tier>",
		Short: "Create an account on behalf of a customer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Email = args[0]
			req.Tier = args[1]
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				return d.admin.ProvisionAccount(ctx, op, req)
			})
		},
	}
	provision.Flags().StringVar(&req.Name, "name", "", "display name")
	provision.Flags().BoolVar(&req.Comped, "comped", false, "grant the tier without payment")

	show := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show an account with its entitlement and usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				return d.admin.GetAccount(ctx, op, args[0])
			})
		},
	}

	cmd := &cobra.Command{Use: "account", Short: "Accounts"}
	cmd.AddCommand(provision, show)
	return cmd
}

func newLifecycleCmd(opts *rootOptions) *cobra.Command {
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Report inactive and scheduled accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, d *deps) error {
				var reports []lifecycle.Report
				err := withRetry(ctx, defaultRetry, func(ctx context.Context) error {
					var err error
					reports, err = d.lifecycle.Sweep(ctx)
					return err
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, reports)
			})
		},
	}

	schedule := &cobra.Command{
		Use:   "schedule <account-id>",
		Short: "Schedule an inactive account for deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.lifecycle.ScheduleDeletion(ctx, op, args[0])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <account-id>",
		Short: "Cancel a scheduled deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				acct, err := d.lifecycle.CancelDeletion(ctx, op, args[0])
				if err != nil {
					return nil, err
				}
				return account.ToAccountResponse(acct), nil
			})
		},
	}

	execute := &cobra.Command{
		Use:   "execute <account-id>",
		Short: "Erase an account whose grace period has passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				if err := d.lifecycle.ExecuteDeletion(ctx, op, args[0]); err != nil {
					return nil, err
				}
				return map[string]string{"account_id": args[0], "status": "deleted"}, nil
			})
		},
	}

	cmd := &cobra.Command{Use: "lifecycle", Short: "Inactivity and deletion"}
	cmd.AddCommand(sweep, schedule, cancel, execute)
	return cmd
}

func newRequestsCmd(opts *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List user deletion requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, d *deps) error {
				reqs, err := d.lifecycle.ListDeletionRequests(ctx, lifecycle.RequestStatus(status), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, reqs)
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(lifecycle.RequestPending), "request status filter")
	list.Flags().IntVar(&limit, "limit", 50, "maximum requests to list")

	process := &cobra.Command{
		Use:   "process <request-id>",
		Short: "Execute a pending deletion request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.privileged(cmd, func(ctx context.Context, d *deps, op audit.Op) (any, error) {
				return d.lifecycle.ProcessDeletionRequest(ctx, op, args[0])
			})
		},
	}

	cmd := &cobra.Command{Use: "requests", Short: "User deletion requests"}
	cmd.AddCommand(list, process)
	return cmd
}

func newOutboxCmd(opts *rootOptions) *cobra.Command {
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Deliver one batch of due lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, d *deps) error {
				result, err := d.dispatcher.Flush(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	cmd := &cobra.Command{Use: "outbox", Short: "Lifecycle event outbox"}
	cmd.AddCommand(flush)
	return cmd
}

// privileged runs an audited operation with retries on storage timeouts and
// prints its result. Every attempt carries the same token.
func (o *rootOptions) privileged(
	cmd *cobra.Command,
	fn func(context.Context, *deps, audit.Op) (any, error),
) error {
	op, err := o.op()
	if err != nil {
		return err
	}

	return o.run(cmd, func(ctx context.Context, d *deps) error {
		var out any
		err := withRetry(ctx, defaultRetry, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, d, op)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	})
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", raw)
	}
	return n, nil
}

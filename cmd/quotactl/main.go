// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/legalquota/internal/audit"
)

type rootOptions struct {
	configPath string
	operator   string
	token      string
}

func main() {
	//nolint:errcheck // .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "quotactl",
		Short:         "Operate tiers, quotas and account lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.operator, "operator", os.Getenv("QUOTACTL_OPERATOR"),
		"account id of the admin performing the change")
	root.PersistentFlags().StringVar(&opts.token, "token", "",
		"idempotency token; retries with the same token apply once")

	root.AddCommand(
		newMigrateCmd(opts),
		newKeysCmd(opts),
		newTokenCmd(opts),
		newTierCmd(opts),
		newQueriesCmd(opts),
		newLimitCmd(opts),
		newAdminCmd(opts),
		newAccountCmd(opts),
		newLifecycleCmd(opts),
		newRequestsCmd(opts),
		newOutboxCmd(opts),
	)

	return root
}

// op builds the audit identity for a privileged command. A missing token is
// generated once per invocation so internal retries stay idempotent.
func (o *rootOptions) op() (audit.Op, error) {
	op := audit.Op{Actor: o.operator, Token: o.token}
	if err := op.Validate(); err != nil {
		return audit.Op{}, fmt.Errorf("--operator: %w", err)
	}
	op = op.Tokenized()
	o.token = op.Token
	return op, nil
}

// run opens the stores, runs fn and closes them again.
func (o *rootOptions) run(cmd *cobra.Command, fn func(context.Context, *deps) error) error {
	ctx := cmd.Context()

	d, err := openDeps(ctx, o.configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	return fn(ctx, d)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/torosent/checkoutrace/internal/config"
)

// exitThresholds is the process status when the run completed but at least
// one threshold failed.
const exitThresholds = 99

// errThresholdsFailed is returned by the run command after the report has
// been written and a threshold did not hold.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errThresholdsFailed) {
			return exitThresholds
		}
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "checkoutrace",
		Short:         "Race-condition load test for a checkout API",
		Long:          "checkoutrace fires concurrent checkouts at a single product and reports how the\nservice split them between orders, stock exhaustion and unexpected failures.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runLoadCommand,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	config.RegisterFlags(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the checkout scenarios (default)",
			Args:  cobra.NoArgs,
			RunE:  runLoadCommand,
		},
		&cobra.Command{
			Use:   "idempotency",
			Short: "Send identical checkouts back to back and print their statuses",
			Args:  cobra.NoArgs,
			RunE:  runIdempotencyCommand,
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE:  runConfigCommand,
		},
	)
	return root
}

// loadConfig resolves and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runLoadCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return runLoad(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func runIdempotencyCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return runIdempotency(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func runConfigCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

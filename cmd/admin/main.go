package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/bikeshare-payments/internal/app"
	"github.com/kevin07696/bikeshare-payments/internal/config"
	"github.com/kevin07696/bikeshare-payments/internal/domain"
	adminHandler "github.com/kevin07696/bikeshare-payments/internal/handlers/admin"
	"github.com/kevin07696/bikeshare-payments/pkg/observability"
	"github.com/kevin07696/bikeshare-payments/pkg/timeutil"
)

var Version = "dev"

// services is what the commands operate on; tests swap in mocks
type services struct {
	payouts adminHandler.PayoutService
	refunds adminHandler.RefundService
	close   func()
}

type cli struct {
	out     io.Writer
	now     func() time.Time
	open    func(ctx context.Context) (*services, error)
	timeout time.Duration
}

func main() {
	c := &cli{
		out:     os.Stdout,
		now:     timeutil.Now,
		open:    openServices,
		timeout: 15 * time.Minute,
	}
	if err := newRootCmd(c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payments-admin",
		Short:         "Operator tools for rental payouts and refunds",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(c.payoutsCmd())
	rootCmd.AddCommand(c.refundsCmd())
	return rootCmd
}

func openServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &services{
		payouts: deps.Payouts,
		refunds: deps.Refunds,
		close: func() {
			deps.Close()
			_ = logger.Sync()
		},
	}, nil
}

// with opens the services, runs fn under the command timeout and closes them
func (c *cli) with(cmd *cobra.Command, fn func(ctx context.Context, svc *services) (interface{}, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	svc, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer svc.close()

	result, err := fn(ctx, svc)
	if err != nil {
		return describe(err)
	}
	return c.print(result)
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe prefixes the error category so scripts can decide whether to re-run
func describe(err error) error {
	return fmt.Errorf("[%s] %w", domain.CategoryOf(err), err)
}

// recordRun counts CLI runs next to scheduler and admin API runs
func recordRun(result string) {
	observability.RecordPayoutRun("cli", result)
}

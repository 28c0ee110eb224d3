package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kevin07696/bikeshare-payments/internal/domain"
	"github.com/kevin07696/bikeshare-payments/internal/domain/ports"
	"github.com/kevin07696/bikeshare-payments/internal/services/payout"
	"github.com/kevin07696/bikeshare-payments/pkg/timeutil"
)

type periodFlags struct {
	from      string
	to        string
	scopeType string
	scopeID   string
}

func (f *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Period start (2006-01-02 or RFC3339, default: first day of previous month)")
	cmd.Flags().StringVar(&f.to, "to", "", "Period end, exclusive (default: first day of current month)")
	cmd.Flags().StringVar(&f.scopeType, "scope-type", "", "Limit to one scope: company or location")
	cmd.Flags().StringVar(&f.scopeID, "scope-id", "", "Scope identifier")
}

func (f *periodFlags) parse(now time.Time) (time.Time, time.Time, *domain.PayoutScope, error) {
	start, end := timeutil.PreviousMonth(now)
	var err error
	if f.from != "" || f.to != "" {
		if f.from == "" || f.to == "" {
			return start, end, nil, fmt.Errorf("--from and --to must be given together")
		}
		if start, err = timeutil.ParsePeriodBound(f.from); err != nil {
			return start, end, nil, fmt.Errorf("--from: %w", err)
		}
		if end, err = timeutil.ParsePeriodBound(f.to); err != nil {
			return start, end, nil, fmt.Errorf("--to: %w", err)
		}
		if !end.After(start) {
			return start, end, nil, fmt.Errorf("--to must be after --from")
		}
	}

	if f.scopeType == "" && f.scopeID == "" {
		return start, end, nil, nil
	}
	scope := domain.PayoutScope{Type: domain.ScopeType(strings.ToUpper(f.scopeType)), ID: f.scopeID}
	if err := scope.Validate(); err != nil {
		return start, end, nil, err
	}
	return start, end, &scope, nil
}

func (c *cli) payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Calculate, dispatch and inspect payouts",
	}
	cmd.AddCommand(c.payoutsRunCmd(), c.payoutsPreviewCmd(), c.payoutsRetryCmd(),
		c.payoutsCancelCmd(), c.payoutsListCmd(), c.payoutsStatusCmd())
	return cmd
}

func (c *cli) payoutsRunCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calculate and dispatch payouts for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, scope, err := flags.parse(c.now())
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				run := svc.payouts.RunPayoutPeriod
				if scope != nil {
					run = func(ctx context.Context, start, end time.Time) (*payout.RunReport, error) {
						return svc.payouts.RunScope(ctx, *scope, start, end)
					}
				}
				report, err := run(ctx, start, end)
				if err != nil {
					return nil, err
				}
				recordRun(report.Result())
				return map[string]interface{}{"result": report.Result(), "report": report}, nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) payoutsPreviewCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the payouts a run would create, without persisting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, scope, err := flags.parse(c.now())
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.payouts.Preview(ctx, scope, start, end)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) payoutsRetryCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "retry <payout-id>",
		Short: "Retry a FAILED payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.payouts.Retry(ctx, id, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Retry even when the last failure was permanent")
	return cmd
}

func (c *cli) payoutsCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <payout-id>",
		Short: "Cancel a PENDING or PROCESSING payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.payouts.Cancel(ctx, id, strings.TrimSpace(reason))
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the payout is cancelled (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) payoutsListCmd() *cobra.Command {
	var (
		status    string
		scopeType string
		scopeID   string
		limit     int32
		offset    int32
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payouts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ports.PayoutFilter{Limit: limit, Offset: offset}
			if status != "" {
				st, err := domain.ParsePayoutStatus(strings.ToUpper(status))
				if err != nil {
					return err
				}
				filter.Status = &st
			}
			if scopeType != "" || scopeID != "" {
				scope := domain.PayoutScope{Type: domain.ScopeType(strings.ToUpper(scopeType)), ID: scopeID}
				if err := scope.Validate(); err != nil {
					return err
				}
				filter.Scope = &scope
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.payouts.History(ctx, filter)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&scopeType, "scope-type", "", "Filter by scope type")
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "Filter by scope id")
	cmd.Flags().Int32VarP(&limit, "limit", "n", 50, "Maximum results")
	cmd.Flags().Int32Var(&offset, "offset", 0, "Results to skip")
	return cmd
}

func (c *cli) payoutsStatusCmd() *cobra.Command {
	var external bool
	cmd := &cobra.Command{
		Use:   "status <payout-id>",
		Short: "Show a payout with its items, or the payout API's view with --external",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				if external {
					return svc.payouts.ExternalStatus(ctx, id)
				}
				return svc.payouts.Get(ctx, id)
			})
		},
	}
	cmd.Flags().BoolVar(&external, "external", false, "Query the payout API")
	return cmd
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}

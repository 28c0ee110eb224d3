package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (c *cli) refundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refunds",
		Short: "Request and complete refunds",
	}
	cmd.AddCommand(c.refundsRequestCmd(), c.refundsCompleteCmd())
	return cmd
}

func (c *cli) refundsRequestCmd() *cobra.Command {
	var (
		amount string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "request <transaction-id>",
		Short: "Request a refund against a succeeded transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.refunds.Request(ctx, id, value, reason)
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Refund amount, e.g. 12.50")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason code")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) refundsCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <refund-id>",
		Short: "Mark a pending refund completed and update its transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.with(cmd, func(ctx context.Context, svc *services) (interface{}, error) {
				return svc.refunds.Complete(ctx, id)
			})
		},
	}
}

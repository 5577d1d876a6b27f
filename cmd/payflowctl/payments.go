package main

import (
	"context"
	"strings"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"github.com/spf13/cobra"
)

func paymentsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "payments",
		Aliases: []string{"payment"},
		Short:   "Inspect and refund payments",
	}
	cmd.AddCommand(paymentsShowCmd(opts), paymentsHistoryCmd(opts), paymentsCancelCmd(opts))
	return cmd
}

func paymentsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show PAYMENT_ID",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				p, err := svc.Payments.GetPayment(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func paymentsHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		status string
		method string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history USER_ID",
		Short: "List payments where the user is the business or the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				resp, err := svc.Payments.GetPaymentHistory(ctx, domain.HistoryRequest{
					UserID:     args[0],
					Status:     domain.Status(strings.ToUpper(strings.TrimSpace(status))),
					Method:     strings.TrimSpace(method),
					Pagination: pagination.Pagination{Page: page, Limit: limit},
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&method, "method", "", "Filter by payment method")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "Page size")
	return cmd
}

func paymentsCancelCmd(opts *globalOptions) *cobra.Command {
	var (
		reason string
		amount int64
	)
	cmd := &cobra.Command{
		Use:   "cancel PAYMENT_ID",
		Short: "Refund a completed payment in full or in part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := domain.CancelPaymentRequest{PaymentID: id, CancelReason: reason}
			if cmd.Flags().Changed("amount") {
				req.CancelAmount = &amount
			}
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				resp, err := svc.Payments.CancelPayment(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason (required)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Partial refund amount; omit for the full remaining amount")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

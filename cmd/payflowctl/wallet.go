package main

import (
	"context"
	"strings"

	"github.com/smallbiznis/payflow/internal/wallet/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"github.com/spf13/cobra"
)

func walletCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect user wallets and their ledger",
	}
	cmd.AddCommand(walletShowCmd(opts), walletTransactionsCmd(opts))
	return cmd
}

func walletShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show USER_ID",
		Short: "Show wallet balances for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				w, err := svc.Wallets.GetWallet(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), w)
			})
		},
	}
}

func walletTransactionsCmd(opts *globalOptions) *cobra.Command {
	var (
		txType string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "transactions USER_ID",
		Aliases: []string{"txs"},
		Short:   "List ledger entries for a user, newest first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				resp, err := svc.Wallets.ListTransactions(ctx, domain.ListTransactionsRequest{
					UserID:     args[0],
					Type:       domain.TransactionType(strings.ToUpper(strings.TrimSpace(txType))),
					Pagination: pagination.Pagination{Page: page, Limit: limit},
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&txType, "type", "", "Filter by entry type (PAYMENT, FEE, REFUND, SETTLEMENT, PENDING_RELEASE)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "Page size")
	return cmd
}

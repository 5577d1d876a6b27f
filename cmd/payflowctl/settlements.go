package main

import (
	"context"
	"strings"

	"github.com/smallbiznis/payflow/internal/settlement/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"github.com/spf13/cobra"
)

func settlementsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "settlements",
		Aliases: []string{"settlement"},
		Short:   "Create, process and inspect worker settlements",
	}
	cmd.AddCommand(
		settlementsListCmd(opts),
		settlementsShowCmd(opts),
		settlementsCreateCmd(opts),
		settlementsProcessCmd(opts),
		settlementsRetryCmd(opts),
		settlementsRunDueCmd(opts),
		settlementsSweepCmd(opts),
	)
	return cmd
}

func settlementsListCmd(opts *globalOptions) *cobra.Command {
	var (
		workerID string
		status   string
		page     int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settlements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				resp, err := svc.Settlements.ListSettlements(ctx, domain.ListSettlementRequest{
					WorkerID:   workerID,
					Status:     domain.Status(strings.ToUpper(strings.TrimSpace(status))),
					Pagination: pagination.Pagination{Page: page, Limit: limit},
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "Filter by worker id")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "Page size")
	return cmd
}

func settlementsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show SETTLEMENT_ID",
		Short: "Show a settlement with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				s, err := svc.Settlements.GetSettlement(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func settlementsCreateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create JOB_ID",
		Short: "Schedule a settlement for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				s, err := svc.Settlements.CreateSettlement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func settlementsProcessCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process SETTLEMENT_ID",
		Short: "Pay out a pending settlement now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				s, err := svc.Settlements.ProcessSettlement(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func settlementsRetryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry SETTLEMENT_ID",
		Short: "Reset a failed settlement and process it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				s, err := svc.Settlements.RetrySettlement(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func settlementsRunDueCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Process every pending settlement whose scheduled time has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				result, err := svc.Settlements.ProcessDueSettlements(ctx)
				if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func settlementsSweepCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Create settlements for jobs completed in the trailing week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
				result, err := svc.Settlements.CreateWeeklySettlements(ctx)
				if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

package main

import (
	"context"

	"github.com/spf13/cobra"
)

func schedulerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run scheduler jobs on demand",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "run-once",
			Short: "Run every enabled scheduler job once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
					return svc.Scheduler.RunOnce(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "run JOB_NAME",
			Short: "Run one job: process_due_settlements, create_weekly_settlements or recover_stale_settlements",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withServices(cmd.Context(), opts, func(ctx context.Context, svc *services) error {
					return svc.Scheduler.RunJob(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

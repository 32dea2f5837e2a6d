package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/printworks/storefront/internal/platform/cache"
	"github.com/printworks/storefront/jobs"
)

func asynqOpts() (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(cfg.RedisAddr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: opts.Addr, Username: opts.Username, Password: opts.Password, DB: opts.DB}, nil
}

var warmupCmd = &cobra.Command{
	Use:   "warmup [slug...]",
	Short: "Queue a pricing cache warmup",
	Long:  "Queue a warmup run for the given services, or for every active service when none are named.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := asynqOpts()
		if err != nil {
			return err
		}
		client := jobs.NewClient(opts, logger)
		defer client.Close()

		if err := client.EnqueuePricingWarmup(cmd.Context(), jobs.PricingWarmupPayload{Slugs: args}); err != nil {
			return eris.Wrap(err, "enqueue warmup")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "warmup queued")
		return nil
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show background queue statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := asynqOpts()
		if err != nil {
			return err
		}
		inspector := asynq.NewInspector(opts)
		defer inspector.Close()

		info, err := inspector.GetQueueInfo(jobs.QueueDefault)
		if err != nil {
			return eris.Wrap(err, "inspect queue")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue %s: pending %d, active %d, scheduled %d, retry %d, archived %d\n",
			info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(warmupCmd, queueCmd)
}

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tickethub/tickethub/internal/server"
)

var queueWorkersFlag int

// tickethub queue:work
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Deliver queued notification mail from the redis queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		workers := queueWorkersFlag
		if workers < 1 {
			workers = 1
		}
		return server.Work(ctx, workers)
	},
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 2, "Number of concurrent workers")
}

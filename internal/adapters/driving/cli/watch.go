package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mahuta/internal/adapters/driving/ops"
	"github.com/custodia-labs/mahuta/internal/adapters/driving/watcher"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/logger"
)

var (
	watchIndex        string
	watchIndexContent bool
	watchAddr         string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index a directory and keep it in sync",
	Long: `Indexes every file in a directory, then follows changes until
interrupted. While running, asynchronous pinning is scheduled and health,
pin status and metrics are served when a metrics address is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchIndex, "index", "i", "files", "index to write to")
	watchCmd.Flags().BoolVar(&watchIndexContent, "index-content", false, "copy file content into the index")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "serve health and metrics on this address (overrides settings)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	w, err := watcher.New(mahutaService, watcher.Config{
		Dir:          args[0],
		IndexName:    watchIndex,
		IndexContent: watchIndexContent,
	})
	if err != nil {
		return err
	}

	workers := []driving.Scheduler{w}
	if pinningScheduler != nil {
		workers = append(workers, pinningScheduler)
	}
	addr := watchAddr
	if addr == "" {
		addr = metricsAddr
	}
	if addr != "" {
		workers = append(workers, ops.NewServer(mahutaService, addr))
	}

	cmd.Printf("Watching %s into index %s (Ctrl+C to stop)\n", args[0], watchIndex)
	return runWorkers(cmd.Context(), workers)
}

// runWorkers runs every worker until ctx is cancelled or one of them fails,
// then stops the rest.
func runWorkers(ctx context.Context, workers []driving.Scheduler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(workers))
	var wg sync.WaitGroup
	for i, worker := range workers {
		wg.Add(1)
		go func(i int, worker driving.Scheduler) {
			defer wg.Done()
			if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped: %v", err)
				errs[i] = err
			}
			cancel()
		}(i, worker)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Command mahuta indexes metadata over content-addressed storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/mahuta/internal/adapters/driven/config/file"
	"github.com/custodia-labs/mahuta/internal/adapters/driving/cli"
	"github.com/custodia-labs/mahuta/internal/app"
	"github.com/custodia-labs/mahuta/internal/core/ports/driving"
	"github.com/custodia-labs/mahuta/internal/core/services"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetVersion(version)
	cli.SetConfigLoader(func(dir string) (driving.SettingsService, error) {
		store, err := file.NewConfigStore(dir)
		if err != nil {
			return nil, err
		}
		return services.NewSettingsService(store), nil
	})
	cli.SetLoader(func(dir string) (cli.Services, func() error, error) {
		a, err := app.Load(ctx, dir)
		if err != nil {
			return cli.Services{}, nil, err
		}
		s := cli.Services{
			Mahuta:      a.Mahuta,
			Settings:    services.NewSettingsService(a.Config),
			MetricsAddr: a.Settings.Metrics.Addr,
		}
		if a.Scheduler != nil {
			s.Scheduler = a.Scheduler
		}
		return s, a.Close, nil
	})

	err := cli.Execute(ctx)
	if closeErr := cli.Close(); err == nil {
		err = closeErr
	}
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

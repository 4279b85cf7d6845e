package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v2"
	"github.com/vcdist/vcd/cmd/vcd/container"
	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/common/bootstrap"
	"github.com/vcdist/vcd/common/db"
)

const serviceName = "vcd"

func main() {
	app := cli.NewApp()
	app.Name = serviceName
	app.Usage = "limited-stock virtual content distribution"

	app.Commands = []*cli.Command{
		serveCmd,
		sweepCmd,
		closeExhaustedCmd,
		rebuildCmd,
		refreshStatsCmd,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// setup bootstraps the stores, applies the schema and builds the service container.
// The caller owns components and must shut them down.
func setup(ctx context.Context, opts ...bootstrap.Option) (*bootstrap.Components, *container.Container, error) {
	opts = append(opts, bootstrap.WithDBInitHook(func(database *db.DB) error {
		return repository.ApplySchema(ctx, database)
	}))

	components, err := bootstrap.Setup(ctx, serviceName, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap: %w", err)
	}

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize service container: %w", err)
	}

	return components, serviceContainer, nil
}

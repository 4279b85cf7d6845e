package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	cli "github.com/urfave/cli/v2"
	"github.com/vcdist/vcd/cmd/vcd/container"
	"github.com/vcdist/vcd/common/bootstrap"
	"github.com/vcdist/vcd/common/server"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "with-sweeper",
			Usage: "also run the exhaustion sweeper in this process",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		components, serviceContainer, err := setup(ctx)
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		e := newEcho(components, serviceContainer)
		srv := server.New("vcd-api", components.Config.Service.Port, e, components.Logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(gctx)
		})
		if cctx.Bool("with-sweeper") {
			g.Go(func() error {
				return ignoreCanceled(serviceContainer.Sweeper.Start(gctx))
			})
		}

		return g.Wait()
	},
}

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "close exhausted campaigns every SWEEP_INTERVAL until interrupted",
	Action: func(cctx *cli.Context) error {
		components, serviceContainer, err := setup(cctx.Context, bootstrap.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		return ignoreCanceled(serviceContainer.Sweeper.Start(cctx.Context))
	},
}

var closeExhaustedCmd = &cli.Command{
	Name:  "close-exhausted",
	Usage: "close exhausted campaigns once, for an external scheduler",
	Action: func(cctx *cli.Context) error {
		components, serviceContainer, err := setup(cctx.Context, bootstrap.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		start := time.Now()
		n, err := serviceContainer.Lifecycle.AutoCloseExhausted(cctx.Context, start)
		if err != nil {
			return fmt.Errorf("close exhausted campaigns: %w", err)
		}

		components.Logger.Info("close-exhausted finished",
			"closed", n,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	},
}

var rebuildCmd = &cli.Command{
	Name:  "rebuild",
	Usage: "recompute a campaign's stock queue from the ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "campaign", Aliases: []string{"c"}, Usage: "campaign id", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		id, err := uuid.Parse(cctx.String("campaign"))
		if err != nil {
			return fmt.Errorf("invalid campaign id: %w", err)
		}

		components, serviceContainer, err := setup(cctx.Context, bootstrap.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		n, err := serviceContainer.Stock.Rebuild(cctx.Context, id)
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", id, err)
		}

		fmt.Fprintf(cctx.App.Writer, "rebuilt %s: %d items queued\n", id, n)
		return nil
	},
}

var refreshStatsCmd = &cli.Command{
	Name:  "refresh-stats",
	Usage: "recompute the receive and share leaderboards once",
	Action: func(cctx *cli.Context) error {
		components, serviceContainer, err := setup(cctx.Context, bootstrap.WithoutTelemetry())
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		return serviceContainer.Stats.Refresh(cctx.Context)
	},
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newEcho builds the API server with middleware, health check and routes
func newEcho(components *bootstrap.Components, serviceContainer *container.Container) *echo.Echo {
	e := setupEcho(components)
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)
	return e
}

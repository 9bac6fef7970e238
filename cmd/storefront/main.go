package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/app"
	"github.com/fjod/go_cart/storefront/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("storefront failed")
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "storefront",
		Usage: "shopping cart client for the storefront API",
		Commands: []*cli.Command{
			cartCommand(),
			productsCommand(),
			loginCommand(),
			logoutCommand(),
			checkoutCommand(),
			watchCommand(),
		},
	}
}

// withApp loads config, assembles the app with its sync worker running, and
// closes it after fn returns.
func withApp(c *cli.Context, fn func(a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a, err := app.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	a.Start(c.Context)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := a.Close(closeCtx); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to shut down cleanly")
		}
	}()

	return fn(a)
}

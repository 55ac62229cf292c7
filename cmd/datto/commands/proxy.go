package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/app"
)

func proxyStartCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Serve a local proxy that authenticates requests to the Datto RMM API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (default 127.0.0.1:4000)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return proxyStartAction(ctx, cmd, env)
		},
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command, env *environment) error {
	cfg, cleanup, err := env.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

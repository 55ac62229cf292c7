package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/app"
	"github.com/dattormm/datto-go/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit, os.Stdout, os.Environ).Run(ctx, args)
}

// newRootCommand builds the command tree. out receives command output and
// environ supplies DATTO_* overrides.
func newRootCommand(version, commit string, out io.Writer, environ func() []string) *cli.Command {
	env := &environment{environ: environ}

	return &cli.Command{
		Name:    "datto",
		Usage:   "Datto RMM API client and local authenticating proxy",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("DATTO_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "platform",
				Usage: "platform region (pinotage|merlot|concord|vidal|zinfandel|syrah)",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "API key; the secret comes from DATTO_API_SECRET or the credential store",
			},
			&cli.StringFlag{
				Name:  "storage",
				Usage: "credential storage (env|file|keyring)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "override the platform API base URL",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format (table|json|yaml)",
				Value:   outputTable,
			},
		},
		Commands: []*cli.Command{
			platformsCommand(),
			authCommand(env),
			tokenCommand(env),
			accountCommand(env),
			sitesCommand(env),
			siteCommand(env),
			devicesCommand(env),
			proxyStartCommand(env),
		},
	}
}

// environment carries process-level inputs into command actions.
type environment struct {
	environ func() []string
}

// flagKeys maps global flags onto config keys.
var flagKeys = map[string]string{
	"platform":     "platform",
	"api-key":      "auth.api_key",
	"storage":      "auth.storage",
	"base-url":     "client.base_url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-exporter": "log.exporter",
	"addr":         "proxy.addr",
}

// loadConfig merges the config file, DATTO_* variables and explicitly set flags.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	return app.LoadConfig(path, overrides, environ)
}

// setup loads config and installs logging. The returned function flushes
// log exporters and must be called before the command returns.
func (e *environment) setup(ctx context.Context, cmd *cli.Command) (*app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, e.environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := cfg.Log.ObservabilityOptions()
	if err != nil {
		return nil, nil, err
	}

	// Set up observability before creating clients
	shutdown, err := observability.Instrument(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	cleanup := func() {
		_ = shutdown(context.WithoutCancel(ctx))
	}
	return cfg, cleanup, nil
}

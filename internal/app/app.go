package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dattormm/datto-go/internal/dattoclient"
	"github.com/dattormm/datto-go/internal/proxy"
)

// shutdownTimeout bounds graceful shutdown of all services.
const shutdownTimeout = 5 * time.Second

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *Config
	client *dattoclient.Client
	health *Health
	proxy  *proxy.Proxy

	// started receives the proxy address once it is listening
	started chan net.Addr
}

// NewClient resolves credentials and creates an authenticated client.
// The first access token is fetched before it returns.
func NewClient(ctx context.Context, cfg *Config) (*dattoclient.Client, error) {
	p, err := cfg.ParsedPlatform()
	if err != nil {
		return nil, err
	}

	creds, err := cfg.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	return dattoclient.New(ctx, p, creds, cfg.Client.ClientOptions()...)
}

// New creates a new App instance. It authenticates against the platform
// before returning so bad credentials fail fast.
func New(ctx context.Context, cfg *Config) (*App, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create datto client: %w", err)
	}

	health := NewHealth(client)

	// Proxied requests refresh tokens past app shutdown while draining
	tokens := client.TokenSource(context.WithoutCancel(ctx))

	proxyServer, err := proxy.New(client.BaseURL(), tokens, health)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:     cfg,
		client:  client,
		health:  health,
		proxy:   proxyServer,
		started: make(chan net.Addr, 1),
	}, nil
}

// Client returns the authenticated client backing the proxy.
func (a *App) Client() *dattoclient.Client {
	return a.client
}

// Started receives the listening address once Start has brought the proxy up.
func (a *App) Started() <-chan net.Addr {
	return a.started
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server",
		"platform", a.client.Platform().String(),
		"upstream", a.client.BaseURL(),
	)
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Proxy.Addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.SetReady(true)
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
		a.health.SetReady(false)
		return nil
	})
	a.started <- a.proxy.Addr()

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

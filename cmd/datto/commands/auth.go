package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dattormm/datto-go/internal/app"
	"github.com/dattormm/datto-go/internal/dattoclient"
	"github.com/dattormm/datto-go/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for managing API credentials.
func authCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Datto RMM API credentials",
		Commands: []*cli.Command{
			authLoginCommand(env),
			authLogoutCommand(env),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Verify API credentials against the platform and save them",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return authLoginAction(ctx, cmd, env)
		},
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Remove saved API credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return authLogoutAction(ctx, cmd, env)
		},
	}
}

// authLoginAction prompts for missing credentials, proves them with a token
// request and writes them to the configured store.
func authLoginAction(ctx context.Context, cmd *cli.Command, env *environment) error {
	cfg, cleanup, err := env.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Auth.Storage == app.SecretStorageEnv {
		return fmt.Errorf("cannot login with env storage (read-only). Configure file or keyring storage")
	}

	p, err := cfg.ParsedPlatform()
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewSecretStore(p.String())
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}

	out := cmd.Root().Writer
	_, _ = fmt.Fprintf(out, "=== Datto RMM Login (%s) ===\n", p)

	creds := tokensource.Credentials{APIKey: cfg.Auth.APIKey, APISecret: cfg.Auth.APISecret}
	if creds.APIKey == "" {
		if creds.APIKey, err = readInput(ctx, out, "API key: "); err != nil {
			return err
		}
	}
	if creds.APISecret == "" {
		if creds.APISecret, err = readSecureInput(ctx, out, "API secret: "); err != nil {
			return err
		}
	}
	if creds.IsZero() {
		return fmt.Errorf("API key and secret cannot be empty")
	}

	// A successful token request proves the pair before it is saved
	if _, err := dattoclient.New(ctx, p, creds, cfg.Client.ClientOptions()...); err != nil {
		var authErr *tokensource.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("credentials rejected by %s: %w", p, err)
		}
		return fmt.Errorf("failed to verify credentials: %w", err)
	}

	if err := store.Write(ctx, creds); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "=== Login Successful ===")
	_, _ = fmt.Fprintf(out, "Credentials saved to %s storage\n", cfg.Auth.Storage)

	return nil
}

// authLogoutAction clears stored credentials.
func authLogoutAction(ctx context.Context, cmd *cli.Command, env *environment) error {
	cfg, cleanup, err := env.setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Auth.Storage == app.SecretStorageEnv {
		return fmt.Errorf("cannot logout with env storage (read-only). Configure file or keyring storage")
	}

	p, err := cfg.ParsedPlatform()
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewSecretStore(p.String())
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}

	// Clear credentials via zero write to maintain storage abstraction
	if err := store.Write(ctx, tokensource.Credentials{}); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	out := cmd.Root().Writer
	_, _ = fmt.Fprintln(out, "=== Logout Successful ===")
	_, _ = fmt.Fprintln(out, "Credentials cleared from configured storage")

	return nil
}

// readInput reads one visible line with context cancellation support.
func readInput(ctx context.Context, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)

	return awaitInput(ctx, func() (string, error) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})
}

// readSecureInput reads user input with hidden display and context cancellation support.
func readSecureInput(ctx context.Context, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	return awaitInput(ctx, func() (string, error) {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		return strings.TrimSpace(string(inputBytes)), err
	})
}

// awaitInput runs read in a goroutine because terminal reads have no
// native context support.
func awaitInput(ctx context.Context, read func() (string, error)) (string, error) {
	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		value, err := read()
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}

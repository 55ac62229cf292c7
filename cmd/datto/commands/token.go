package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/app"
)

type tokenInfo struct {
	Platform    string    `json:"platform"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	State       string    `json:"state"`
}

// tokenCommand returns the 'token' subcommand printing a fresh access token.
func tokenCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Request an access token and print it",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "show",
				Usage: "print the full token instead of a masked one",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, cleanup, err := env.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			client, err := app.NewClient(ctx, cfg)
			if err != nil {
				return err
			}

			token, err := client.EnsureToken(ctx)
			if err != nil {
				return err
			}
			if !cmd.Bool("show") {
				token = maskSecret(token)
			}

			info := tokenInfo{
				Platform:    client.Platform().String(),
				AccessToken: token,
				ExpiresAt:   client.TokenExpiry().UTC(),
				State:       client.TokenState().String(),
			}

			return render(cmd, info, func(w io.Writer) error {
				if cmd.Bool("show") {
					_, err := fmt.Fprintln(w, info.AccessToken)
					return err
				}
				return propertyTable(w, [][2]string{
					{"Platform", info.Platform},
					{"Access Token", info.AccessToken},
					{"Expires At", info.ExpiresAt.Format(time.RFC3339)},
					{"State", info.State},
				})
			})
		},
	}
}

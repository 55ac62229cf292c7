package commands

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/app"
	"github.com/dattormm/datto-go/internal/rmm"
)

// newService creates an authenticated API service for cfg.
func newService(ctx context.Context, cfg *app.Config) (*rmm.Service, error) {
	client, err := app.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rmm.New(client), nil
}

// accountCommand returns the 'account' subcommand.
func accountCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Show the authenticated account",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, cleanup, err := env.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			svc, err := newService(ctx, cfg)
			if err != nil {
				return err
			}

			account, err := svc.GetAccount(ctx)
			if err != nil {
				return err
			}

			return render(cmd, account, func(w io.Writer) error {
				return propertyTable(w, accountRows(account))
			})
		},
	}
}

func accountRows(account *rmm.Account) [][2]string {
	rows := [][2]string{
		{"ID", itoa(account.ID)},
		{"UID", account.UID},
		{"Name", account.Name},
		{"Currency", orNA(account.Currency)},
	}

	if d := account.Descriptor; d != nil {
		limit := notAvailable
		if d.DeviceLimit != nil {
			limit = itoa(*d.DeviceLimit)
		}
		rows = append(rows,
			[2]string{"Billing Email", orNA(d.BillingEmail)},
			[2]string{"Device Limit", limit},
			[2]string{"Time Zone", orNA(d.TimeZone)},
		)
	}

	if s := account.DevicesStatus; s != nil {
		rows = append(rows,
			[2]string{"Devices", itoa(s.NumberOfDevices)},
			[2]string{"Online", itoa(s.NumberOfOnlineDevices)},
			[2]string{"Offline", itoa(s.NumberOfOfflineDevices)},
		)
	}
	return rows
}

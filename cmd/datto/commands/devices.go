package commands

import (
	"context"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/rmm"
)

// devicesCommand returns the 'devices' subcommand.
func devicesCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the account's devices",
		Flags: append(pageFlags(),
			&cli.StringFlag{Name: "hostname", Usage: "filter by hostname"},
			&cli.StringFlag{Name: "site-name", Usage: "filter by site name"},
			&cli.StringFlag{Name: "device-type", Usage: "filter by device type"},
			&cli.StringFlag{Name: "os", Usage: "filter by operating system"},
			&cli.IntFlag{Name: "filter-id", Usage: "apply a saved device filter"},
		),
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

			params := &rmm.DevicesParams{
				PageParams:      pageParams(cmd),
				Hostname:        cmd.String("hostname"),
				SiteName:        cmd.String("site-name"),
				DeviceType:      cmd.String("device-type"),
				OperatingSystem: cmd.String("os"),
				FilterID:        int(cmd.Int("filter-id")),
			}
			page, err := svc.ListDevices(ctx, params)
			if err != nil {
				return err
			}

			return render(cmd, page, func(w io.Writer) error {
				table := tablewriter.NewWriter(w)
				table.Header("UID", "Hostname", "Site", "Type", "Online", "Last Seen")
				for _, d := range page.Devices {
					deviceType := notAvailable
					if d.DeviceType != nil {
						deviceType = orNA(d.DeviceType.Type)
					}
					if err := table.Append(d.UID, d.Hostname, orNA(d.SiteName), deviceType, yesNo(d.Online), formatMillis(d.LastSeen)); err != nil {
						return err
					}
				}
				if err := table.Render(); err != nil {
					return err
				}
				writePageHint(w, page.PageDetails, params.Page)
				return nil
			})
		},
	}
}

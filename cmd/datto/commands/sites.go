package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/rmm"
)

// pageFlags are shared by list commands.
func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "zero-based page number",
		},
		&cli.IntFlag{
			Name:  "max",
			Usage: fmt.Sprintf("page size (capped at %d)", rmm.MaxPageSize),
			Value: rmm.DefaultPageSize,
		},
	}
}

func pageParams(cmd *cli.Command) rmm.PageParams {
	return rmm.PageParams{Page: int(cmd.Int("page")), Max: int(cmd.Int("max"))}
}

// writePageHint tells table readers how to fetch the next page.
func writePageHint(w io.Writer, details rmm.PageDetails, page int) {
	if !details.HasMore() {
		return
	}
	_, _ = fmt.Fprintf(w, "More results available: --page %d\n", page+1)
}

// sitesCommand returns the 'sites' subcommand.
func sitesCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "sites",
		Usage: "List the account's sites",
		Flags: append(pageFlags(),
			&cli.StringFlag{
				Name:  "name",
				Usage: "filter by site name",
			},
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

			params := &rmm.SitesParams{PageParams: pageParams(cmd), SiteName: cmd.String("name")}
			page, err := svc.ListSites(ctx, params)
			if err != nil {
				return err
			}

			return render(cmd, page, func(w io.Writer) error {
				table := tablewriter.NewWriter(w)
				table.Header("UID", "Name", "Devices", "Online", "Offline", "On Demand")
				for _, site := range page.Sites {
					devices, online, offline := notAvailable, notAvailable, notAvailable
					if s := site.DevicesStatus; s != nil {
						devices = itoa(s.NumberOfDevices)
						online = itoa(s.NumberOfOnlineDevices)
						offline = itoa(s.NumberOfOfflineDevices)
					}
					if err := table.Append(site.UID, site.Name, devices, online, offline, yesNo(site.OnDemand)); err != nil {
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

// siteCommand returns the 'site' subcommand showing one site.
func siteCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:      "site",
		Usage:     "Show one site",
		ArgsUsage: "<site-uid>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			uid := cmd.Args().First()
			if uid == "" {
				return fmt.Errorf("site UID is required")
			}

			cfg, cleanup, err := env.setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			svc, err := newService(ctx, cfg)
			if err != nil {
				return err
			}

			site, err := svc.GetSite(ctx, uid)
			if err != nil {
				return err
			}

			return render(cmd, site, func(w io.Writer) error {
				rows := [][2]string{
					{"ID", itoa(site.ID)},
					{"UID", site.UID},
					{"Name", site.Name},
					{"Description", orNA(site.Description)},
					{"On Demand", yesNo(site.OnDemand)},
					{"Portal URL", orNA(site.PortalURL)},
				}
				if s := site.DevicesStatus; s != nil {
					rows = append(rows, [2]string{"Devices", itoa(s.NumberOfDevices)})
				}
				return propertyTable(w, rows)
			})
		},
	}
}

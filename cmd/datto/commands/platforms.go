package commands

import (
	"context"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/dattormm/datto-go/internal/platform"
)

type platformInfo struct {
	Name          string `json:"name"`
	BaseURL       string `json:"base_url"`
	TokenEndpoint string `json:"token_endpoint"`
}

// platformsCommand returns the 'platforms' subcommand listing regional API endpoints.
func platformsCommand() *cli.Command {
	return &cli.Command{
		Name:   "platforms",
		Usage:  "List Datto RMM platforms and their API endpoints",
		Action: platformsAction,
	}
}

func platformsAction(_ context.Context, cmd *cli.Command) error {
	all := platform.All()
	infos := make([]platformInfo, 0, len(all))
	for _, p := range all {
		infos = append(infos, platformInfo{
			Name:          p.String(),
			BaseURL:       p.BaseURL(),
			TokenEndpoint: p.TokenEndpoint(),
		})
	}

	return render(cmd, infos, func(w io.Writer) error {
		table := tablewriter.NewWriter(w)
		table.Header("Platform", "API URL", "Token Endpoint")
		for _, info := range infos {
			if err := table.Append(info.Name, info.BaseURL, info.TokenEndpoint); err != nil {
				return err
			}
		}
		return table.Render()
	})
}

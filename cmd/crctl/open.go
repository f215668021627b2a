package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Navigate to a page and show where the guard lets you land",
		Long: `open resolves a page path against the route table and runs the login
check on it, exactly as the web client would on a link click.

  crctl open /                  # follows / -> /dashboard -> /dashboard/review
  crctl open /dashboard/detail/42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.navigate(cmd.Context(), args[0]); err != nil {
				return err
			}
			loc := c.nav.Location
			rows := [][]string{
				{"Requested", c.nav.Requested},
				{"Location", loc.Path},
				{"Page", loc.Route.Name},
				{"Title", c.titles.Title()},
			}
			if len(c.nav.Redirects) > 0 {
				rows = append(rows, []string{"Redirects", strings.Join(c.nav.Redirects, " -> ")})
			}
			names := make([]string, 0, len(loc.Params))
			for k := range loc.Params {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				rows = append(rows, []string{"Param " + k, loc.Params[k]})
			}
			return renderTable(cmd.OutOrStdout(), []string{"Key", "Value"}, rows)
		},
	}
}

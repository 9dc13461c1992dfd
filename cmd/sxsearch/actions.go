package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sxsearch/pkg/app"
)

func newSearchCmd(g *globals) *cobra.Command {
	var site string

	cmd := &cobra.Command{
		Use:   "search [--site ID] <query...>",
		Short: "Search a site; words starting with . are tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionSearch, app.Args{
				Query:  strings.Join(args, " "),
				SiteID: site,
			})
		},
	}
	cmd.Flags().StringVarP(&site, "site", "s", "", "site to search (default: configured site)")
	return cmd
}

func newSitesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sites [query...]",
		Short: "List Stack Exchange sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionSites, app.Args{Query: strings.Join(args, " ")})
		},
	}
}

func newCacheSitesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-sites",
		Short: "Fetch the list of sites and their icons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionCacheSites, app.Args{})
		},
	}
}

func newSetDefaultCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <site-id>",
		Short: "Make a site the default search target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionSetDefault, app.Args{SiteID: args[0]})
		},
	}
}

func newRevealIconCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reveal-icon <site-id>",
		Short: "Show a site's cached icon in the file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionRevealIcon, app.Args{SiteID: args[0]})
		},
	}
}

// newRunCmd dispatches the action named by the host's "action" variable,
// reading the site from the site_* variables set on list items.
func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run [query...]",
		Short: "Run the action named by the action environment variable",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := os.Getenv("action")
			if name == "" {
				name = app.ActionSearch.String()
			}
			action, err := app.ParseAction(name)
			if err != nil {
				return err
			}
			return g.dispatch(cmd, action, app.Args{
				Query:    strings.Join(args, " "),
				SiteID:   os.Getenv("site_id"),
				SiteName: os.Getenv("site_name"),
			})
		},
	}
}

func newRefreshCmd(g *globals) *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:    "refresh --spec SPEC",
		Short:  "Run one background refresh (worker process)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.dispatch(cmd, app.ActionRefresh, app.Args{Spec: []byte(spec)})
		},
	}
	cmd.Flags().StringVar(&spec, "spec", "", "encoded job spec")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

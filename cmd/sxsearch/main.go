package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sxsearch/pkg/app"
)

var version = "dev"

func main() {
	app.UserAgent = "sxsearch/" + version

	g := &globals{}
	root := &cobra.Command{
		Use:           "sxsearch",
		Short:         "Search Stack Exchange sites from a launcher or the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (default $XDG_CONFIG_HOME/sxsearch/config.yaml)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "", "output format: auto, json or text")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newSearchCmd(g),
		newSitesCmd(g),
		newCacheSitesCmd(g),
		newSetDefaultCmd(g),
		newRevealIconCmd(g),
		newRunCmd(g),
		newRefreshCmd(g),
		newCacheCmd(g),
		newJobsCmd(g),
		newQuotaCmd(g),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sxsearch", version)
		},
	}
}

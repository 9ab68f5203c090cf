package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pluginhost/internal/app"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the units that can be named in a host configuration",
	Run: func(cmd *cobra.Command, _ []string) {
		styles := ui.DefaultStyles()
		c := app.DefaultCatalog()
		out := cmd.OutOrStdout()

		_, _ = fmt.Fprintln(out, styles.Header.Render("Plugins"))
		for _, name := range c.PluginNames() {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
		_, _ = fmt.Fprintln(out, styles.Header.Render("Jobs"))
		for _, name := range c.JobNames() {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

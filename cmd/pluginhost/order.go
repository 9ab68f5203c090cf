package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pluginhost/internal/app"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the plugin load order without loading anything",
	Long: `Order resolves the dependencies of the configured plugins for one side
and prints the order in which they would be loaded and enabled. Unload
runs in the exact reverse.

A dependency cycle or, under the "fail" policy, a missing dependency is
reported as an error.

Examples:
  pluginhost order
  pluginhost order --side client --config host.toml`,
	RunE: runOrder,
}

func init() {
	rootCmd.AddCommand(orderCmd)
}

func runOrder(cmd *cobra.Command, _ []string) error {
	side, err := selectedSide()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	host, err := app.NewHost(cfg, side, app.WithLogger(newLogger(cfg, cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer func() { _, _ = host.Stop(context.Background()) }()

	order, err := host.Order(cmd.Context())
	if err != nil {
		return err
	}
	printOrder(cmd.OutOrStdout(), side, order, host.Plugins().Names(side))
	return nil
}

// printOrder lists order, marking names that are dependencies only.
func printOrder(w io.Writer, side unit.Side, order, registered []string) {
	styles := ui.DefaultStyles()
	known := make(map[string]bool, len(registered))
	for _, name := range registered {
		known[name] = true
	}

	_, _ = fmt.Fprintln(w, styles.Header.Render(title(side.String())+" load order"))
	if len(order) == 0 {
		_, _ = fmt.Fprintln(w, styles.Muted.Render("  (no plugins configured)"))
		return
	}
	for i, name := range order {
		line := fmt.Sprintf("  %d. %s", i+1, name)
		if !known[name] {
			line += " " + styles.Warning.Render("(not registered)")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

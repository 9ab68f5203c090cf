package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pluginhost/internal/app"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a host until interrupted",
	Long: `Run registers the configured units for one side, loads and enables
plugins in dependency order, initializes jobs and starts the tick scheduler.

The host runs until SIGINT or SIGTERM, then stops jobs and unloads plugins
in reverse load order. When admin.addr is set, /live, /ready, /metrics and
/units are served on that address.

Examples:
  pluginhost run --side server --config host.yaml
  pluginhost run -s client -c host.toml
  PLUGINHOST_ADMIN_ADDR=:9090 pluginhost run`,
	RunE: runRun,
}

var shutdownTimeout time.Duration

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for jobs to finish and plugins to unload")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runHost(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runHost starts a host and blocks until ctx is done.
func runHost(ctx context.Context, out, logOut io.Writer) error {
	side, err := selectedSide()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	host, err := app.NewHost(cfg, side, app.WithLogger(newLogger(cfg, logOut)))
	if err != nil {
		return err
	}

	report, err := host.Start(ctx)
	if err != nil {
		stopHost(host)
		return err
	}
	printStartReport(out, cfg.Name, side, report)

	adminErr := make(chan error, 1)
	if addr := cfg.Admin.Addr; addr != "" {
		go func() {
			adminErr <- app.NewAdminServer(host, addr).ListenAndServe(ctx)
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-adminErr:
	}

	if stopErr := stopHost(host); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	return err
}

func stopHost(host *app.Host) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_, err := host.Stop(ctx)
	return err
}

func printStartReport(w io.Writer, name string, side unit.Side, report *app.StartReport) {
	styles := ui.DefaultStyles()

	_, _ = fmt.Fprintln(w, styles.Title.Render(fmt.Sprintf("%s (%s)", name, title(side.String()))))
	for _, p := range report.Plugins.Succeeded {
		_, _ = fmt.Fprintf(w, "  %s plugin %s\n", styles.Success.Render("✓"), p)
	}
	for _, f := range report.Plugins.Failed {
		_, _ = fmt.Fprintf(w, "  %s plugin %s: %v\n", styles.Error.Render("✗"), f.Unit, f.Err)
	}
	for _, s := range report.Plugins.Skipped {
		_, _ = fmt.Fprintf(w, "  %s plugin %s: %s\n", styles.Muted.Render("-"), s.Unit, s.Reason)
	}
	for _, j := range report.Jobs.Succeeded {
		_, _ = fmt.Fprintf(w, "  %s job %s\n", styles.Success.Render("✓"), j)
	}
	for _, f := range report.Jobs.Failed {
		_, _ = fmt.Fprintf(w, "  %s job %s: %v\n", styles.Error.Render("✗"), f.Unit, f.Err)
	}
}

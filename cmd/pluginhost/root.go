package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/felixgeelhaar/pluginhost/internal/adapters/logging"
	"github.com/felixgeelhaar/pluginhost/internal/config"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

var (
	// Global flags
	cfgFile  string
	sideFlag string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "pluginhost",
	Short: "An in-process plugin and job host",
	Long: `Pluginhost registers plugins and jobs for a client or server side,
activates plugins in dependency order and ticks jobs on a fixed period.

Units are selected by name from the built-in catalog in the host
configuration file (YAML or TOML). PLUGINHOST_* environment variables
override file values.`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "host.yaml", "host configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVarP(&sideFlag, "side", "s", string(unit.SideServer), "side to host (client, server)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	registerFlagCompletions()

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration selected by --config.
func loadConfig() (*config.HostConfig, error) {
	return config.NewLoader().Load(cfgFile)
}

// selectedSide parses --side.
func selectedSide() (unit.Side, error) {
	return unit.ParseSide(sideFlag)
}

// newLogger builds the console logger described by cfg. --verbose forces
// the debug level.
func newLogger(cfg *config.HostConfig, w io.Writer) ports.Logger {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if verbose {
		logger.SetLevel(ports.LevelDebug)
	}
	return logger
}

// title renders a label such as a side name for headings.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error) string {
	var list *config.ErrorList
	if errors.As(err, &list) {
		return "invalid host configuration:\n" + list.Format()
	}

	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	styles := ui.DefaultStyles()
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Error.Render("Error:"), formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml", "toml"}, cobra.ShellCompDirectiveFilterFileExt
	})

	_ = rootCmd.RegisterFlagCompletionFunc("side", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"client\tClient-side units",
			"server\tServer-side units",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

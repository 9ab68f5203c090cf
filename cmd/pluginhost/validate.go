package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pluginhost/internal/app"
	"github.com/felixgeelhaar/pluginhost/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the host configuration and unit manifests",
	Long: `Validate loads the host configuration, registers the configured units
for one side and checks every unit manifest. Nothing is loaded.

Examples:
  pluginhost validate
  pluginhost validate --side client --json`,
	RunE: runValidate,
}

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output results as JSON")
}

// validationResult is the --json payload.
type validationResult struct {
	Valid   bool     `json:"valid"`
	Side    string   `json:"side,omitempty"`
	Plugins []string `json:"plugins,omitempty"`
	Jobs    []string `json:"jobs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	result, err := validate(cmd)
	if validateJSON {
		if err != nil {
			result.Error = formatError(err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
		return err
	}

	if err != nil {
		return err
	}
	printValidation(cmd.OutOrStdout(), result)
	return nil
}

func validate(cmd *cobra.Command) (validationResult, error) {
	result := validationResult{}

	side, err := selectedSide()
	if err != nil {
		return result, err
	}
	result.Side = side.String()

	cfg, err := loadConfig()
	if err != nil {
		return result, err
	}

	host, err := app.NewHost(cfg, side, app.WithLogger(newLogger(cfg, cmd.ErrOrStderr())))
	if err != nil {
		return result, err
	}
	defer func() { _, _ = host.Stop(context.Background()) }()

	if err := host.Validate(cmd.Context()); err != nil {
		return result, err
	}

	result.Valid = true
	result.Plugins = host.Plugins().Names(side)
	result.Jobs = host.Jobs().Names(side)
	return result, nil
}

func printValidation(w io.Writer, result validationResult) {
	styles := ui.DefaultStyles()
	_, _ = fmt.Fprintf(w, "%s %s configuration is valid\n", styles.Success.Render("✓"), title(result.Side))
	_, _ = fmt.Fprintf(w, "  plugins: %d, jobs: %d\n", len(result.Plugins), len(result.Jobs))
}

// =============================================================================
// ERP to CoreTax Converter - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (converter)
//   ├── convertCmd (converter convert)
//   ├── verifyCmd  (converter verify)
//   ├── serveCmd   (converter serve)
//   └── versionCmd (converter version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the YAML configuration
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// Empty means config.DefaultConfigPath, which may be absent.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "converter",
	Short: "ERP to CoreTax Converter - Turn ERP sales exports into CoreTax import workbooks",
	Long: `ERP to CoreTax Converter transforms sales exports from an ERP system
(.xlsx or .csv) into the four-sheet workbook accepted by the Indonesian
CoreTax e-invoicing bulk import.

Key Features:
  - Tolerant parsing of messy numeric, date and text cells
  - VAT back-calculation from tax-inclusive totals
  - Rows that cannot be converted are replaced, never dropped
  - Concurrent batch conversion with optional archival
  - HTTP upload endpoint

Example Usage:
  converter convert                     # Convert every file in the input directory
  converter convert sales.xlsx --dry-run
  converter verify output/CoreTax_Import_20250101_120000.xlsx
  converter serve --addr :8080`,

	SilenceUsage:  true,
	SilenceErrors: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"Path to the main configuration file (default is config.yaml, optional)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// setup loads the configuration and configures the global logger.
//
// RETURNS:
//   - The validated configuration.
//   - A closer for the log file; always non-nil.
//   - An error if the configuration cannot be loaded or the log file opened.
func setup() (*config.MainConfig, io.Closer, error) {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("failed to load main config: %w", err)
	}

	if verbose {
		cfg.LogLevel = "debug"
	}

	if cfg.LogFile == "" {
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return cfg, nopCloser{}, nil
	}

	_, closer, err := logging.SetupFile(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nopCloser{}, err
	}
	slog.Debug("logging to file", "path", cfg.LogFile)
	return cfg, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

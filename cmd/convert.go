// =============================================================================
// ERP to CoreTax Converter - Convert Command
// =============================================================================
// This file defines the 'convert' command, the main command of the tool.
//
// COMMAND USAGE:
//   converter convert [files...] [flags]
//
// FLAGS:
//   --npwp     : Seller NPWP written to the Faktur sheet
//   --out      : Output directory (overrides output_dir)
//   --sheet    : Worksheet to read from .xlsx inputs
//   --dry-run  : Convert and verify without writing or archiving
//
// PROCESSING PIPELINE:
//   1. Load configuration
//   2. Collect input files (arguments, or every .xlsx/.csv in input_dir)
//   3. Convert the files concurrently (see converter.Run)
//   4. Print the per-file outcome
//   5. Write the summary log
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/converter"
	"github.com/ginjaninja78/erp-coretax-converter/internal/tabular"
	"github.com/ginjaninja78/erp-coretax-converter/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// dryRun converts without writing output files.
	dryRun bool

	// sellerNPWP overrides converter.seller_npwp.
	sellerNPWP string

	// outputDir overrides output_dir.
	outputDir string

	// inputSheet overrides input_sheet.
	inputSheet string
)

// =============================================================================
// CONVERT COMMAND DEFINITION
// =============================================================================

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert ERP sales exports into CoreTax import workbooks",
	Long: `The convert command converts the given files, or every .xlsx and .csv file
in the input directory, into CoreTax import workbooks.

Files are converted concurrently, up to max_concurrency at a time. Every
data row produces exactly one DetailFaktur line; rows that cannot be
converted are replaced by a placeholder marked for manual review.

On success:
  - The workbook is written to the output directory
  - When archive_on_success is set, the input moves to the input archive
    and a copy of the workbook goes to the output archive

On error:
  - The input stays in place
  - Other files keep converting unless continue_on_error is false
  - A summary log lists every failure`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Convert and verify without writing output files")
	convertCmd.Flags().StringVar(&sellerNPWP, "npwp", "", "Seller NPWP for the Faktur sheet (15 or 16 digits)")
	convertCmd.Flags().StringVar(&outputDir, "out", "", "Output directory (overrides output_dir)")
	convertCmd.Flags().StringVar(&inputSheet, "sheet", "", "Worksheet to read from .xlsx inputs (default: first sheet)")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runConvert(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	out := cmd.OutOrStdout()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := applyConvertFlags(cmd, cfg); err != nil {
		return err
	}

	conv := converter.NewFromConfig(cfg, slog.Default())
	if dryRun {
		conv = converter.New(conv.Transformer(), nil, converter.Options{
			SellerNPWP:       cfg.Converter.SellerNPWP,
			Sheet:            cfg.InputSheet,
			OutputNameFormat: cfg.OutputNameFormat,
			DryRun:           true,
			Logger:           slog.Default(),
		})
	}

	// =========================================================================
	// STEP 2: COLLECT INPUT FILES
	// =========================================================================

	inputFiles := args
	if len(inputFiles) == 0 {
		fm := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, "", "")
		inputFiles, err = fm.DiscoverInputFiles(tabular.SupportedExtensions...)
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		fmt.Fprintf(out, "No .xlsx or .csv files found in %s\n", cfg.InputDir)
		return nil
	}

	fmt.Fprintln(out, "=== ERP to CoreTax Converter ===")
	fmt.Fprintf(out, "Converting %d file(s)...\n", len(inputFiles))

	// =========================================================================
	// STEP 3: PROCESS FILES CONCURRENTLY
	// =========================================================================

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := conv.RunAll(ctx, inputFiles, cfg.MaxConcurrency, cfg.ContinueOnError)

	// =========================================================================
	// STEP 4: PRINT RESULTS
	// =========================================================================

	for _, result := range results {
		name := filepath.Base(result.FilePath)
		switch {
		case !result.Success:
			fmt.Fprintf(out, "  ✗ %s: %v\n", name, result.Error)
		case result.OutputFile == "":
			fmt.Fprintf(out, "  ✓ %s (dry run, %d rows, %d recovered)\n", name, result.Stats.RowsProcessed, result.Stats.RowsRecovered)
		default:
			fmt.Fprintf(out, "  ✓ %s -> %s (%d rows, %d recovered)\n", name, result.OutputFile, result.Stats.RowsProcessed, result.Stats.RowsRecovered)
		}
	}

	summary := converter.Summarize(results, startTime, time.Now())

	fmt.Fprintln(out, "\n=== Processing Complete ===")
	fmt.Fprintf(out, "Total files:     %d\n", summary.TotalFiles)
	fmt.Fprintf(out, "Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Fprintf(out, "Errors:          %d\n", summary.FailedFiles)
	fmt.Fprintf(out, "Rows:            %d (%d recovered)\n", summary.TotalRows, summary.RecoveredRows)
	fmt.Fprintf(out, "Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))

	// =========================================================================
	// STEP 5: WRITE SUMMARY LOG
	// =========================================================================

	if !dryRun {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			slog.Warn("failed to create output directory", "error", err)
		} else if path, err := utils.WriteSummaryLog(summary, cfg.OutputDir); err != nil {
			slog.Warn("failed to write summary log", "error", err)
		} else {
			fmt.Fprintf(out, "Summary log:     %s\n", path)
		}
	}

	return convertExitError(summary, cfg.ContinueOnError)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// applyConvertFlags copies explicitly set flags over the configuration.
func applyConvertFlags(cmd *cobra.Command, cfg *config.MainConfig) error {
	flags := cmd.Flags()

	if flags.Changed("npwp") {
		if !config.ValidNPWP(sellerNPWP) {
			return fmt.Errorf("invalid --npwp %q: expected 15 or 16 digits", sellerNPWP)
		}
		cfg.Converter.SellerNPWP = sellerNPWP
	}
	if flags.Changed("out") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("sheet") {
		cfg.InputSheet = inputSheet
	}
	if dryRun {
		cfg.ArchiveOnSuccess = false
	}
	return nil
}

// convertExitError decides whether the batch as a whole failed.
func convertExitError(summary utils.ProcessingSummary, continueOnError bool) error {
	if summary.FailedFiles == 0 {
		return nil
	}
	if summary.SuccessfulFiles == 0 {
		return fmt.Errorf("all %d file(s) failed", summary.FailedFiles)
	}
	if !continueOnError {
		return errors.New("conversion stopped after a failure (continue_on_error is false)")
	}
	return nil
}

// =============================================================================
// ERP to CoreTax Converter - Verify Command
// =============================================================================
//
// This file defines the 'verify' command, which checks an emitted workbook
// against the CoreTax import layout without converting anything.
//
// COMMAND USAGE:
//   converter verify <file.xlsx> [--log errors.txt]
//
// CHECKS:
//   - Sheet order: Faktur, DetailFaktur, REF, Keterangan
//   - Faktur label and seller NPWP
//   - DetailFaktur headers
//   - Numeric cells finite and non-negative, row numbers 1..N
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/validation"
)

// verifyLog is the file that receives the findings, if set.
var verifyLog string

// strictVerify makes warnings fail the check.
var strictVerify bool

var verifyCmd = &cobra.Command{
	Use:   "verify <file.xlsx>",
	Short: "Check a CoreTax workbook's layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyLog, "log", "", "Write the findings to this file")
	verifyCmd.Flags().BoolVar(&strictVerify, "strict", false, "Treat warnings as errors")
}

func runVerify(cmd *cobra.Command, path string) error {
	_, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	opts := validation.DefaultValidationOptions()
	opts.TreatWarningsAsErrors = strictVerify
	result := validation.ValidateWorkbookWithOptions(f, opts)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checked %d DetailFaktur row(s) in %s\n", result.RowsValidated, path)
	fmt.Fprintln(out, validation.FormatErrors(result.Errors))

	if verifyLog != "" {
		if err := validation.WriteErrorLog(result.Errors, verifyLog); err != nil {
			return err
		}
	}

	if !result.IsValid {
		return fmt.Errorf("workbook failed verification: %d error(s), %d warning(s)", result.ErrorCount, result.WarningCount)
	}
	return nil
}

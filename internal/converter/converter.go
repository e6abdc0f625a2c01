// =============================================================================
// ERP to CoreTax Converter - Conversion Job
// =============================================================================
//
// This module orchestrates the conversion of a single ERP export into a
// CoreTax import workbook.
//
// CONVERSION PIPELINE:
//   1. Load the source table (.xlsx or .csv)
//   2. Transform every data row into a sanitized record
//   3. Validate the record sequence
//   4. Render the four-sheet workbook
//   5. Verify the emitted layout
//   6. Write the output file
//   7. Archive the processed files
//
// CONCURRENCY:
//   A Converter holds only configuration and can run many files at once.
//   RunAll bounds the number of files in flight.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/coretax"
	"github.com/ginjaninja78/erp-coretax-converter/internal/tabular"
	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
	"github.com/ginjaninja78/erp-coretax-converter/internal/validation"
	"github.com/ginjaninja78/erp-coretax-converter/pkg/utils"
)

// ErrNoRecords is returned when the source table has a header but no data rows.
var ErrNoRecords = errors.New("no data rows found in input")

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single file.
type Result struct {
	// JobID identifies the run in logs.
	JobID string

	// FilePath is the path to the input file that was processed.
	FilePath string

	// OutputFile is the path to the generated workbook.
	// This is empty if processing failed or on a dry run.
	OutputFile string

	// ArchivePath is where the input was moved after success.
	// Equal to FilePath when archival is disabled.
	ArchivePath string

	// Success indicates whether the processing was successful.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Findings holds the record and layout validation findings.
	Findings []*validation.ValidationError

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	// RowsProcessed is the number of data rows read from the input.
	RowsProcessed int

	// RowsRecovered is the number of rows replaced by a fallback record.
	RowsRecovered int

	// ValidationErrors is the number of error-severity findings.
	ValidationErrors int

	// ValidationWarnings is the number of warnings, recovered rows included.
	ValidationWarnings int

	// ProcessingTime is the time taken to process the file.
	ProcessingTime time.Duration
}

// Conversion is the in-memory product of a source table.
type Conversion struct {
	Results    []types.RowResult
	Workbook   *coretax.Workbook
	Validation *validation.ValidationResult
}

// Recovered reports how many rows fell back to a placeholder record.
func (c *Conversion) Recovered() int {
	return types.CountRecovered(c.Results)
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options configures a Converter.
type Options struct {
	// SellerNPWP is written to the Faktur sheet.
	// Default: coretax.DefaultSellerNPWP
	SellerNPWP string

	// Sheet is the worksheet read from .xlsx inputs. Empty selects the first.
	Sheet string

	// OutputNameFormat names output files, see utils.GenerateOutputFileName.
	// Default: "CoreTax_Import_{timestamp}.xlsx"
	OutputNameFormat string

	// DryRun converts and verifies without writing or archiving anything.
	DryRun bool

	// Logger receives job progress.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now stamps the workbook properties.
	// Default: time.Now
	Now func() time.Time
}

// Converter runs conversion jobs.
type Converter struct {
	transformer *Transformer
	files       *utils.FileManager
	opts        Options
	logger      *slog.Logger
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// New creates a new Converter.
//
// PARAMETERS:
//   - transformer: The row transformer. Nil selects the default options.
//   - files: Output naming and archival. May be nil when only Convert is used.
//   - opts: Job options.
//
// RETURNS:
//   - A new Converter instance.
func New(transformer *Transformer, files *utils.FileManager, opts Options) *Converter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SellerNPWP == "" {
		opts.SellerNPWP = coretax.DefaultSellerNPWP
	}
	if opts.OutputNameFormat == "" {
		opts.OutputNameFormat = "CoreTax_Import_{timestamp}.xlsx"
	}
	if transformer == nil {
		topts := DefaultTransformerOptions()
		topts.Now = opts.Now
		topts.Logger = opts.Logger
		transformer = NewTransformer(topts)
	}

	return &Converter{
		transformer: transformer,
		files:       files,
		opts:        opts,
		logger:      opts.Logger,
	}
}

// NewFromConfig wires a Converter from the application configuration.
func NewFromConfig(cfg *config.MainConfig, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}

	transformer := NewTransformer(TransformerOptions{
		VATRate: decimal.NewFromFloat(cfg.Converter.VATRate),
		Logger:  logger,
	})

	files := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir, cfg.OutputArchiveDir)
	files.ArchiveOnSuccess = cfg.ArchiveOnSuccess

	return New(transformer, files, Options{
		SellerNPWP:       cfg.Converter.SellerNPWP,
		Sheet:            cfg.InputSheet,
		OutputNameFormat: cfg.OutputNameFormat,
		Logger:           logger,
	})
}

// Transformer returns the row transformer in use.
func (c *Converter) Transformer() *Transformer {
	return c.transformer
}

// =============================================================================
// IN-MEMORY CONVERSION
// =============================================================================

// Convert transforms, validates and renders an already loaded table.
//
// RETURNS:
//   - The conversion; the caller owns Workbook and must close it.
//   - ErrNoRecords for a table without data rows.
//   - An error if the records fail validation or the workbook cannot be built.
func (c *Converter) Convert(table *types.SourceTable) (*Conversion, error) {
	return c.convert(table, c.logger)
}

// ConvertWithLogger is Convert logging through logger, typically a request
// scoped logger from the HTTP boundary.
func (c *Converter) ConvertWithLogger(table *types.SourceTable, logger *slog.Logger) (*Conversion, error) {
	if logger == nil {
		logger = c.logger
	}
	return c.convert(table, logger)
}

func (c *Converter) convert(table *types.SourceTable, logger *slog.Logger) (*Conversion, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, ErrNoRecords
	}

	results := c.transformer.Transform(table.Rows)
	recovered := types.CountRecovered(results)
	if recovered > 0 {
		logger.Warn("rows replaced by fallback records", "rows", len(results), "recovered", recovered)
	}

	vr := validation.ValidateRecords(results)
	for _, ve := range vr.Errors {
		if ve.Severity == validation.SeverityError {
			logger.Error("record validation failed", "row", ve.RowNumber, "field", ve.Field, "rule", ve.Rule, "error", ve.Message)
		} else {
			logger.Debug("record validation warning", "row", ve.RowNumber, "field", ve.Field, "rule", ve.Rule)
		}
	}
	if !vr.IsValid {
		return &Conversion{Results: results, Validation: vr},
			fmt.Errorf("record validation failed with %d errors", vr.ErrorCount)
	}

	wb, err := coretax.RenderWithOptions(results, c.opts.SellerNPWP, coretax.RenderOptions{
		Logger:             logger,
		HighlightRecovered: true,
		Now:                c.opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	return &Conversion{Results: results, Workbook: wb, Validation: vr}, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the conversion pipeline for one file.
//
// PARAMETERS:
//   - ctx: Checked before any work starts; a cancelled job is reported as failed.
//   - path: The input export.
//
// RETURNS:
//   - A Result containing the outcome of the processing.
func (c *Converter) Run(ctx context.Context, path string) (result Result) {
	startTime := time.Now()
	result = Result{
		JobID:    uuid.New().String(),
		FilePath: path,
	}
	defer func() { result.Stats.ProcessingTime = time.Since(startTime) }()

	logger := c.logger.With("job_id", result.JobID, "file", filepath.Base(path))

	if err := ctx.Err(); err != nil {
		result.Error = fmt.Errorf("conversion skipped: %w", err)
		return result
	}

	logger.Info("processing file")

	// =========================================================================
	// STEP 1: LOAD THE SOURCE TABLE
	// =========================================================================

	table, err := tabular.Load(path, c.opts.Sheet)
	if err != nil {
		result.Error = fmt.Errorf("failed to load table: %w", err)
		return result
	}

	result.Stats.RowsProcessed = len(table.Rows)
	logger.Debug("loaded table", "sheet", table.SheetName, "columns", len(table.Headers), "rows", len(table.Rows))

	// =========================================================================
	// STEP 2-4: TRANSFORM, VALIDATE AND RENDER
	// =========================================================================

	conv, err := c.convert(table, logger)
	if conv != nil {
		result.Stats.RowsRecovered = conv.Recovered()
		c.collectFindings(&result, conv.Validation)
	}
	if err != nil {
		result.Error = err
		return result
	}
	defer conv.Workbook.Close()

	// =========================================================================
	// STEP 5: VERIFY THE EMITTED LAYOUT
	// =========================================================================

	layout := validation.ValidateWorkbook(conv.Workbook.File())
	c.collectFindings(&result, layout)
	if !layout.IsValid {
		for _, ve := range layout.Errors {
			logger.Error("workbook verification failed", "sheet", ve.Sheet, "cell", ve.Cell, "rule", ve.Rule, "error", ve.Message)
		}
		result.Error = fmt.Errorf("workbook verification failed with %d errors", layout.ErrorCount)
		return result
	}

	if c.opts.DryRun {
		logger.Info("dry run, output not written", "rows", result.Stats.RowsProcessed, "recovered", result.Stats.RowsRecovered)
		result.ArchivePath = path
		result.Success = true
		return result
	}

	// =========================================================================
	// STEP 6: WRITE THE OUTPUT FILE
	// =========================================================================

	if c.files == nil {
		result.Error = errors.New("no output directory configured")
		return result
	}
	if err := c.files.EnsureDirectories(); err != nil {
		result.Error = err
		return result
	}

	outputPath := c.files.OutputPath(c.opts.OutputNameFormat, path)
	if err := conv.Workbook.SaveAs(outputPath); err != nil {
		result.Error = fmt.Errorf("failed to write output: %w", err)
		return result
	}

	result.OutputFile = outputPath
	logger.Info("wrote output", "output", outputPath, "rows", result.Stats.RowsProcessed, "recovered", result.Stats.RowsRecovered)

	// =========================================================================
	// STEP 7: ARCHIVE FILES
	// =========================================================================
	// Archive failures are logged; the conversion itself already succeeded.

	result.ArchivePath = path
	if _, err := c.files.ArchiveOutputFile(outputPath); err != nil {
		logger.Warn("failed to archive output", "error", err)
	}
	if archived, err := c.files.ArchiveInputFile(path); err != nil {
		logger.Warn("failed to archive input", "error", err)
	} else {
		result.ArchivePath = archived
	}

	result.Success = true
	return result
}

func (c *Converter) collectFindings(result *Result, vr *validation.ValidationResult) {
	if vr == nil {
		return
	}
	result.Findings = append(result.Findings, vr.Errors...)
	result.Stats.ValidationErrors += vr.ErrorCount
	result.Stats.ValidationWarnings += vr.WarningCount
}

// =============================================================================
// BATCH PROCESSING
// =============================================================================

// RunAll converts paths with at most maxConcurrency files in flight.
// Results are returned in input order. When continueOnError is false the
// first failure cancels the files that have not started yet.
func (c *Converter) RunAll(ctx context.Context, paths []string, maxConcurrency int, continueOnError bool) []Result {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type indexed struct {
		index  int
		result Result
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)
	results := make(chan indexed, len(paths))

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			r := c.Run(ctx, path)
			if !r.Success && !continueOnError {
				cancel()
			}
			results <- indexed{index: i, result: r}
		}(i, path)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]Result, len(paths))
	for r := range results {
		ordered[r.index] = r.result
	}
	return ordered
}

// Summarize folds job results into a processing summary.
func Summarize(results []Result, start, end time.Time) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		StartTime:  start,
		EndTime:    end,
		TotalFiles: len(results),
	}

	for _, r := range results {
		summary.TotalRows += r.Stats.RowsProcessed
		summary.RecoveredRows += r.Stats.RowsRecovered
		summary.ValidationWarnings += r.Stats.ValidationWarnings

		if r.Success {
			summary.SuccessfulFiles++
			summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
				InputFile:     r.FilePath,
				OutputFile:    r.OutputFile,
				ArchivePath:   r.ArchivePath,
				Rows:          r.Stats.RowsProcessed,
				RecoveredRows: r.Stats.RowsRecovered,
				ProcessTime:   r.Stats.ProcessingTime,
			})
			continue
		}

		summary.FailedFiles++
		msg := "unknown error"
		if r.Error != nil {
			msg = r.Error.Error()
		}
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    r.FilePath,
			ErrorMessage: msg,
		})
	}

	return summary
}

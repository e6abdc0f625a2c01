package converter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/erp-coretax-converter/internal/config"
	"github.com/ginjaninja78/erp-coretax-converter/internal/coretax"
	"github.com/ginjaninja78/erp-coretax-converter/internal/tabular"
	"github.com/ginjaninja78/erp-coretax-converter/internal/types"
	"github.com/ginjaninja78/erp-coretax-converter/pkg/utils"
)

const salesCSV = "CustomerCode,Qty,PriceAfterTax,InvoiceAmount\nC1,2,1120,0\nC2,0,nan,0\n"

func newTestFiles(t *testing.T) *utils.FileManager {
	t.Helper()
	root := t.TempDir()
	fm := utils.NewFileManager(
		filepath.Join(root, "input"),
		filepath.Join(root, "output"),
		filepath.Join(root, "input_archive"),
		filepath.Join(root, "output_archive"),
	)
	fm.Now = func() time.Time { return fixedNow }
	require.NoError(t, os.MkdirAll(fm.InputDir, 0o755))
	return fm
}

func newTestConverter(files *utils.FileManager, dryRun bool) *Converter {
	return New(newTestTransformer(), files, Options{
		DryRun: dryRun,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return fixedNow },
	})
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeXLSXInput(t *testing.T, dir, name string, grid [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range grid {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRunWritesAndArchives(t *testing.T) {
	files := newTestFiles(t)
	files.ArchiveOnSuccess = true

	input := writeXLSXInput(t, files.InputDir, "sales.xlsx", [][]any{
		{"CustomerCode", "Qty", "PriceAfterTax", "InvoiceAmount"},
		{"C1", 2, 1120, 0},
		{"C2", 0, "nan", 0},
	})

	result := newTestConverter(files, false).Run(context.Background(), input)
	require.NoError(t, result.Error)
	require.True(t, result.Success)

	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, 2, result.Stats.RowsProcessed)
	assert.Equal(t, 0, result.Stats.RowsRecovered)
	assert.Equal(t, filepath.Join(files.OutputDir, "CoreTax_Import_20250630_140500.xlsx"), result.OutputFile)

	out, err := excelize.OpenFile(result.OutputFile)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, coretax.SheetOrder, out.GetSheetList())
	rows, err := out.GetRows(coretax.SheetDetailFaktur)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1000", rows[1][8])
	assert.Equal(t, "120", rows[1][11])
	assert.Equal(t, "1", rows[2][6])

	assert.NoFileExists(t, input)
	assert.Equal(t, filepath.Join(files.InputArchiveDir, "sales.xlsx"), result.ArchivePath)
	assert.FileExists(t, result.ArchivePath)
	assert.FileExists(t, filepath.Join(files.OutputArchiveDir, filepath.Base(result.OutputFile)))
}

func TestRunDryRun(t *testing.T) {
	files := newTestFiles(t)
	input := writeInput(t, files.InputDir, "sales.csv", salesCSV)

	result := newTestConverter(files, true).Run(context.Background(), input)
	require.NoError(t, result.Error)
	assert.True(t, result.Success)
	assert.Empty(t, result.OutputFile)
	assert.Equal(t, 2, result.Stats.RowsProcessed)

	assert.NoDirExists(t, files.OutputDir)
	assert.FileExists(t, input)
}

func TestRunBatchErrors(t *testing.T) {
	files := newTestFiles(t)

	tests := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{name: "header only", file: "empty.csv", content: "CustomerCode,Qty\n", target: ErrNoRecords},
		{name: "legacy xls", file: "old.xls", content: "binary", target: tabular.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := writeInput(t, files.InputDir, tt.file, tt.content)
			result := newTestConverter(files, false).Run(context.Background(), input)

			assert.False(t, result.Success)
			assert.True(t, errors.Is(result.Error, tt.target), "got %v", result.Error)
			assert.Empty(t, result.OutputFile)
			assert.FileExists(t, input, "failed inputs stay in place")
		})
	}

	t.Run("missing file", func(t *testing.T) {
		result := newTestConverter(files, false).Run(context.Background(), filepath.Join(files.InputDir, "gone.csv"))
		require.Error(t, result.Error)
		assert.Contains(t, result.Error.Error(), "failed to load table")
	})
}

func TestRunCancelled(t *testing.T) {
	files := newTestFiles(t)
	input := writeInput(t, files.InputDir, "sales.csv", salesCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestConverter(files, false).Run(ctx, input)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, context.Canceled)
}

func TestRunAll(t *testing.T) {
	files := newTestFiles(t)
	paths := []string{
		writeInput(t, files.InputDir, "a.csv", salesCSV),
		writeInput(t, files.InputDir, "b.csv", "Qty\n"),
		writeInput(t, files.InputDir, "c.csv", salesCSV),
	}

	results := newTestConverter(files, false).RunAll(context.Background(), paths, 2, true)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, paths[i], r.FilePath, "results keep input order")
	}
	assert.True(t, results[0].Success)
	assert.ErrorIs(t, results[1].Error, ErrNoRecords)
	assert.True(t, results[2].Success)
	assert.NotEqual(t, results[0].OutputFile, results[2].OutputFile, "same-second outputs never collide")

	summary := Summarize(results, fixedNow, fixedNow.Add(time.Second))
	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 2, summary.SuccessfulFiles)
	assert.Equal(t, 1, summary.FailedFiles)
	assert.Equal(t, 4, summary.TotalRows)
	require.Len(t, summary.FailedFilesList, 1)
	assert.True(t, strings.HasSuffix(summary.FailedFilesList[0].InputFile, "b.csv"))
}

func TestRunAllCancelledContext(t *testing.T) {
	files := newTestFiles(t)
	paths := []string{
		writeInput(t, files.InputDir, "a.csv", salesCSV),
		writeInput(t, files.InputDir, "b.csv", salesCSV),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, r := range newTestConverter(files, false).RunAll(ctx, paths, 0, false) {
		assert.False(t, r.Success)
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestConvertRecoveredRow(t *testing.T) {
	conv := newTestConverter(nil, false)

	c, err := conv.Convert(&types.SourceTable{Rows: []types.SourceRow{
		{"Qty": 1.0, "PriceAfterTax": 560.0},
		{"ItemName": panicky{}},
	}})
	require.NoError(t, err)
	defer c.Workbook.Close()

	assert.Equal(t, 1, c.Recovered())
	assert.True(t, c.Validation.IsValid)
	assert.Positive(t, c.Validation.WarningCount)

	rows, err := c.Workbook.Rows(coretax.SheetDetailFaktur)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestConvertOutOfRangeDate(t *testing.T) {
	conv := newTestConverter(nil, false)

	c, err := conv.Convert(&types.SourceTable{Rows: []types.SourceRow{
		{"Qty": 1.0, "PriceAfterTax": 1120.0, types.ColInvoiceDate: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}})
	require.NoError(t, err)
	defer c.Workbook.Close()

	assert.True(t, c.Validation.IsValid)
	assert.Equal(t, "2025-06-30", c.Results[0].Record.InvoiceDate)
}

func TestConvertEmptyTable(t *testing.T) {
	conv := newTestConverter(nil, false)

	_, err := conv.Convert(&types.SourceTable{Headers: []string{"Qty"}})
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = conv.Convert(nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestRunWithoutFileManager(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "sales.csv", salesCSV)

	result := newTestConverter(nil, false).Run(context.Background(), input)
	assert.False(t, result.Success)
	assert.EqualError(t, result.Error, "no output directory configured")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Converter.VATRate = 0.11
	cfg.Converter.SellerNPWP = "012345678901234"
	cfg.InputSheet = "Sales"

	conv := NewFromConfig(cfg, nil)
	assert.True(t, conv.Transformer().VATRate().Equal(decimal.RequireFromString("0.11")))
	assert.Equal(t, "012345678901234", conv.opts.SellerNPWP)
	assert.Equal(t, "Sales", conv.opts.Sheet)
	assert.False(t, conv.files.ArchiveOnSuccess)
}

package coretax

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Workbook is a rendered CoreTax import workbook.
type Workbook struct {
	file *excelize.File
}

// File exposes the underlying excelize file.
func (w *Workbook) File() *excelize.File {
	return w.file
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Rows returns the formatted cell values of a sheet.
func (w *Workbook) Rows(sheet string) ([][]string, error) {
	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// WriteTo serializes the workbook as .xlsx to dst.
func (w *Workbook) WriteTo(dst io.Writer) (int64, error) {
	n, err := w.file.WriteTo(dst)
	if err != nil {
		return n, fmt.Errorf("failed to write workbook: %w", err)
	}
	return n, nil
}

// Bytes serializes the workbook as .xlsx.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveAs writes the workbook to path.
func (w *Workbook) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook to %s: %w", path, err)
	}
	return nil
}

// Close releases temporary files held by the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

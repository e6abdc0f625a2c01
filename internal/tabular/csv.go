package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readCSV returns the cell grid of a delimited text file. Every non-empty
// cell is a string; the transformer does the numeric coercion.
func readCSV(r io.Reader) ([][]any, error) {
	br := bufio.NewReader(r)

	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	configureReader(reader, peekFirstLine(br))

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	grid := make([][]any, len(records))
	for i, record := range records {
		cells := make([]any, len(record))
		for j, field := range record {
			if strings.TrimSpace(field) == "" {
				continue
			}
			cells[j] = field
		}
		grid[i] = cells
	}
	return grid, nil
}

// configureReader picks the delimiter from the header line and relaxes
// quoting and field-count rules, as ERP exports are rarely strict.
func configureReader(reader *csv.Reader, headerLine string) {
	reader.Comma = detectDelimiter(headerLine)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// detectDelimiter returns the most frequent of ',', ';' and tab in line.
// Ties and lines with none of them resolve to ','.
func detectDelimiter(line string) rune {
	best, bestCount := ',', strings.Count(line, ",")
	for _, candidate := range []rune{';', '\t'} {
		if n := strings.Count(line, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

// peekFirstLine returns the first line without consuming it.
func peekFirstLine(br *bufio.Reader) string {
	for size := 512; ; size *= 2 {
		buf, err := br.Peek(size)
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return string(buf[:i])
		}
		if err != nil || size >= br.Size() {
			return string(buf)
		}
	}
}

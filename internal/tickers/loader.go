package tickers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"StockHistory/internal/config"
)

// Load reads the ticker symbols of column from the CSV file at path, in file order.
// Blank cells are skipped and repeated symbols are kept once.
func Load(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &config.Error{Field: "tickers.path", Err: err}
	}
	defer f.Close()

	symbols, err := Read(f, column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return symbols, nil
}

// Read extracts column from CSV data with a header row.
func Read(r io.Reader, column string) ([]string, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &config.Error{Field: "tickers.column", Err: fmt.Errorf("empty ticker list, no column %q", column)}
	}
	if err != nil {
		return nil, &config.Error{Field: "tickers.path", Err: err}
	}

	idx := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &config.Error{Field: "tickers.column", Err: fmt.Errorf("column %q not found in header %v", column, header)}
	}

	var symbols []string
	seen := make(map[string]bool)
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &config.Error{Field: "tickers.path", Err: err}
		}
		if idx >= len(record) {
			continue
		}
		sym := strings.TrimSpace(record[idx])
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

package invoice

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/shopspring/decimal"
)

// Header is the first CSV record.
var Header = []string{"Date_or_date_range", "Hours_worked", "Comments"}

// WriteCSV writes the header and one record per row. Records end in CRLF.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, r := range rows {
		if err := writer.Write(r.Record()); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteFile renders rows in memory and then replaces path, so a failed
// encode never leaves a partial file.
func WriteFile(path string, rows []Row) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadCSV parses a CSV produced by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("CSV is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected CSV header %q", header)
	}

	rows := []Row{}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		hours, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("invalid hours %q on line %d: %w", rec[1], len(rows)+2, err)
		}
		rows = append(rows, Row{Date: rec[0], Hours: hours, Comment: rec[2]})
	}
	return rows, nil
}

// ReadFile parses the CSV at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

package seedrepo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"seed-ingest/internal/model"
	"seed-ingest/internal/validator"
)

func loadData(dir string) (map[string][]model.DataRow, model.Violations, error) {
	files, present, err := listFiles(dir, ".csv")
	if err != nil || !present {
		return nil, nil, err
	}

	data := make(map[string][]model.DataRow, len(files))
	var violations model.Violations
	for _, path := range files {
		symbol := strings.TrimSuffix(filepath.Base(path), ".csv")
		rel := filepath.Join(DataDir, filepath.Base(path))

		if vs := validator.ValidateName(symbol); len(vs) > 0 {
			for _, v := range vs {
				v.File = rel
				violations = append(violations, v)
			}
			continue
		}

		file, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		rows, vs, err := ReadCSV(symbol, file)
		file.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		for i := range vs {
			vs[i].File = rel
		}
		violations = append(violations, vs...)
		data[symbol] = rows
	}
	return data, violations, nil
}

// ReadCSV parses headerless seed rows for symbol. Rows that fail to parse are
// dropped and reported; ordering is checked on the rows that remain.
func ReadCSV(symbol string, r io.Reader) ([]model.DataRow, model.Violations, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var (
		rows       []model.DataRow
		lines      []int
		violations model.Violations
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				violations = append(violations, model.Violation{
					Kind:    model.KindSchema,
					Symbol:  symbol,
					Line:    parseErr.Line,
					Message: parseErr.Err.Error(),
				})
				continue
			}
			return nil, nil, err
		}

		line, _ := reader.FieldPos(0)
		row, vs := validator.ParseRow(symbol, line, record)
		if len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		rows = append(rows, row)
		lines = append(lines, line)
	}

	for _, v := range validator.ValidateSeries(symbol, rows) {
		v.Line = lines[v.Line-1]
		violations = append(violations, v)
	}
	return rows, violations, nil
}

// WriteCSV emits rows in the canonical seed format.
func WriteCSV(w io.Writer, rows []model.DataRow) error {
	writer := csv.NewWriter(w)
	for _, row := range rows {
		record := []string{
			model.FormatTime(row.Time),
			row.Open.String(),
			row.High.String(),
			row.Low.String(),
			row.Close.String(),
			row.Volume.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

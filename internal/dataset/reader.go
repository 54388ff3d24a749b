// Package dataset reads tabular record sets from CSV and Excel files and
// writes pipeline outputs back out as CSV and JSON.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// Reader loads record sets from files or streams.
type Reader struct {
	logger *slog.Logger

	// MissingMarkers override the defaults when non-nil.
	MissingMarkers []string
}

// NewReader creates a reader with default missing-value markers.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// ReadFile loads a record set, dispatching on the file extension. CSV is the
// default; .xlsx and .xlsm go through the Excel reader.
func (r *Reader) ReadFile(filePath string) (*domain.RecordSet, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		return r.ReadExcel(filePath)
	default:
		return r.ReadCSVFile(filePath)
	}
}

// ReadCSVFile loads a record set from a CSV file on disk.
func (r *Reader) ReadCSVFile(filePath string) (*domain.RecordSet, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to open %s", filePath), err)
	}
	defer f.Close()
	return r.ReadCSV(f)
}

// ReadCSV loads a record set from a CSV stream. The first row is the header;
// every record must have the same number of fields as the header.
func (r *Reader) ReadCSV(reader io.Reader) (*domain.RecordSet, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &apperrors.EmptyInputError{}
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read CSV header", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	var rows [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read CSV record %d", len(rows)+2), err)
		}
		rows = append(rows, record)
	}

	rs := r.newRecordSet(header, rows)
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded CSV record set",
		slog.Int("rows", rs.NumRows()),
		slog.Int("features", rs.NumFeatures()))

	return rs, nil
}

// ReadExcel loads a record set from the first non-empty sheet of a workbook.
// Excel rows may come back ragged; short rows are padded with empty cells so
// every row matches the header width.
func (r *Reader) ReadExcel(filePath string) (*domain.RecordSet, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to open %s", filePath), err)
	}
	defer f.Close()

	var rows [][]string
	var sheetName string
	for _, name := range f.GetSheetList() {
		sheetRows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if len(sheetRows) > 0 {
			rows = sheetRows
			sheetName = name
			break
		}
	}
	if len(rows) == 0 {
		return nil, &apperrors.EmptyInputError{}
	}

	header := rows[0]
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		padded := make([]string, len(header))
		copy(padded, row)
		data = append(data, padded)
	}

	rs := r.newRecordSet(header, data)
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded Excel record set",
		slog.String("sheet", sheetName),
		slog.Int("rows", rs.NumRows()),
		slog.Int("features", rs.NumFeatures()))

	return rs, nil
}

func (r *Reader) newRecordSet(header []string, rows [][]string) *domain.RecordSet {
	markers := r.MissingMarkers
	if markers == nil {
		markers = domain.DefaultMissingMarkers
	}
	return &domain.RecordSet{
		Features:       header,
		Rows:           rows,
		MissingMarkers: markers,
	}
}

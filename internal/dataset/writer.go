package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	apperrors "ehrkit/internal/errors"
	"ehrkit/pkg/contracts/domain"
)

// Writer exports pipeline outputs under a base directory.
type Writer struct {
	logger    *slog.Logger
	exportDir string

	// BOMPrefix adds a UTF-8 BOM to CSV files for Excel compatibility.
	BOMPrefix bool
}

// NewWriter creates a writer rooted at exportDir.
func NewWriter(logger *slog.Logger, exportDir string) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger, exportDir: exportDir, BOMPrefix: true}
}

// WriteMatrixCSV writes a dense matrix with its column names as the header.
// NaN cells (unimputed missing entries) are written as empty fields.
func (w *Writer) WriteMatrixCSV(fileName string, matrix *domain.Matrix) error {
	records := make([][]string, 0, matrix.NumRows())
	for _, row := range matrix.Data {
		record := make([]string, len(row))
		for i, v := range row {
			if v != v { // NaN
				record[i] = ""
				continue
			}
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		records = append(records, record)
	}
	return w.writeCSV(fileName, matrix.Columns, records)
}

// WriteReportCSV writes the per-feature section of a quality report.
func (w *Writer) WriteReportCSV(fileName string, report *domain.QualityReport) error {
	headers := []string{"feature", "type", "missing_abs", "missing_pct", "distinct", "mean", "median", "std", "min", "max", "outlier_rows"}
	records := make([][]string, 0, len(report.Features))
	for _, fq := range report.Features {
		records = append(records, []string{
			fq.Feature,
			string(fq.Type),
			strconv.Itoa(fq.MissingAbs),
			strconv.FormatFloat(fq.MissingPct, 'f', 2, 64),
			strconv.Itoa(fq.DistinctCount),
			formatOptional(fq.Mean),
			formatOptional(fq.Median),
			formatOptional(fq.Std),
			formatOptional(fq.Min),
			formatOptional(fq.Max),
			fmt.Sprintf("%v", fq.OutlierRows),
		})
	}
	return w.writeCSV(fileName, headers, records)
}

// WriteJSON marshals any export payload (quality report, encoding map, run
// result) as indented JSON.
func (w *Writer) WriteJSON(fileName string, payload interface{}) error {
	fullPath := w.resolvePath(fileName)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return apperrors.NewStorageError("failed to create export directory", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to marshal %s", fileName), err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to write %s", fileName), err)
	}

	w.logger.Debug("wrote JSON export", slog.String("path", fullPath))
	return nil
}

func (w *Writer) writeCSV(fileName string, headers []string, records [][]string) error {
	fullPath := w.resolvePath(fileName)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return apperrors.NewStorageError("failed to create export directory", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create %s", fileName), err)
	}
	defer f.Close()

	if w.BOMPrefix {
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return apperrors.NewStorageError("failed to write BOM", err)
		}
	}

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write(headers); err != nil {
		return apperrors.NewStorageError("failed to write CSV header", err)
	}
	for i, record := range records {
		if err := cw.Write(record); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to write CSV record %d", i), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperrors.NewStorageError("failed to flush CSV", err)
	}

	w.logger.Debug("wrote CSV export",
		slog.String("path", fullPath),
		slog.Int("records", len(records)))
	return nil
}

func (w *Writer) resolvePath(fileName string) string {
	if filepath.IsAbs(fileName) {
		return fileName
	}
	return filepath.Join(w.exportDir, fileName)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

package domain

import "math"

// Matrix is the dense numeric output of the pipeline: one row per record,
// one or more columns per original feature. Missing entries are NaN until
// imputation fills them.
type Matrix struct {
	Columns []string    `json:"columns"`
	Data    [][]float64 `json:"data"`
}

// NewMatrix allocates a rows-by-columns matrix filled with NaN.
func NewMatrix(columns []string, rows int) *Matrix {
	data := make([][]float64, rows)
	for i := range data {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		data[i] = row
	}
	return &Matrix{Columns: columns, Data: data}
}

// NumRows returns the number of rows.
func (m *Matrix) NumRows() int {
	return len(m.Data)
}

// NumCols returns the number of columns.
func (m *Matrix) NumCols() int {
	return len(m.Columns)
}

// At returns the value at (row, col).
func (m *Matrix) At(row, col int) float64 {
	return m.Data[row][col]
}

// ColumnIndex returns the index of the named column, or -1.
func (m *Matrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the values in the given column.
func (m *Matrix) Column(col int) []float64 {
	out := make([]float64, len(m.Data))
	for i, row := range m.Data {
		out[i] = row[col]
	}
	return out
}

// Clone returns a deep copy. Pipeline stages never mutate their input
// matrix; they clone and return new outputs.
func (m *Matrix) Clone() *Matrix {
	cols := make([]string, len(m.Columns))
	copy(cols, m.Columns)
	data := make([][]float64, len(m.Data))
	for i, row := range m.Data {
		r := make([]float64, len(row))
		copy(r, row)
		data[i] = r
	}
	return &Matrix{Columns: cols, Data: data}
}

// MissingnessMask records which matrix entries held missing values before
// imputation. It is computed before any fill and never mutated afterwards;
// it is the audit trail, not working state.
type MissingnessMask struct {
	Mask [][]bool `json:"mask"`
}

// NewMissingnessMask allocates an all-false mask of the given shape.
func NewMissingnessMask(rows, cols int) *MissingnessMask {
	mask := make([][]bool, rows)
	for i := range mask {
		mask[i] = make([]bool, cols)
	}
	return &MissingnessMask{Mask: mask}
}

// At reports whether the entry at (row, col) was missing.
func (m *MissingnessMask) At(row, col int) bool {
	return m.Mask[row][col]
}

// NumRows returns the number of rows.
func (m *MissingnessMask) NumRows() int {
	return len(m.Mask)
}

// CountColumn returns the number of masked entries in one column.
func (m *MissingnessMask) CountColumn(col int) int {
	count := 0
	for i := range m.Mask {
		if m.Mask[i][col] {
			count++
		}
	}
	return count
}

// CountRows returns the number of rows with at least one masked entry among
// the given columns. For a multi-column encoded feature this equals the
// number of missing markers the feature had in the original record set.
func (m *MissingnessMask) CountRows(cols []int) int {
	count := 0
	for i := range m.Mask {
		for _, c := range cols {
			if m.Mask[i][c] {
				count++
				break
			}
		}
	}
	return count
}

// Clone returns a deep copy.
func (m *MissingnessMask) Clone() *MissingnessMask {
	mask := make([][]bool, len(m.Mask))
	for i, row := range m.Mask {
		r := make([]bool, len(row))
		copy(r, row)
		mask[i] = r
	}
	return &MissingnessMask{Mask: mask}
}

package models

// Matrix is a row-major feature matrix. Rows are records, columns are features.
type Matrix [][]float64

// Dims returns the row count and the width of the first row.
func (m Matrix) Dims() (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// IsRagged reports whether any row differs in width from the first.
func (m Matrix) IsRagged() bool {
	_, cols := m.Dims()
	for _, row := range m {
		if len(row) != cols {
			return true
		}
	}
	return false
}

func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

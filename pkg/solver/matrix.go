// Package solver assembles the sparse symmetric positive-definite linear
// system for one axis of the B2B quadratic placement objective and
// solves it with a parallel, diagonal-preconditioned conjugate-gradient
// iteration.
package solver

// Matrix is a sparse symmetric matrix stored as one adjacency map per
// row. Off-diagonal entries are accumulated independently for each side
// by the assembler (callers add both A[i][j] and A[j][i] explicitly),
// which keeps assembly a single pass with no post-hoc symmetrization.
type Matrix struct {
	N    int
	rows []map[int]float64
}

// NewMatrix returns an n x n zero matrix.
func NewMatrix(n int) *Matrix {
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = make(map[int]float64)
	}
	return &Matrix{N: n, rows: rows}
}

// Add accumulates val into A[i][j].
func (m *Matrix) Add(i, j int, val float64) {
	m.rows[i][j] += val
}

// Diag returns A[i][i].
func (m *Matrix) Diag(i int) float64 {
	return m.rows[i][i]
}

// mulVecRange computes y = A*x for rows [lo, hi).
func (m *Matrix) mulVecRange(x, y []float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		var sum float64
		for j, v := range m.rows[i] {
			sum += v * x[j]
		}
		y[i] = sum
	}
}

// System is a linear system A*x = b for one placement axis, plus the
// index<->PU-id mapping the assembler used to build it.
type System struct {
	A       *Matrix
	B       []float64
	PUIndex map[string]int // PU id -> unknown index
	IndexPU []string       // unknown index -> PU id
}

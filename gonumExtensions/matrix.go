package gonumExtensions

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eye returns a band matrix
func Eye(m, n, k int) mat.Matrix {
	if k == 0 {
		data := make([]float64, int(math.Min(float64(m), float64(n))))
		for entry := range data {
			data[entry] = 1
		}
		return mat.NewDiagonalRect(m, n, data)
	}
	panic("Not yet implemented")
}

// NANORIF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

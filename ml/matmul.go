// matmul.go - Matrixmultiplikation ueber gonum/blas32
// Linear- und Faltungs-Layer reduzieren sich alle auf Gemm.
package ml

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Gemm berechnet c = alpha * op(a) * op(b) + beta * c.
// op(a) ist m x k, op(b) ist k x n, c ist m x n, alles Row-Major.
func Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	if m == 0 || n == 0 {
		return
	}

	if k == 0 {
		for i := range c[:m*n] {
			c[i] *= beta
		}
		return
	}

	ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	ta := blas.NoTrans
	if transA {
		ga = blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
		ta = blas.Trans
	}

	gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	tb := blas.NoTrans
	if transB {
		gb = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
		tb = blas.Trans
	}

	blas32.Gemm(ta, tb, alpha, ga, gb, beta, blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}

// MatMul multipliziert zwei Matrizen [m, k] x [k, n] und gibt [m, n] zurueck
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.Rank() != 2 || b.Rank() != 2 || a.Dim(1) != b.Dim(0) {
		return nil, &ShapeError{Op: "matmul", Want: Shape{-1, b.Dim(0)}, Got: a.Shape}
	}

	c := New(a.Dim(0), b.Dim(1))
	Gemm(false, false, a.Dim(0), b.Dim(1), a.Dim(1), 1, a.Data, b.Data, 0, c.Data)
	return c, nil
}

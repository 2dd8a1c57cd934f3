// Package reference computes the expected product on the host with a plain
// triple loop. It rebuilds its inputs from the fixed pattern instead of reading
// the generator's buffers, so a bug in generation cannot hide in both paths.
package reference

import "github.com/qrv0/gemmcheck/internal/matrix"

// Inputs returns row-major a (M x N) with a[i][j] = j+1 and b (N x P) with
// b[i][j] = i+1.
func Inputs(d matrix.Dims) (a, b [][]float64, err error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	a = rows(d.M, d.N)
	for i := range a {
		for j := range a[i] {
			a[i][j] = float64(j) + 1
		}
	}
	b = rows(d.N, d.P)
	for i := range b {
		for j := range b[i] {
			b[i][j] = float64(i) + 1
		}
	}
	return a, b, nil
}

// Multiply returns the row-major M x P product of the fixed inputs.
// The i, k, j nesting is part of the contract: it fixes the rounding order.
func Multiply(d matrix.Dims) ([][]float64, error) {
	a, b, err := Inputs(d)
	if err != nil {
		return nil, err
	}
	c := rows(d.M, d.P)
	for i := 0; i < d.M; i++ {
		ci := c[i]
		for k := 0; k < d.N; k++ {
			aik := a[i][k]
			bk := b[k]
			for j := 0; j < d.P; j++ {
				ci[j] += aik * bk[j]
			}
		}
	}
	return c, nil
}

// ClosedForm is the value of every element of the product for inner
// dimension n: sum_{k=1..n} k*k = n(n+1)(2n+1)/6.
func ClosedForm(n int) float64 {
	v := int64(n) * int64(n+1) * int64(2*n+1) / 6
	return float64(v)
}

// rows allocates an r x c zeroed 2D slice over one backing array.
func rows(r, c int) [][]float64 {
	backing := make([]float64, r*c)
	out := make([][]float64, r)
	for i := range out {
		out[i] = backing[i*c : (i+1)*c : (i+1)*c]
	}
	return out
}

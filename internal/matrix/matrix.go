package matrix

import (
	"errors"
	"fmt"
)

var (
	// ErrBadSize is returned when the base size cannot be split into M, N, P.
	ErrBadSize = errors.New("matrix: base size must be a positive multiple of 8")

	// ErrBadShape is returned for non-positive row or column counts.
	ErrBadShape = errors.New("matrix: invalid shape")

	// ErrOutOfRange is returned by At/Set for indices outside the matrix.
	ErrOutOfRange = errors.New("matrix: index out of range")
)

// DefaultSize is the base size used when none is configured.
const DefaultSize = 600 * 8

// Dims holds the problem dimensions of c(M,P) = a(M,N) * b(N,P).
type Dims struct {
	M int // rows of a and c
	N int // shared inner dimension
	P int // columns of b and c
}

// DimsFromSize derives M = size/8, N = size/4, P = size/2.
func DimsFromSize(size int) (Dims, error) {
	if size <= 0 || size%8 != 0 {
		return Dims{}, fmt.Errorf("%w: got %d", ErrBadSize, size)
	}
	return Dims{M: size / 8, N: size / 4, P: size / 2}, nil
}

// Validate reports ErrBadShape if any dimension is not positive.
func (d Dims) Validate() error {
	if d.M <= 0 || d.N <= 0 || d.P <= 0 {
		return fmt.Errorf("%w: m=%d n=%d p=%d", ErrBadShape, d.M, d.N, d.P)
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("c(%d,%d) = a(%d,%d) * b(%d,%d)", d.M, d.P, d.M, d.N, d.N, d.P)
}

// Dense is a column-major float64 matrix backed by a single slice.
// Element (i, j) lives at Data[i + j*Stride]; Stride is the leading dimension.
type Dense struct {
	Rows   int
	Cols   int
	Stride int
	Data   []float64
}

// NewDense allocates a rows x cols matrix with Stride == rows.
func NewDense(rows, cols int) (*Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}
	return &Dense{Rows: rows, Cols: cols, Stride: rows, Data: make([]float64, rows*cols)}, nil
}

// Index returns the buffer offset of element (i, j). It does not bounds-check.
func (d *Dense) Index(i, j int) int { return i + j*d.Stride }

func (d *Dense) At(i, j int) (float64, error) {
	if i < 0 || i >= d.Rows || j < 0 || j >= d.Cols {
		return 0, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfRange, i, j, d.Rows, d.Cols)
	}
	return d.Data[d.Index(i, j)], nil
}

func (d *Dense) Set(i, j int, v float64) error {
	if i < 0 || i >= d.Rows || j < 0 || j >= d.Cols {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfRange, i, j, d.Rows, d.Cols)
	}
	d.Data[d.Index(i, j)] = v
	return nil
}

//go:build !cuda

package gpu

import "errors"

// ErrUnavailable is returned by every call in builds without the cuda tag.
var ErrUnavailable = errors.New("cuda: not built, rebuild with -tags cuda")

func Init() error { return ErrUnavailable }

func Available() bool { return false }

func DeviceName() string { return "" }

func MultiProcessors() int { return 0 }

func Dgemm(transA, transB byte, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) error {
	return ErrUnavailable
}

func Close() {}

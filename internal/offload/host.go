package offload

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

func init() {
	Register("host", func() Backend { return &Host{} })
}

// Host runs GEMM on the CPU through gonum's native BLAS, which parallelizes
// internally.
type Host struct {
	impl gonum.Implementation
}

func (*Host) Name() string { return "host" }

func (*Host) Open() (Device, error) { return hostDevice("host"), nil }

func (*Host) Close() error { return nil }

func (h *Host) Gemm(q *Queue, tA, tB Transpose, m, n, k int, alpha float64,
	a *Buffer, lda int, b *Buffer, ldb int, beta float64, c *Buffer, ldc int) error {
	if err := CheckGemm(tA, tB, m, n, k, a, lda, b, ldb, c, ldc); err != nil {
		return err
	}
	return q.Submit(func() error {
		// gonum is row-major; a column-major buffer is the row-major transpose,
		// so column-major C = op(A)op(B) is row-major C^T = op(B)^T op(A)^T.
		h.impl.Dgemm(blasTranspose(tB), blasTranspose(tA), n, m, k,
			alpha, b.Data(), ldb, a.Data(), lda, beta, c.Data(), ldc)
		return nil
	})
}

func blasTranspose(t Transpose) blas.Transpose {
	if t == Trans {
		return blas.Trans
	}
	return blas.NoTrans
}

// hostDevice describes the CPU the process runs on.
func hostDevice(backend string) Device {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOOS + "/" + runtime.GOARCH + " cpu"
	}
	return Device{
		Name:         name,
		Vendor:       cpuid.CPU.VendorString,
		Backend:      backend,
		ComputeUnits: runtime.GOMAXPROCS(0),
	}
}

// HostFeatures lists the SIMD extensions the host CPU reports.
func HostFeatures() []string {
	var out []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "sse2"},
		{cpuid.AVX, "avx"},
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "asimd"},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	return out
}

package offload

import "github.com/qrv0/gemmcheck/internal/gpu"

func init() {
	Register("cuda", func() Backend { return &CUDA{} })
}

// CUDA offloads to cuBLAS on device 0. Builds without the cuda tag fail Open
// with StatusDeviceNotFound.
type CUDA struct{}

func (*CUDA) Name() string { return "cuda" }

func (*CUDA) Open() (Device, error) {
	if err := gpu.Init(); err != nil {
		return Device{}, &Fault{Status: StatusDeviceNotFound, Op: "open", Message: err.Error()}
	}
	return Device{Name: gpu.DeviceName(), Vendor: "NVIDIA", Backend: "cuda", ComputeUnits: gpu.MultiProcessors()}, nil
}

func (*CUDA) Close() error { return nil }

func (*CUDA) Gemm(q *Queue, tA, tB Transpose, m, n, k int, alpha float64,
	a *Buffer, lda int, b *Buffer, ldb int, beta float64, c *Buffer, ldc int) error {
	if err := CheckGemm(tA, tB, m, n, k, a, lda, b, ldb, c, ldc); err != nil {
		return err
	}
	return q.Submit(func() error {
		err := gpu.Dgemm(byte(tA), byte(tB), m, n, k, alpha, a.Data(), lda, b.Data(), ldb, beta, c.Data(), ldc)
		if err != nil {
			return &Fault{Status: StatusOutOfResources, Op: "cublasDgemm", Message: err.Error()}
		}
		return nil
	})
}

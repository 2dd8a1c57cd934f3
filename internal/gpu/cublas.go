//go:build cuda

package gpu

/*
#cgo LDFLAGS: -lcublas -lcudart
#include <stdio.h>
#include <stdlib.h>
#include <cuda_runtime.h>
#include <cublas_v2.h>

static const char* cudaErrStr(cudaError_t e) { return cudaGetErrorString(e); }

typedef struct {
    cublasHandle_t handle;
    int ok;
    char name[256];
    int sms;
} gpu_ctx;

static gpu_ctx G = {0};

static const char* gpu_init() {
    if (G.ok) return NULL;
    struct cudaDeviceProp prop;
    cudaError_t ce = cudaGetDeviceProperties(&prop, 0);
    if (ce != cudaSuccess) return cudaErrStr(ce);
    snprintf(G.name, sizeof(G.name), "%s", prop.name);
    G.sms = prop.multiProcessorCount;
    cublasStatus_t st = cublasCreate(&G.handle);
    if (st != CUBLAS_STATUS_SUCCESS) return "cublasCreate failed";
    G.ok = 1;
    return NULL;
}

static void gpu_close() {
    if (G.ok) { cublasDestroy(G.handle); G.ok = 0; }
}

static const char* gpu_name() { return G.name; }
static int gpu_sms() { return G.sms; }

// Column-major C = alpha*op(A)*op(B) + beta*C, the layout cuBLAS uses natively.
static const char* gpu_dgemm(char ta, char tb, int m, int n, int k, double alpha,
                             const double* A, size_t asz, int lda,
                             const double* B, size_t bsz, int ldb,
                             double beta, double* C, size_t csz, int ldc) {
    if (!G.ok) return "not initialized";
    double *dA = NULL, *dB = NULL, *dC = NULL;
    cudaError_t ce;
    ce = cudaMalloc((void**)&dA, asz * sizeof(double)); if (ce != cudaSuccess) return cudaErrStr(ce);
    ce = cudaMalloc((void**)&dB, bsz * sizeof(double)); if (ce != cudaSuccess) { cudaFree(dA); return cudaErrStr(ce); }
    ce = cudaMalloc((void**)&dC, csz * sizeof(double)); if (ce != cudaSuccess) { cudaFree(dA); cudaFree(dB); return cudaErrStr(ce); }
    ce = cudaMemcpy(dA, A, asz * sizeof(double), cudaMemcpyHostToDevice); if (ce != cudaSuccess) goto fail;
    ce = cudaMemcpy(dB, B, bsz * sizeof(double), cudaMemcpyHostToDevice); if (ce != cudaSuccess) goto fail;
    ce = cudaMemcpy(dC, C, csz * sizeof(double), cudaMemcpyHostToDevice); if (ce != cudaSuccess) goto fail;
    cublasOperation_t opA = ta == 'T' ? CUBLAS_OP_T : CUBLAS_OP_N;
    cublasOperation_t opB = tb == 'T' ? CUBLAS_OP_T : CUBLAS_OP_N;
    cublasStatus_t st = cublasDgemm(G.handle, opA, opB, m, n, k, &alpha, dA, lda, dB, ldb, &beta, dC, ldc);
    if (st != CUBLAS_STATUS_SUCCESS) { cudaFree(dA); cudaFree(dB); cudaFree(dC); return "cublasDgemm failed"; }
    ce = cudaMemcpy(C, dC, csz * sizeof(double), cudaMemcpyDeviceToHost);
fail:
    cudaFree(dA); cudaFree(dB); cudaFree(dC);
    if (ce != cudaSuccess) return cudaErrStr(ce);
    return NULL;
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init creates the cuBLAS handle on device 0. Later calls return the first result.
func Init() error {
	initOnce.Do(func() {
		if msg := C.gpu_init(); msg != nil {
			initErr = errors.New("cuda: " + C.GoString(msg))
		}
	})
	return initErr
}

// Available reports whether CUDA/cuBLAS is usable (build tag + init ok).
func Available() bool { return Init() == nil }

func DeviceName() string { return C.GoString(C.gpu_name()) }

func MultiProcessors() int { return int(C.gpu_sms()) }

// Dgemm runs a column-major double GEMM on the device, staging a, b and c
// through device memory. c is overwritten with the result.
func Dgemm(transA, transB byte, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) error {
	if err := Init(); err != nil {
		return err
	}
	if m == 0 || n == 0 {
		return nil
	}
	if len(a) == 0 || len(b) == 0 || len(c) == 0 {
		return errors.New("cuda: empty operand")
	}
	msg := C.gpu_dgemm(C.char(transA), C.char(transB), C.int(m), C.int(n), C.int(k), C.double(alpha),
		(*C.double)(unsafe.Pointer(&a[0])), C.size_t(len(a)), C.int(lda),
		(*C.double)(unsafe.Pointer(&b[0])), C.size_t(len(b)), C.int(ldb),
		C.double(beta),
		(*C.double)(unsafe.Pointer(&c[0])), C.size_t(len(c)), C.int(ldc))
	if msg != nil {
		return errors.New("cuda: " + C.GoString(msg))
	}
	return nil
}

func Close() { C.gpu_close() }

package offload

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

func init() {
	Register("parallel", func() Backend { return &Parallel{} })
}

// Parallel is a pure Go GEMM that splits C into column blocks and runs the
// blocks on an errgroup bounded by Workers.
type Parallel struct {
	Workers int // <= 0 means GOMAXPROCS
}

func (*Parallel) Name() string { return "parallel" }

func (p *Parallel) Open() (Device, error) {
	dev := hostDevice("parallel")
	dev.ComputeUnits = p.workers()
	return dev, nil
}

func (*Parallel) Close() error { return nil }

func (p *Parallel) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Parallel) Gemm(q *Queue, tA, tB Transpose, m, n, k int, alpha float64,
	a *Buffer, lda int, b *Buffer, ldb int, beta float64, c *Buffer, ldc int) error {
	if err := CheckGemm(tA, tB, m, n, k, a, lda, b, ldb, c, ldc); err != nil {
		return err
	}
	workers := p.workers()
	return q.Submit(func() error {
		ad, bd, cd := a.Data(), b.Data(), c.Data()
		// a few blocks per worker so uneven columns still balance
		block := max(1, n/(workers*4))
		var g errgroup.Group
		g.SetLimit(workers)
		for j0 := 0; j0 < n; j0 += block {
			j1 := min(j0+block, n)
			g.Go(func() error {
				return guard(func() {
					gemmColumns(j0, j1, tA, tB, m, k, alpha, ad, lda, bd, ldb, beta, cd, ldc)
				})
			})
		}
		return g.Wait()
	})
}

// guard runs fn and turns a panic into an error. Block goroutines are not
// covered by the queue's own recover.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parallel block: panic: %v", r)
		}
	}()
	fn()
	return nil
}

// gemmColumns computes columns [j0, j1) of column-major C.
func gemmColumns(j0, j1 int, tA, tB Transpose, m, k int, alpha float64,
	a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	for j := j0; j < j1; j++ {
		cj := c[j*ldc : j*ldc+m]
		switch beta {
		case 0:
			clear(cj)
		case 1:
		default:
			for i := range cj {
				cj[i] *= beta
			}
		}
		for l := 0; l < k; l++ {
			var blj float64
			if tB == Trans {
				blj = b[j+l*ldb]
			} else {
				blj = b[l+j*ldb]
			}
			t := alpha * blj
			if t == 0 {
				continue
			}
			if tA == NoTrans {
				al := a[l*lda : l*lda+m]
				for i, v := range al {
					cj[i] += t * v
				}
				continue
			}
			for i := range cj {
				cj[i] += t * a[l+i*lda]
			}
		}
	}
}

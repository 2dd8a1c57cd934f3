package offload

import (
	"fmt"
	"strings"
)

// Injection selects a failure for Injector to introduce.
type Injection int

const (
	InjectNone Injection = iota
	// InjectCorrupt adds Delta to one element of C after the real multiply.
	InjectCorrupt
	// InjectFault rejects the call with a synchronous fault.
	InjectFault
	// InjectAsync queues work that fails, surfacing at the next barrier.
	InjectAsync
)

func (i Injection) String() string {
	switch i {
	case InjectNone:
		return "none"
	case InjectCorrupt:
		return "corrupt"
	case InjectFault:
		return "fault"
	case InjectAsync:
		return "async"
	}
	return fmt.Sprintf("Injection(%d)", int(i))
}

func ParseInjection(s string) (Injection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return InjectNone, nil
	case "corrupt":
		return InjectCorrupt, nil
	case "fault", "sync":
		return InjectFault, nil
	case "async":
		return InjectAsync, nil
	}
	return InjectNone, fmt.Errorf("offload: unknown injection %q", s)
}

// Injector wraps a backend and perturbs its GEMM.
type Injector struct {
	Backend
	Mode     Injection
	Row, Col int     // element of C hit by InjectCorrupt
	Delta    float64 // 0 means +1.0
}

func (in *Injector) Name() string {
	if in.Mode == InjectNone {
		return in.Backend.Name()
	}
	return in.Backend.Name() + "+" + in.Mode.String()
}

func (in *Injector) Gemm(q *Queue, tA, tB Transpose, m, n, k int, alpha float64,
	a *Buffer, lda int, b *Buffer, ldb int, beta float64, c *Buffer, ldc int) error {
	switch in.Mode {
	case InjectFault:
		return &Fault{Status: StatusInvalidOperation, Op: "gemm", Message: "injected synchronous fault"}
	case InjectAsync:
		return q.Submit(func() error {
			return &Fault{Status: StatusOutOfResources, Op: "gemm", Message: "injected asynchronous fault"}
		})
	case InjectCorrupt:
		if in.Row < 0 || in.Row >= m || in.Col < 0 || in.Col >= n {
			return &Fault{
				Status:  StatusInvalidValue,
				Op:      "inject",
				Message: fmt.Sprintf("corrupt position (%d,%d) outside %dx%d", in.Row, in.Col, m, n),
			}
		}
	}
	if err := in.Backend.Gemm(q, tA, tB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc); err != nil {
		return err
	}
	if in.Mode != InjectCorrupt {
		return nil
	}
	delta := in.Delta
	if delta == 0 {
		delta = 1
	}
	idx := in.Row + in.Col*ldc
	return q.Submit(func() error {
		c.Data()[idx] += delta
		return nil
	})
}

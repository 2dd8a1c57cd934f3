// Package offload dispatches a column-major GEMM to an accelerated backend.
//
// A Backend is reached only through a Queue: the queue owns the device,
// runs submitted work in order, and hands asynchronous faults to the
// FaultHandler it was created with when the caller synchronizes. Host slices
// are shared with a backend through Buffers, which copy results back into
// host memory on Release.
package offload

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Transpose selects op(X) for a GEMM operand.
type Transpose byte

const (
	NoTrans Transpose = 'N'
	Trans   Transpose = 'T'
)

func (t Transpose) String() string { return string(rune(t)) }

// Device identifies what a queue is bound to.
type Device struct {
	Name         string
	Vendor       string
	Backend      string
	ComputeUnits int
}

func (d Device) String() string {
	if d.Vendor == "" {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Vendor)
}

// Backend is an external accelerated GEMM provider. Matrices are column-major:
// C = alpha*op(A)*op(B) + beta*C with op(A) m x k, op(B) k x n, C m x n.
//
// Gemm must either return a synchronous *Fault without touching C, or submit
// the work to q. Errors from submitted work surface as asynchronous faults.
type Backend interface {
	Name() string
	Open() (Device, error)
	Gemm(q *Queue, tA, tB Transpose, m, n, k int, alpha float64,
		a *Buffer, lda int, b *Buffer, ldb int, beta float64,
		c *Buffer, ldc int) error
	Close() error
}

// Factory builds a fresh Backend.
type Factory func() Backend

// ErrUnknownBackend is returned by New for names nobody registered.
var ErrUnknownBackend = errors.New("offload: unknown backend")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available by name. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("offload: backend registered twice: " + name)
	}
	registry[name] = f
}

// New returns a new instance of the named backend.
func New(name string) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownBackend, name, Names())
	}
	return f(), nil
}

// Names lists registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package offload

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/qrv0/gemmcheck/internal/matrix"
)

// Dispatcher offloads one matrix.Problem to a backend.
type Dispatcher struct {
	Backend Backend
	// Handler receives asynchronous faults. Nil panics on the first one.
	Handler FaultHandler
	// Out receives the device line and fault diagnostics.
	Out    io.Writer
	Logger *slog.Logger
}

// Dispatch computes C = alpha*A*B + beta*C for p on the backend. C is written
// back into p.C.Data before Dispatch returns, whatever the outcome.
// A synchronous backend fault is printed and returned; the caller is expected
// to verify C anyway.
func (d *Dispatcher) Dispatch(p *matrix.Problem) (Device, error) {
	log := d.logger().With("backend", d.Backend.Name())
	q, err := NewQueue(d.Backend, d.Handler)
	if err != nil {
		return Device{}, d.fail(log, err)
	}
	dev := q.Device()
	fmt.Fprintf(d.out(), "Device: %s\n", dev.Name)
	log.Info("queue ready", "device", dev.Name, "vendor", dev.Vendor, "compute_units", dev.ComputeUnits)

	start := time.Now()
	err = d.gemm(q, p)
	if cerr := q.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if n := q.Delivered(); err == nil && n > 0 {
		err = fmt.Errorf("%w: %d fault(s)", ErrAsyncFault, n)
	}
	if err != nil {
		return dev, d.fail(log, err)
	}
	log.Info("gemm complete", "elapsed", time.Since(start))
	return dev, nil
}

// gemm brackets the single backend call with buffer acquisition and release;
// the deferred releases are the synchronization barrier.
func (d *Dispatcher) gemm(q *Queue, p *matrix.Problem) error {
	a := NewBuffer(q, p.A.Data, ReadOnly)
	defer a.Release()
	b := NewBuffer(q, p.B.Data, ReadOnly)
	defer b.Release()
	c := NewBuffer(q, p.C.Data, ReadWrite)
	defer c.Release()

	return d.Backend.Gemm(q, NoTrans, NoTrans, p.M, p.P, p.N,
		p.Alpha, a, p.A.Stride, b, p.B.Stride, p.Beta, c, p.C.Stride)
}

func (d *Dispatcher) fail(log *slog.Logger, err error) error {
	out := d.out()
	if f, ok := AsFault(err); ok {
		fmt.Fprintf(out, "\t\tOffload fault during GEMM\n%s\nStatus: %d\n", f.Message, int(f.Status))
		log.Error("gemm offload failed", "op", f.Op, "status", int(f.Status), "status_name", f.Status.String(), "async", f.Async, "err", f.Message)
	} else {
		fmt.Fprintf(out, "\t\tOffload failure during GEMM\n%v\n", err)
		log.Error("gemm offload failed", "err", err)
	}
	return fmt.Errorf("offload: dispatch on %s: %w", d.Backend.Name(), err)
}

func (d *Dispatcher) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

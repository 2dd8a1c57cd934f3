// Package harness runs one verification: generate, offload, recompute on the
// host, compare.
package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qrv0/gemmcheck/internal/matrix"
	"github.com/qrv0/gemmcheck/internal/offload"
	"github.com/qrv0/gemmcheck/internal/reference"
	"github.com/qrv0/gemmcheck/internal/snapshot"
	"github.com/qrv0/gemmcheck/internal/verify"
)

// Process exit statuses.
const (
	ExitSuccess  = 0
	ExitMismatch = -1
	ExitAborted  = 3
)

// Harness wires a backend to the generator, reference and comparator.
type Harness struct {
	Backend offload.Backend
	Dims    matrix.Dims
	Compare verify.Options
	// Out receives the console report.
	Out    io.Writer
	Logger *slog.Logger
	// OnAsyncFault replaces the default handler, which logs the faults and
	// terminates through Exit.
	OnAsyncFault offload.FaultHandler
	// Exit is used by the default fault handler; nil means os.Exit.
	Exit func(code int)
}

// Digests are xxh3-64 hashes of the raw matrix buffers.
type Digests struct {
	A, B, C uint64
}

// Report is the outcome of one run or replay.
type Report struct {
	Dims       matrix.Dims
	Backend    string
	Device     offload.Device
	Problem    *matrix.Problem
	OffloadErr error
	Result     verify.Result
	Digests    Digests

	OffloadTime   time.Duration
	ReferenceTime time.Duration
	CompareTime   time.Duration
}

// Passed is true only when the offload completed and every compared element
// matched.
func (r *Report) Passed() bool { return r.OffloadErr == nil && r.Result.Passed() }

// Status maps the outcome to a process exit status.
func (r *Report) Status() int {
	if r.Passed() {
		return ExitSuccess
	}
	return ExitMismatch
}

// Run executes the harness. The returned error covers setup failures only;
// offload faults and mismatches are part of the Report.
func (h *Harness) Run() (*Report, error) {
	log := h.logger()
	out := h.out()

	p, err := matrix.Generate(h.Dims)
	if err != nil {
		return nil, fmt.Errorf("harness: generate: %w", err)
	}
	fmt.Fprintf(out, "Problem size: %s\n", h.Dims)
	log.Info("problem generated",
		"m", h.Dims.M, "n", h.Dims.N, "p", h.Dims.P,
		"digest_a", hex(snapshot.Digest(p.A.Data)), "digest_b", hex(snapshot.Digest(p.B.Data)))
	log.Debug("closed form", "element", reference.ClosedForm(h.Dims.N))

	rep := &Report{Dims: h.Dims, Backend: h.Backend.Name(), Problem: p}

	// The reference product does not read the generator's buffers, so it runs
	// alongside the offload.
	var expected [][]float64
	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		c, err := reference.Multiply(h.Dims)
		rep.ReferenceTime = time.Since(start)
		expected = c
		return err
	})

	disp := &offload.Dispatcher{Backend: h.Backend, Handler: h.faultHandler(log), Out: out, Logger: log}
	start := time.Now()
	rep.Device, rep.OffloadErr = disp.Dispatch(p)
	rep.OffloadTime = time.Since(start)

	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("harness: reference: %w", err)
	}

	start = time.Now()
	res, err := verify.Compare(out, p.C.Data, p.C.Stride, expected, h.Compare)
	rep.CompareTime = time.Since(start)
	if err != nil {
		return rep, fmt.Errorf("harness: compare: %w", err)
	}
	rep.Result = res
	rep.Digests = Digests{A: snapshot.Digest(p.A.Data), B: snapshot.Digest(p.B.Data), C: snapshot.Digest(p.C.Data)}

	switch {
	case !res.Passed():
		fmt.Fprintln(out, "fail - The results mis-match!")
	case rep.OffloadErr != nil:
		fmt.Fprintln(out, "fail - offload fault, results not trusted")
	default:
		fmt.Fprintln(out, "success - The results are correct!")
	}
	log.Info("verification finished",
		"passed", rep.Passed(),
		"compared", res.Compared,
		"mismatches", res.Total,
		"truncated", res.Truncated,
		"policy", h.Compare.Policy.String(),
		"digest_c", hex(rep.Digests.C),
		"offload", rep.OffloadTime,
		"reference", rep.ReferenceTime,
		"compare", rep.CompareTime)
	return rep, nil
}

// faultHandler is the asynchronous fault policy: a faulted context cannot be
// trusted, so the default logs and aborts the process.
func (h *Harness) faultHandler(log *slog.Logger) offload.FaultHandler {
	if h.OnAsyncFault != nil {
		return h.OnAsyncFault
	}
	exit := h.Exit
	if exit == nil {
		exit = os.Exit
	}
	out := h.out()
	return func(faults []*offload.Fault) {
		for _, f := range faults {
			log.Error("asynchronous offload fault", "op", f.Op, "status", int(f.Status), "err", f.Message)
			fmt.Fprintln(out, f.Error())
		}
		fmt.Fprintln(out, "fail")
		exit(ExitAborted)
	}
}

func (h *Harness) out() io.Writer {
	if h.Out == nil {
		return io.Discard
	}
	return h.Out
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

func hex(v uint64) string { return fmt.Sprintf("%016x", v) }

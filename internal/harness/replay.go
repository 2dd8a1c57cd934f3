package harness

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/qrv0/gemmcheck/internal/matrix"
	"github.com/qrv0/gemmcheck/internal/offload"
	"github.com/qrv0/gemmcheck/internal/reference"
	"github.com/qrv0/gemmcheck/internal/snapshot"
	"github.com/qrv0/gemmcheck/internal/verify"
)

// ErrInputsChanged is returned by Replay when the stored A or B no longer
// follow the generator pattern.
var ErrInputsChanged = errors.New("harness: stored inputs differ from the generated pattern")

// NewSnapshot captures a finished run.
func NewSnapshot(rep *Report) *snapshot.Snapshot {
	p := rep.Problem
	meta := snapshot.Meta{
		CreatedAt:  time.Now().UTC(),
		M:          p.M,
		N:          p.N,
		P:          p.P,
		Alpha:      p.Alpha,
		Beta:       p.Beta,
		Backend:    rep.Backend,
		Device:     rep.Device.Name,
		Passed:     rep.Passed(),
		Mismatches: rep.Result.Total,
		Compared:   rep.Result.Compared,
	}
	if rep.OffloadErr != nil {
		meta.OffloadError = rep.OffloadErr.Error()
	}
	return &snapshot.Snapshot{Meta: meta, A: p.A.Data, B: p.B.Data, C: p.C.Data}
}

// Replay re-runs the comparator on a stored product against a freshly built
// reference. The stored inputs are checked against the generator first.
func Replay(w io.Writer, s *snapshot.Snapshot, opts verify.Options) (*Report, error) {
	d := s.Meta.Dims()
	p, err := matrix.Generate(d)
	if err != nil {
		return nil, fmt.Errorf("harness: replay: %w", err)
	}
	if snapshot.Digest(p.A.Data) != snapshot.Digest(s.A) || snapshot.Digest(p.B.Data) != snapshot.Digest(s.B) {
		return nil, ErrInputsChanged
	}
	fmt.Fprintf(w, "Problem size: %s\n", d)
	expected, err := reference.Multiply(d)
	if err != nil {
		return nil, fmt.Errorf("harness: replay: %w", err)
	}
	res, err := verify.Compare(w, s.C, d.M, expected, opts)
	if err != nil {
		return nil, fmt.Errorf("harness: replay: %w", err)
	}
	p.C.Data = s.C
	rep := &Report{
		Dims:    d,
		Backend: s.Meta.Backend,
		Device:  offload.Device{Name: s.Meta.Device},
		Problem: p,
		Result:  res,
		Digests: Digests{A: snapshot.Digest(s.A), B: snapshot.Digest(s.B), C: snapshot.Digest(s.C)},
	}
	if s.Meta.OffloadError != "" {
		rep.OffloadErr = errors.New(s.Meta.OffloadError)
	}
	switch {
	case !res.Passed():
		fmt.Fprintln(w, "fail - The results mis-match!")
	case rep.OffloadErr != nil:
		fmt.Fprintln(w, "fail - offload fault, results not trusted")
	default:
		fmt.Fprintln(w, "success - The results are correct!")
	}
	return rep, nil
}

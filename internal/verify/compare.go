// Package verify compares an offloaded column-major product against the
// row-major host reference.
package verify

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Epsilon is the float64 machine epsilon, 2^-52.
const Epsilon = 0x1p-52

// DefaultMaxReports caps the number of printed mismatch lines.
const DefaultMaxReports = 5

// ErrShape is returned when observed and expected do not describe the same
// M x P result.
var ErrShape = errors.New("verify: result shape mismatch")

// Policy selects what happens once the report cap is reached.
type Policy int

const (
	// StopAfterCap ends the scan at the cap-th mismatch. Elements after it are
	// never compared.
	StopAfterCap Policy = iota
	// ScanAll keeps comparing every element and only suppresses output.
	ScanAll
)

func (p Policy) String() string {
	switch p {
	case StopAfterCap:
		return "stop"
	case ScanAll:
		return "scan-all"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "stop" or "scan-all".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stop":
		return StopAfterCap, nil
	case "scan-all", "scanall", "all":
		return ScanAll, nil
	}
	return 0, fmt.Errorf("verify: unknown policy %q", s)
}

// ValueSame is the absolute, unscaled tolerance test |a-b| < Epsilon.
func ValueSame(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Mismatch is one element whose observed value differs from the reference.
type Mismatch struct {
	Row      int
	Col      int
	Expected float64
	Observed float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("element [%d, %d], expected: %v, got: %v", m.Row, m.Col, m.Expected, m.Observed)
}

// Options controls how many mismatches Compare reports and when it stops.
type Options struct {
	MaxReports int // <= 0 means DefaultMaxReports
	Policy     Policy
}

// Result summarizes one Compare scan.
type Result struct {
	// Reported holds the mismatches that were printed, at most MaxReports.
	Reported []Mismatch
	// Total counts every mismatch found during the scan.
	Total int
	// Compared is the number of elements actually compared.
	Compared int
	// Truncated is set when the scan stopped before the last element.
	Truncated bool
}

// Passed reports whether the scan found no mismatch at all.
func (r Result) Passed() bool { return r.Total == 0 }

// Compare walks i in [0,M), j in [0,P) comparing observed[i+j*ld] with
// expected[i][j], printing one "fail - element ..." line per reported
// mismatch to w.
func Compare(w io.Writer, observed []float64, ld int, expected [][]float64, opts Options) (Result, error) {
	m := len(expected)
	if m == 0 {
		return Result{}, fmt.Errorf("%w: empty reference", ErrShape)
	}
	p := len(expected[0])
	for i := range expected {
		if len(expected[i]) != p {
			return Result{}, fmt.Errorf("%w: reference row %d has %d columns, want %d", ErrShape, i, len(expected[i]), p)
		}
	}
	if ld < m {
		return Result{}, fmt.Errorf("%w: leading dimension %d < rows %d", ErrShape, ld, m)
	}
	if need := ld*(p-1) + m; len(observed) < need {
		return Result{}, fmt.Errorf("%w: observed has %d elements, need %d", ErrShape, len(observed), need)
	}
	limit := opts.MaxReports
	if limit <= 0 {
		limit = DefaultMaxReports
	}

	var res Result
scan:
	for i := 0; i < m; i++ {
		for j := 0; j < p; j++ {
			got, want := observed[i+j*ld], expected[i][j]
			res.Compared++
			if ValueSame(got, want) {
				continue
			}
			res.Total++
			if len(res.Reported) < limit {
				mm := Mismatch{Row: i, Col: j, Expected: want, Observed: got}
				res.Reported = append(res.Reported, mm)
				if _, err := fmt.Fprintf(w, "fail - %s\n", mm); err != nil {
					return res, err
				}
			}
			if opts.Policy == StopAfterCap && len(res.Reported) >= limit {
				res.Truncated = res.Compared < m*p
				break scan
			}
		}
	}
	return res, nil
}

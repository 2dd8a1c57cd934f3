package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrv0/gemmcheck/internal/matrix"
	"github.com/qrv0/gemmcheck/internal/offload"
	"github.com/qrv0/gemmcheck/internal/reference"
	"github.com/qrv0/gemmcheck/internal/verify"
)

func dims600(t *testing.T) matrix.Dims {
	t.Helper()
	d, err := matrix.DimsFromSize(600)
	require.NoError(t, err)
	return d
}

func countLines(s, prefix string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestRunSucceeds(t *testing.T) {
	for _, name := range []string{"host", "parallel"} {
		t.Run(name, func(t *testing.T) {
			be, err := offload.New(name)
			require.NoError(t, err)
			var out bytes.Buffer
			h := &Harness{Backend: be, Dims: dims600(t), Out: &out}
			rep, err := h.Run()
			require.NoError(t, err)
			require.True(t, rep.Passed())
			require.Equal(t, ExitSuccess, rep.Status())
			require.Equal(t, 75*300, rep.Result.Compared)

			s := out.String()
			require.True(t, strings.HasPrefix(s, "Problem size: c(75,300) = a(75,150) * b(150,300)\n"), s)
			require.Contains(t, s, "Device: "+rep.Device.Name+"\n")
			require.True(t, strings.HasSuffix(s, "success - The results are correct!\n"), s)
			require.NotContains(t, s, "fail")
			require.NotZero(t, rep.Digests.C)
		})
	}
}

func TestRunReportsSingleCorruption(t *testing.T) {
	d := dims600(t)
	var out bytes.Buffer
	h := &Harness{
		Backend: &offload.Injector{Backend: &offload.Host{}, Mode: offload.InjectCorrupt, Row: 4, Col: 17},
		Dims:    d,
		Out:     &out,
	}
	rep, err := h.Run()
	require.NoError(t, err)
	require.NoError(t, rep.OffloadErr)
	require.Equal(t, ExitMismatch, rep.Status())
	require.Equal(t, 1, rep.Result.Total)

	want := reference.ClosedForm(d.N)
	line := fmt.Sprintf("fail - element [4, 17], expected: %v, got: %v\n", want, want+1)
	s := out.String()
	require.Contains(t, s, line)
	require.Equal(t, 1, countLines(s, "fail - element"))
	require.True(t, strings.HasSuffix(s, "fail - The results mis-match!\n"), s)
}

func TestRunSyncFaultStillVerifies(t *testing.T) {
	var out bytes.Buffer
	h := &Harness{
		Backend: &offload.Injector{Backend: &offload.Host{}, Mode: offload.InjectFault},
		Dims:    dims600(t),
		Out:     &out,
	}
	rep, err := h.Run()
	require.NoError(t, err)
	require.Error(t, rep.OffloadErr)
	require.Equal(t, ExitMismatch, rep.Status())

	s := out.String()
	require.Contains(t, s, "Offload fault during GEMM")
	require.Contains(t, s, "Status: -59")
	// C was never written, so every element differs and the report stops at the cap
	require.Equal(t, verify.DefaultMaxReports, countLines(s, "fail - element"))
	require.True(t, rep.Result.Truncated)
	require.Contains(t, s, "fail - element [0, 0], expected: ")
	require.True(t, strings.HasSuffix(s, "fail - The results mis-match!\n"), s)
}

func TestRunScanAllCountsEverything(t *testing.T) {
	d := dims600(t)
	h := &Harness{
		Backend: &offload.Injector{Backend: &offload.Host{}, Mode: offload.InjectFault},
		Dims:    d,
		Compare: verify.Options{Policy: verify.ScanAll},
	}
	rep, err := h.Run()
	require.NoError(t, err)
	require.Equal(t, d.M*d.P, rep.Result.Total)
	require.Len(t, rep.Result.Reported, verify.DefaultMaxReports)
	require.Equal(t, ExitMismatch, rep.Status())
}

func TestRunAsyncFaultAborts(t *testing.T) {
	var out bytes.Buffer
	code := -100
	h := &Harness{
		Backend: &offload.Injector{Backend: &offload.Host{}, Mode: offload.InjectAsync},
		Dims:    dims600(t),
		Out:     &out,
		Exit:    func(c int) { code = c },
	}
	rep, err := h.Run()
	require.NoError(t, err)
	require.Equal(t, ExitAborted, code)
	require.ErrorIs(t, rep.OffloadErr, offload.ErrAsyncFault)
	require.Equal(t, ExitMismatch, rep.Status())
	require.Contains(t, out.String(), "injected asynchronous fault")
	require.Contains(t, out.String(), "\nfail\n")
}

func TestRunCustomAsyncHandler(t *testing.T) {
	var got []*offload.Fault
	h := &Harness{
		Backend:      &offload.Injector{Backend: &offload.Parallel{}, Mode: offload.InjectAsync},
		Dims:         dims600(t),
		OnAsyncFault: func(f []*offload.Fault) { got = append(got, f...) },
		Exit:         func(int) { t.Fatal("default handler used") },
	}
	rep, err := h.Run()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Async)
	require.False(t, rep.Passed())
}

func TestRunRejectsBadDims(t *testing.T) {
	_, err := (&Harness{Backend: &offload.Host{}, Dims: matrix.Dims{M: 0, N: 1, P: 1}}).Run()
	require.ErrorIs(t, err, matrix.ErrBadShape)
}

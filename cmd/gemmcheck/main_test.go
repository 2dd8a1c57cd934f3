package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrv0/gemmcheck/internal/snapshot"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := dispatch(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunDefaultCommand(t *testing.T) {
	code, out, _ := runCLI(t, "--size", "600", "--log-level", "error")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Problem size: c(75,300) = a(75,150) * b(150,300)")
	require.Contains(t, out, "Device: ")
	require.Contains(t, out, "success - The results are correct!")
}

func TestRunParallelBackend(t *testing.T) {
	code, out, _ := runCLI(t, "run", "--size", "600", "--backend", "parallel")
	require.Equal(t, 0, code, out)
}

func TestRunCorruptElement(t *testing.T) {
	code, out, _ := runCLI(t, "run", "--size", "600", "--inject", "corrupt", "--inject-row", "2", "--inject-col", "5")
	require.Equal(t, -1, code)
	require.Equal(t, 1, strings.Count(out, "fail - element"))
	require.Contains(t, out, "fail - element [2, 5], expected: ")
	require.Contains(t, out, "fail - The results mis-match!")
}

func TestRunSyncFault(t *testing.T) {
	code, out, stderr := runCLI(t, "run", "--size", "600", "--inject", "fault")
	require.Equal(t, -1, code)
	require.Contains(t, out, "Status: -59")
	require.Equal(t, 5, strings.Count(out, "fail - element"))
	require.Contains(t, stderr, "gemm offload failed")
}

func TestRunAsyncFaultExits(t *testing.T) {
	var codes []int
	exit = func(c int) { codes = append(codes, c) }
	t.Cleanup(func() { exit = os.Exit })

	_, out, _ := runCLI(t, "run", "--size", "600", "--inject", "async")
	require.Equal(t, []int{3}, codes)
	require.Contains(t, out, "injected asynchronous fault")
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--size", "601")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "multiple of 8")

	code, _, _ = runCLI(t, "run", "--backend", "tpu")
	require.Equal(t, 1, code)

	code, _, _ = runCLI(t, "frobnicate")
	require.Equal(t, 1, code)

	code, _, _ = runCLI(t, "verify")
	require.Equal(t, 1, code)

	code, out, _ := runCLI(t, "help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "usage: gemmcheck")
}

func TestBackends(t *testing.T) {
	code, out, _ := runCLI(t, "backends")
	require.Equal(t, 0, code)
	require.Contains(t, out, "host")
	require.Contains(t, out, "parallel")
	require.Contains(t, out, "cuda")
}

func TestSnapshotCommands(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "run.snap")
	code, _, _ := runCLI(t, "run", "--size", "64", "--inject", "corrupt", "--inject-row", "1", "--inject-col", "3",
		"--snapshot", snap, "--compression", "lz4")
	require.Equal(t, -1, code)

	code, out, _ := runCLI(t, "verify", "--in", snap)
	require.Equal(t, 0, code)
	require.Contains(t, out, "checksum verify: OK")

	code, out, _ = runCLI(t, "inspect", "--in", snap)
	require.Equal(t, 0, code)
	require.Contains(t, out, `"backend": "host+corrupt"`)
	require.Contains(t, out, `"compression": "lz4"`)
	require.Contains(t, out, "chunks=1 algo=xxh3-64")

	code, out, _ = runCLI(t, "replay", "--in", snap)
	require.Equal(t, -1, code)
	require.Equal(t, 1, strings.Count(out, "fail - element"))
	require.Contains(t, out, "fail - element [1, 3], expected: ")

	exported := filepath.Join(dir, "blobs")
	code, _, _ = runCLI(t, "export", "--in", snap, "--out", exported)
	require.Equal(t, 0, code)
	// size 64: M=8, N=16, P=32
	for name, n := range map[string]int{"a_8x16.f64": 8 * 16, "b_16x32.f64": 16 * 32, "c_8x32.f64": 8 * 32} {
		st, err := os.Stat(filepath.Join(exported, name))
		require.NoError(t, err)
		require.EqualValues(t, 8*n, st.Size())
	}
}

func TestVerifyAndReplayRejectTampering(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "run.snap")
	code, _, _ := runCLI(t, "run", "--size", "64", "--snapshot", snap, "--compression", "none")
	require.Equal(t, 0, code)

	code, _, _ = runCLI(t, "replay", "--in", snap)
	require.Equal(t, 0, code)

	r, err := snapshot.Open(snap)
	require.NoError(t, err)
	var off int64
	for _, e := range r.TOC {
		if e.TypeID == snapshot.TypeC {
			off = int64(e.Offset)
		}
	}
	require.NoError(t, r.Close())
	f, err := os.OpenFile(snap, os.O_RDWR, 0)
	require.NoError(t, err)
	// flip every bit of the top byte of c[0], whatever it held
	b := make([]byte, 1)
	_, err = f.ReadAt(b, off+7)
	require.NoError(t, err)
	b[0] ^= 0xff
	_, err = f.WriteAt(b, off+7)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, out, stderr := runCLI(t, "verify", "--in", snap)
	require.Equal(t, checksumFailed, code)
	require.Contains(t, out, "section c: chunk 0 mismatch")
	require.Contains(t, stderr, "FAILED")

	code, _, _ = runCLI(t, "replay", "--in", snap)
	require.Equal(t, checksumFailed, code)
}

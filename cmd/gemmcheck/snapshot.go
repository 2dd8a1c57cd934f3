package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/qrv0/gemmcheck/internal/config"
	"github.com/qrv0/gemmcheck/internal/harness"
	"github.com/qrv0/gemmcheck/internal/snapshot"
)

// checksumFailed is the status of verify when any section fails its checksum.
const checksumFailed = 3

func inFlag(in *string) func(*config.Config, *flag.FlagSet) {
	return func(c *config.Config, fs *flag.FlagSet) {
		fs.StringVar(in, "in", "", "input snapshot")
		c.RegisterLogFlags(fs)
	}
}

// verifyChecksums prints one line per failing section and reports whether all
// passed.
func verifyChecksums(path string, w io.Writer) (bool, error) {
	checks, err := snapshot.Verify(path)
	if err != nil {
		return false, err
	}
	ok := true
	for _, c := range checks {
		switch {
		case c.Err != nil:
			fmt.Fprintf(w, "section %s: %v\n", c.Name, c.Err)
			ok = false
		case len(c.Bad) > 0:
			for _, i := range c.Bad {
				fmt.Fprintf(w, "section %s: chunk %d mismatch\n", c.Name, i)
			}
			ok = false
		}
	}
	return ok, nil
}

func cmdVerify(args []string, stdout, stderr io.Writer) int {
	var in string
	cfg, _, _, status := loadConfig("verify", args, stderr, inFlag(&in))
	if cfg == nil {
		return status
	}
	if in == "" {
		fmt.Fprintln(stderr, "usage: gemmcheck verify --in run.snap")
		return 1
	}
	ok, err := verifyChecksums(in, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(stderr, "checksum verify: FAILED")
		return checksumFailed
	}
	fmt.Fprintln(stdout, "checksum verify: OK")
	return 0
}

func cmdReplay(args []string, stdout, stderr io.Writer) int {
	var in string
	register := func(c *config.Config, fs *flag.FlagSet) {
		inFlag(&in)(c, fs)
		fs.IntVar(&c.MaxReports, "max-reports", c.MaxReports, "mismatch lines printed before giving up")
		fs.BoolVar(&c.ScanAll, "scan-all", c.ScanAll, "keep counting mismatches past the report cap")
	}
	cfg, _, log, status := loadConfig("replay", args, stderr, register)
	if cfg == nil {
		return status
	}
	if in == "" {
		fmt.Fprintln(stderr, "usage: gemmcheck replay --in run.snap")
		return 1
	}
	ok, err := verifyChecksums(in, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(stderr, "replay: snapshot failed checksum verification")
		return checksumFailed
	}
	s, err := snapshot.Load(in)
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	log.Info("replaying", "path", in, "backend", s.Meta.Backend, "device", s.Meta.Device, "recorded_passed", s.Meta.Passed)
	rep, err := harness.Replay(stdout, s, cfg.CompareOptions())
	if err != nil {
		fmt.Fprintf(stderr, "replay: %v\n", err)
		return 1
	}
	if rep.Passed() != s.Meta.Passed {
		log.Warn("verdict differs from recording", "recorded", s.Meta.Passed, "replayed", rep.Passed())
	}
	return rep.Status()
}

func cmdInspect(args []string, stdout, stderr io.Writer) int {
	var in string
	cfg, _, _, status := loadConfig("inspect", args, stderr, inFlag(&in))
	if cfg == nil {
		return status
	}
	if in == "" {
		fmt.Fprintln(stderr, "usage: gemmcheck inspect --in run.snap")
		return 1
	}
	r, err := snapshot.Open(in)
	if err != nil {
		fmt.Fprintf(stderr, "inspect: %v\n", err)
		return 1
	}
	defer r.Close()
	meta, err := r.ReadMeta()
	if err != nil {
		fmt.Fprintf(stderr, "inspect: %v\n", err)
		return 1
	}
	sums := meta.ChecksumIndex
	meta.ChecksumIndex = nil
	b, _ := json.MarshalIndent(meta, "", "  ")
	fmt.Fprintln(stdout, "META:")
	fmt.Fprintln(stdout, string(b))
	fmt.Fprintln(stdout, "Sections:")
	for _, e := range r.TOC {
		name := snapshot.TypeName(e.TypeID)
		fmt.Fprintf(stdout, "  %-4s offset=%d stored=%d flags=%d", name, e.Offset, e.Size, e.Flags)
		if c, ok := sums[name]; ok {
			fmt.Fprintf(stdout, " chunks=%d algo=%s", c.Count, c.Algo)
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// cmdExport writes the stored matrices as raw little-endian .f64 blobs,
// column-major.
func cmdExport(args []string, stdout, stderr io.Writer) int {
	var in, outDir string
	register := func(c *config.Config, fs *flag.FlagSet) {
		inFlag(&in)(c, fs)
		fs.StringVar(&outDir, "out", "", "output dir (.f64 blobs)")
	}
	cfg, _, _, status := loadConfig("export", args, stderr, register)
	if cfg == nil {
		return status
	}
	if in == "" || outDir == "" {
		fmt.Fprintln(stderr, "usage: gemmcheck export --in run.snap --out dir")
		return 1
	}
	r, err := snapshot.Open(in)
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	defer r.Close()
	meta, err := r.ReadMeta()
	if err != nil {
		fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "export: mkdir error: %v\n", err)
		return 1
	}
	shapes := []struct {
		t          uint32
		rows, cols int
	}{
		{snapshot.TypeA, meta.M, meta.N},
		{snapshot.TypeB, meta.N, meta.P},
		{snapshot.TypeC, meta.M, meta.P},
	}
	for _, s := range shapes {
		data, err := r.SectionUncompressed(s.t)
		if err != nil {
			fmt.Fprintf(stderr, "export: %v\n", err)
			return 1
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_%dx%d.f64", snapshot.TypeName(s.t), s.rows, s.cols))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fmt.Fprintf(stderr, "export: write %s error: %v\n", out, err)
			return 1
		}
		fmt.Fprintln(stdout, "wrote", out)
	}
	return 0
}

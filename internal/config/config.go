// Package config resolves run settings from defaults, a .env file, GEMMCHECK_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/qrv0/gemmcheck/internal/logging"
	"github.com/qrv0/gemmcheck/internal/matrix"
	"github.com/qrv0/gemmcheck/internal/offload"
	"github.com/qrv0/gemmcheck/internal/snapshot"
	"github.com/qrv0/gemmcheck/internal/verify"
)

// EnvPrefix is prepended to every key when reading the environment.
const EnvPrefix = "GEMMCHECK_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Size        int
	Backend     string
	MaxReports  int
	ScanAll     bool
	Inject      string
	InjectRow   int
	InjectCol   int
	Snapshot    string // path; empty disables snapshots
	Compression string
	LogLevel    string
	LogFormat   string

	// EnvFile is the .env that was read, if any.
	EnvFile string
}

func Default() *Config {
	return &Config{
		Size:        matrix.DefaultSize,
		Backend:     "host",
		MaxReports:  verify.DefaultMaxReports,
		Inject:      "none",
		Compression: "zstd",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load starts from Default, then applies the first .env found in dir or up to
// five of its parents, then the process environment. An empty dir means the
// working directory.
func Load(dir string) (*Config, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	c := Default()
	file := map[string]string{}
	if path := findEnvFile(dir); path != "" {
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		file, c.EnvFile = m, path
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := file[EnvPrefix+key]
		return v, ok
	}
	if err := c.apply(lookup); err != nil {
		return nil, err
	}
	return c, nil
}

// findEnvFile walks up from dir looking for a .env, at most five levels.
func findEnvFile(dir string) string {
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, ".env")
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func (c *Config) apply(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, EnvPrefix, key, v, err)
		}
		*dst = n
		return nil
	}
	for key, dst := range map[string]*int{
		"SIZE":        &c.Size,
		"MAX_REPORTS": &c.MaxReports,
		"INJECT_ROW":  &c.InjectRow,
		"INJECT_COL":  &c.InjectCol,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("SCAN_ALL"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sSCAN_ALL=%q", ErrInvalid, EnvPrefix, v)
		}
		c.ScanAll = b
	}
	str("BACKEND", &c.Backend)
	str("INJECT", &c.Inject)
	str("SNAPSHOT", &c.Snapshot)
	str("COMPRESSION", &c.Compression)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	return nil
}

// RegisterFlags binds the run settings to fs. Current values become the flag
// defaults, so flags override everything loaded before.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Size, "size", c.Size, "base size; M=size/8 N=size/4 P=size/2")
	fs.StringVar(&c.Backend, "backend", c.Backend, "offload backend ("+strings.Join(offload.Names(), "|")+")")
	fs.IntVar(&c.MaxReports, "max-reports", c.MaxReports, "mismatch lines printed before giving up")
	fs.BoolVar(&c.ScanAll, "scan-all", c.ScanAll, "keep counting mismatches past the report cap")
	fs.StringVar(&c.Inject, "inject", c.Inject, "inject a failure (none|corrupt|fault|async)")
	fs.IntVar(&c.InjectRow, "inject-row", c.InjectRow, "row of C hit by --inject corrupt")
	fs.IntVar(&c.InjectCol, "inject-col", c.InjectCol, "column of C hit by --inject corrupt")
	fs.StringVar(&c.Snapshot, "snapshot", c.Snapshot, "write the run to this snapshot file")
	fs.StringVar(&c.Compression, "compression", c.Compression, "snapshot matrix compression (none|zstd|lz4)")
	c.RegisterLogFlags(fs)
}

// RegisterLogFlags binds only the logging settings, for commands that do not
// run the harness.
func (c *Config) RegisterLogFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug|info|warn|error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text|json")
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := matrix.DimsFromSize(c.Size); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(offload.Names(), c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.MaxReports < 0 {
		errs = append(errs, fmt.Errorf("max reports %d is negative", c.MaxReports))
	}
	if _, err := offload.ParseInjection(c.Inject); err != nil {
		errs = append(errs, err)
	}
	if c.InjectRow < 0 || c.InjectCol < 0 {
		errs = append(errs, fmt.Errorf("inject position (%d,%d) is negative", c.InjectRow, c.InjectCol))
	}
	if _, err := snapshot.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Dims assumes Validate passed.
func (c *Config) Dims() matrix.Dims {
	d, _ := matrix.DimsFromSize(c.Size)
	return d
}

func (c *Config) CompareOptions() verify.Options {
	opts := verify.Options{MaxReports: c.MaxReports, Policy: verify.StopAfterCap}
	if c.ScanAll {
		opts.Policy = verify.ScanAll
	}
	return opts
}

// NewBackend builds the configured backend, wrapped in an Injector when a
// failure is requested.
func (c *Config) NewBackend() (offload.Backend, error) {
	be, err := offload.New(c.Backend)
	if err != nil {
		return nil, err
	}
	mode, err := offload.ParseInjection(c.Inject)
	if err != nil {
		return nil, err
	}
	if mode == offload.InjectNone {
		return be, nil
	}
	return &offload.Injector{Backend: be, Mode: mode, Row: c.InjectRow, Col: c.InjectCol}, nil
}

// SnapshotCompression assumes Validate passed.
func (c *Config) SnapshotCompression() snapshot.Compression {
	comp, _ := snapshot.ParseCompression(c.Compression)
	return comp
}

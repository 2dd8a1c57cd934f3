package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/qrv0/gemmcheck/internal/config"
	"github.com/qrv0/gemmcheck/internal/harness"
	"github.com/qrv0/gemmcheck/internal/logging"
	"github.com/qrv0/gemmcheck/internal/snapshot"
)

// loadConfig resolves settings for a subcommand and builds its logger. A
// non-zero status means the command should stop with it.
func loadConfig(name string, args []string, stderr io.Writer, register func(*config.Config, *flag.FlagSet)) (*config.Config, *flag.FlagSet, *slog.Logger, int) {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return nil, nil, nil, 1
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	register(cfg, fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, nil, 0
		}
		return nil, nil, nil, 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return nil, nil, nil, 1
	}
	log, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return nil, nil, nil, 1
	}
	if cfg.EnvFile != "" {
		log.Debug("config loaded", "env_file", cfg.EnvFile)
	}
	return cfg, fs, log, 0
}

func cmdRun(args []string, stdout, stderr io.Writer) int {
	cfg, fs, log, status := loadConfig("run", args, stderr, (*config.Config).RegisterFlags)
	if cfg == nil {
		return status
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "run: unexpected arguments %v\n", fs.Args())
		return 1
	}
	be, err := cfg.NewBackend()
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	h := &harness.Harness{
		Backend: be,
		Dims:    cfg.Dims(),
		Compare: cfg.CompareOptions(),
		Out:     stdout,
		Logger:  log,
		Exit:    exit,
	}
	rep, err := h.Run()
	if err != nil {
		log.Error("run failed", "err", err)
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	if cfg.Snapshot != "" {
		if err := snapshot.Save(cfg.Snapshot, harness.NewSnapshot(rep), cfg.SnapshotCompression()); err != nil {
			log.Error("snapshot failed", "path", cfg.Snapshot, "err", err)
		} else {
			log.Info("snapshot written", "path", cfg.Snapshot, "compression", cfg.Compression)
		}
	}
	return rep.Status()
}

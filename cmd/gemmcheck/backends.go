package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/qrv0/gemmcheck/internal/config"
	"github.com/qrv0/gemmcheck/internal/offload"
)

// cmdBackends opens every registered backend once and reports its device.
func cmdBackends(args []string, stdout, stderr io.Writer) int {
	cfg, _, log, status := loadConfig("backends", args, stderr, (*config.Config).RegisterLogFlags)
	if cfg == nil {
		return status
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tDEVICE\tUNITS")
	for _, name := range offload.Names() {
		be, err := offload.New(name)
		if err != nil {
			return 1
		}
		dev, err := be.Open()
		if err != nil {
			log.Debug("backend unavailable", "backend", name, "err", err)
			fmt.Fprintf(tw, "%s\tunavailable: %v\t-\n", name, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", name, dev.Name, dev.ComputeUnits)
		if err := be.Close(); err != nil {
			log.Warn("backend close failed", "backend", name, "err", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	if f := offload.HostFeatures(); len(f) > 0 {
		fmt.Fprintf(stdout, "host features: %s\n", strings.Join(f, " "))
	}
	return 0
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// exit terminates the process; replaced in tests.
var exit = os.Exit

func main() {
	exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return cmdRun(args, stdout, stderr)
	}
	switch args[0] {
	case "run":
		return cmdRun(args[1:], stdout, stderr)
	case "backends":
		return cmdBackends(args[1:], stdout, stderr)
	case "replay":
		return cmdReplay(args[1:], stdout, stderr)
	case "inspect":
		return cmdInspect(args[1:], stdout, stderr)
	case "verify":
		return cmdVerify(args[1:], stdout, stderr)
	case "export":
		return cmdExport(args[1:], stdout, stderr)
	case "help":
		usage(stdout)
		return 0
	default:
		usage(stderr)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "gemmcheck - offloaded DGEMM verification harness")
	fmt.Fprintln(w, "usage: gemmcheck [command] [args]")
	fmt.Fprintln(w, "  run [--size N] [--backend host] [--inject corrupt|fault|async] [--snapshot f]")
	fmt.Fprintln(w, "                                    run the harness (default command)")
	fmt.Fprintln(w, "  backends                          list offload backends and their devices")
	fmt.Fprintln(w, "  replay  --in <file.snap>          re-verify a stored run")
	fmt.Fprintln(w, "  inspect --in <file.snap>          print META and section sizes")
	fmt.Fprintln(w, "  verify  --in <file.snap>          verify checksums")
	fmt.Fprintln(w, "  export  --in <file.snap> --out <dir>  write a, b, c as .f64 blobs")
}

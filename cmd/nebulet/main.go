// Command nebulet boots the kernel against an init archive: read the
// TAR file named on the command line, hand it to internal/boot, and
// keep the scheduler's idle thread alive so sipinit and whatever it
// spawns keep running until the process receives a signal.
//
// Grounded on original_source/tools/src/bin/boot.rs (the original's own
// thin init-archive-to-running-kernel entrypoint) and wazero's own
// cmd/wazero (a flag-driven CLI with no config framework); this rewrite
// keeps that one-subcommand, stdlib-flag style rather than adopting a
// config/flags library, since the teacher itself is stdlib-only here
// (see DESIGN.md, "Configuration" entry).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nebulet/nebulet/internal/abi"
	"github.com/nebulet/nebulet/internal/boot"
	"github.com/nebulet/nebulet/internal/console"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated from main for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("nebulet", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var verbose bool
	flags.BoolVar(&verbose, "v", false, "Mirrors boot diagnostics to stderr as well as the console.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if help {
		printUsage(stdErr, flags)
		return 0
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to init archive")
		printUsage(stdErr, flags)
		return 1
	}

	archivePath := flags.Arg(0)
	archiveData, err := os.ReadFile(archivePath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading init archive: %v\n", err)
		return 1
	}

	out := stdOut
	if verbose {
		out = io.MultiWriter(stdOut, stdErr)
	}
	con := console.New(out)

	alloc := sip.New(sip.WindowSize)
	table := abi.NewTable(alloc)
	defer table.Close()
	abi.SetConsole(con)

	s := sched.New()

	proc, err := boot.Boot(archiveData, alloc, table, s, con)
	if err != nil {
		fmt.Fprintf(stdErr, "error booting init archive: %v\n", err)
		return 1
	}
	defer proc.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return 0
}

func printUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "nebulet [-v] <init-archive.tar>")
	fmt.Fprintln(stdErr, "")
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

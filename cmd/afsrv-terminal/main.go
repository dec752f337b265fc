// Command afsrv-terminal is the process entrypoint, grounded on the
// teacher's cmd/h2/main.go + internal/cmd/root.go cobra wiring: a single
// root command that reads ARCAN_ARG (or an explicit --arg override) and
// drives the terminal frameserver until its child exits.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"afsrvterm/internal/argload"
	"afsrvterm/internal/render"
	"afsrvterm/internal/termctx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "afsrv-terminal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debugLog string
	var argString string

	cmd := &cobra.Command{
		Use:   "afsrv-terminal [cmd]",
		Short: "PTY terminal frameserver",
		Long: "afsrv-terminal wraps a shell (or an explicit command) behind a PTY, " +
			"driving a virtual-terminal state machine and a render loop the way the " +
			"arcan afsrv_terminal frameserver does.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, cliArgs []string) error {
			return run(argString, debugLog, cliArgs)
		},
	}

	cmd.Flags().StringVar(&argString, "arg", "", "packed key1=value:key2 argument string (defaults to $ARCAN_ARG)")
	cmd.Flags().StringVar(&debugLog, "debug-log", "", "write VT adapter debug events as JSON lines to this path")
	return cmd
}

func run(argString, debugLog string, cliArgs []string) error {
	packed := argString
	if packed == "" {
		packed = os.Getenv("ARCAN_ARG")
	}

	args, err := argload.Parse(packed)
	if err != nil {
		return err
	}
	if args.Help {
		fmt.Fprint(os.Stdout, argload.HelpText)
		return nil
	}
	if len(cliArgs) > 0 && args.Cmd == "" {
		args.Cmd = cliArgs[0]
	}

	// The CLI (pty-less) mode named by args.CLI is explicitly out of scope
	// (spec §6 Non-goals); only the PTY-backed local display is wired here.
	//
	// In pipe mode the pump goroutine reads stdin itself and forwards it to
	// the PTY master (spec §4.D step 3); handing stdin to the display too
	// would race two readers over the same descriptor, so the display gets
	// no stdin reader at all here and pipe mode keeps sole ownership.
	var in io.Reader = os.Stdin
	if args.Pipe {
		in = nil
	}
	disp, err := render.NewLocalDisplay(os.Stdout, in, int(os.Stdin.Fd()))
	if err != nil {
		return err
	}

	exitCode, err := termctx.Run(args, disp, debugLog, func(c *termctx.Context) error {
		disp.BindVT(c.VT.Vt)
		disp.BindInput(
			func(b []byte) { render.WriteInput(c, b) },
			func(b []byte) { c.VT.Paste(b) },
		)
		loop := &render.Loop{Ctx: c, Respawn: c.Respawn, SignalChild: c.SignalChild}
		return loop.Run()
	})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

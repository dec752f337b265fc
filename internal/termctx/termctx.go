// Package termctx owns the terminal frameserver's process-wide state (spec
// §3's "Terminal Context") and the synchronization fabric (spec §4.F) that
// the pump and render-loop goroutines rendezvous through. It is the
// composition root: Run wires argument loading, shell spawning, the VT
// adapter, the pump goroutine, and the render loop together, mirroring how
// arcterm.c's afsrv_terminal entrypoint and the teacher's
// internal/terminal.Wrapper.Run compose the same pieces.
package termctx

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"afsrvterm/internal/argload"
	"afsrvterm/internal/debugsink"
	"afsrvterm/internal/quarantine"
	"afsrvterm/internal/spawn"
	"afsrvterm/internal/vtadapter"
)

// Context is the singleton described in spec §3, field-for-field against
// arcterm.c's `struct term`: screen/vte/pty/child/args/alive/die_on_term/
// complete_signal/pipe/last_input/synch/hold/dirtyfd/signalfd.
type Context struct {
	Display Display
	VT      *vtadapter.Engine
	Child   *spawn.Child // nil after SIGHUP (invariant 4)
	Args    argload.Args

	Alive       atomic.Bool // spec §3 invariant: atomic, release/acquire
	DieOnTerm   bool        // sticky; false under keep_alive
	Complete    atomic.Bool // "terminated but kept alive" progress latch
	Pipe        bool
	LastInput   atomic.Int64 // unix nanos, advisory idle detection
	LastExit    atomic.Int32 // most recent reaped child's exit code

	Synch sync.Mutex // guards VT mutation (spec §3 invariant 2)
	Hold  sync.Mutex // secondary rendezvous handshake (spec §4.F)

	// dirtyfd and signalfd are the two ends of a single socketpair (spec
	// §3/§4.F), not two separate pipes: a unix.SOCK_STREAM socketpair is
	// bidirectional on both ends, so the pump writes a wakeup byte on
	// dirtyfd and polls it for the signalfd-side wakeups render sends back
	// (subwindow bind); render polls signalfd inside Display.Process to
	// notice the pump's dirtyfd writes, and writes to signalfd to wake the
	// pump. Byte contents are always ignored.
	dirtyfd  *os.File
	signalfd *os.File

	Debug      *debugsink.Sink
	Quarantine quarantine.Pool
	InstanceID string

	ExecEnv spawn.Env
}

// Display is the narrow host-display contract spec §4.C/§6/SPEC_FULL §4.E
// names: the out-of-scope text-UI abstraction, reached through an
// interface so a real shared-memory arcan-tui client or the bundled
// LocalDisplay can both drive the render loop unmodified.
type Display interface {
	// Process dispatches pending input callbacks (keyboard, mouse, paste,
	// resize, reset, subwindow) and blocks until wakeupFD is readable or an
	// input event arrives, per spec §4.E step 2.
	Process(wakeupFD int, timeout time.Duration) (ProcessResult, error)
	Refresh() error
	Reset() error
	SetColor(slot int, rgb [3]uint8) error
	GetColor(slot int) [3]uint8
	Progress(kind string, value float64)
	Ident(title string)
	Destroy(reason string)
	AcceptSubwindow(kind string) (Subwindow, bool)
	Dimensions() (cols, rows int)
	Hide() // hide the cursor, spec §4.D/E error paths
}

// Subwindow is accepted only for kind == "DEBUG" per spec §4.E.
type Subwindow interface {
	Bind(sink *debugsink.Sink)
}

// Indefinite tells Process to block until an event arrives, matching spec
// §4.E step 2's "timeout -1".
const Indefinite time.Duration = -1

// ProcessResult reports what Process observed this round.
type ProcessResult struct {
	Fatal      bool
	PTYWork    bool // a dirtyfd wakeup was seen; render must ack via Hold
	Resized    bool
	Cols, Rows int
	Reset      ResetState
	ExecState  ExecState
	Subwindow  string // "DEBUG" or ""
}

// ResetState mirrors spec §4.E's reset event values.
type ResetState int

const (
	ResetNone ResetState = iota
	ResetSoft
	ResetHard
	ResetOther
)

// ExecState mirrors spec §4.E's exec-state event mapping to
// SIGCONT/SIGSTOP/SIGHUP.
type ExecState int

const (
	ExecStateNone ExecState = iota
	ExecStateCont
	ExecStateStop
	ExecStateHUP
)

// New allocates the socketpair and debug sink and wires a fresh VT engine,
// but does not yet spawn a child or start any goroutine — that is Run's job.
func New(args argload.Args, disp Display, debugLog string) (*Context, error) {
	dirtyfd, signalfd, err := socketpair()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	debug := debugsink.Nop()
	if debugLog != "" {
		debug = debugsink.New(true, debugLog, id)
	}

	cols, rows := disp.Dimensions()
	vt := vtadapter.New(rows, cols, nil, debug)
	vt.Title = disp.Ident

	c := &Context{
		Display:    disp,
		VT:         vt,
		Args:       args,
		DieOnTerm:  !args.KeepAlive,
		Pipe:       args.Pipe,
		dirtyfd:    dirtyfd,
		signalfd:   signalfd,
		Debug:      debug,
		InstanceID: id,
		ExecEnv:    spawn.EnvFromOS(),
	}
	c.LastInput.Store(time.Now().UnixNano())
	return c, nil
}

// socketpair creates the single connected unix-domain socket pair spec
// §3/§4.F names dirtyfd/signalfd. Both ends are bidirectional; which side
// writes vs. polls is a convention enforced by the pump and render loop,
// not by the descriptors themselves.
func socketpair() (dirtyfd, signalfd *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("termctx: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "dirtyfd"), os.NewFile(uintptr(fds[1]), "signalfd"), nil
}

// DirtyFD returns the pump's end of the socketpair: it writes a wakeup
// byte here to poke the render loop, and polls it to receive the render
// loop's own wakeups (spec §4.E "write a byte to signalfd to unblock the
// pump").
func (c *Context) DirtyFD() int {
	return int(c.dirtyfd.Fd())
}

// SignalFD returns the render loop's end of the socketpair: Display.Process
// polls it as the wakeup source (spec §4.E step 2), and the render loop
// writes to it to unblock the pump on a subwindow bind.
func (c *Context) SignalFD() int {
	return int(c.signalfd.Fd())
}

// Close tears down the socketpair, retrying per spec §7 and quarantining
// on persistent failure.
func (c *Context) Close() {
	for _, f := range []*os.File{c.dirtyfd, c.signalfd} {
		if f == nil {
			continue
		}
		fd := int(f.Fd())
		quarantine.CloseRetrying(&c.Quarantine, fd, "termctx-socketpair", 10, f.Close)
	}
}

// NoteInput updates the advisory idle-detection timestamp (spec §3
// "last_input").
func (c *Context) NoteInput() {
	c.LastInput.Store(time.Now().UnixNano())
}

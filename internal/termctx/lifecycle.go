package termctx

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"afsrvterm/internal/spawn"
)

// HUPWatch replaces arcterm.c's SIGHUP handler, which mutates term.pty
// directly from signal context. Spec §9 flags that as "inherently racy"
// and recommends a self-pipe written from the handler and read in normal
// context; Go's signal.Notify channel already *is* that self-pipe, so
// this goroutine is the idiomatic equivalent: it never touches c.Child
// from a signal handler, only from this ordinary goroutine.
func (c *Context) HUPWatch(stop <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-sigCh:
			c.hangup()
		case <-stop:
			return
		}
	}
}

// hangup implements spec §3 invariant 4: once pty is nil, no further reads
// or writes occur. Child is set to nil here, in normal goroutine context,
// never inside a signal handler.
func (c *Context) hangup() {
	if c.Debug != nil {
		c.Debug.ChildExit("sighup", !c.DieOnTerm)
	}
	if c.Child != nil {
		quarantineClose(c, c.Child.Master)
		c.Child = nil
	}
	c.Alive.Store(false)
}

func quarantineClose(c *Context, f *os.File) {
	fd := int(f.Fd())
	closeWithRetry(c, fd, "pty-master", f.Close)
}

func closeWithRetry(c *Context, fd int, tag string, closer func() error) {
	attempts := 0
	var err error
	for attempts < 10 {
		attempts++
		if err = closer(); err == nil {
			return
		}
	}
	c.Quarantine.Add(fd, tag)
	if c.Debug != nil {
		c.Debug.BrokenFD(fd, tag)
	}
}

// Respawn performs spec §4.E reset(1)'s final step: re-run the shell
// spawner (§4.B) to start a fresh child after a hard reset has torn the old
// one down. Resize to the display's current dimensions first.
func (c *Context) Respawn() error {
	cols, rows := c.Display.Dimensions()
	child, err := spawn.Spawn(c.Args, c.ExecEnv, rows, cols)
	if err != nil {
		return fmt.Errorf("termctx: respawn: %w", err)
	}
	c.Child = child
	c.VT.Resize(rows, cols)
	c.VT.HardReset()
	c.VT.Vt.ForwardResponses = child.Master
	c.Alive.Store(true)
	c.Complete.Store(false)
	go c.reapChild(child)
	return nil
}

// reapChild waits for a spawned child to exit so it never lingers as a
// zombie; the pump learns of the PTY-side consequence (EOF on the master)
// independently and is what actually flips Alive off and wakes the render
// loop (spec §4.D's fail path).
func (c *Context) reapChild(child *spawn.Child) {
	waitErr := child.Cmd.Wait()
	reason := "child_exit"
	if st := child.Cmd.ProcessState; st != nil {
		c.LastExit.Store(int32(st.ExitCode()))
		reason = fmt.Sprintf("child_exit: code=%d", st.ExitCode())
	} else if waitErr != nil {
		reason = fmt.Sprintf("child_exit: %v", waitErr)
	}
	if c.Debug != nil {
		c.Debug.ChildExit(reason, !c.DieOnTerm)
	}
}

// SignalChild delivers the signal named by spec §4.E's "Execution-state event"
// mapping (0/1/2 -> SIGCONT/SIGSTOP/SIGHUP) to the child process.
func (c *Context) SignalChild(state ExecState) error {
	if c.Child == nil || c.Child.Cmd == nil || c.Child.Cmd.Process == nil {
		return nil
	}
	var sig os.Signal
	switch state {
	case ExecStateCont:
		sig = syscall.SIGCONT
	case ExecStateStop:
		sig = syscall.SIGSTOP
	case ExecStateHUP:
		sig = syscall.SIGHUP
	default:
		return nil
	}
	return c.Child.Cmd.Process.Signal(sig)
}

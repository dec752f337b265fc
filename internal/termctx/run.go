package termctx

import (
	"fmt"
	"os"

	"afsrvterm/internal/argload"
	"afsrvterm/internal/pump"
)

// Run is the composition root spec §4.H names: it spawns the child behind a
// PTY, starts the pump goroutine and the SIGHUP watcher, then runs the
// render loop until the display is destroyed or the pump reports a fatal
// PTY error. Disp is already live (raw mode entered, resize watcher
// started) by the time Run is called; Run owns spawning the child and
// tearing everything down on return.
//
// runRenderLoop is the render loop entrypoint (internal/render.Loop.Run),
// injected rather than imported directly to avoid termctx importing its own
// caller; spawning and respawning use this package's own Context.Respawn
// in lifecycle.go.
func Run(args argload.Args, disp Display, debugLog string, runRenderLoop func(*Context) error) (exitCode int, err error) {
	c, err := New(args, disp, debugLog)
	if err != nil {
		return 1, err
	}
	defer c.Close()

	if err := c.Respawn(); err != nil {
		return 1, fmt.Errorf("termctx: initial spawn: %w", err)
	}
	c.Alive.Store(true)

	stop := make(chan struct{})
	go c.HUPWatch(stop)
	defer close(stop)

	p := &pump.Pump{
		PTY:      c.Child.Master,
		VT:       c.VT,
		Debug:    c.Debug,
		Synch:    &c.Synch,
		Hold:     &c.Hold,
		WakeupFD: c.DirtyFD(),
		DebugFD:  c.Debug.Fd,
		Pipe:     c.Pipe,
		Alive:    &c.Alive,
	}
	if c.Pipe {
		p.Mirror = os.Stdout
		p.Stdin = os.Stdin
	}
	p.OnFatal = func(err error) {
		if c.Debug != nil {
			c.Debug.ChildExit(fmt.Sprintf("pump_fatal: %v", err), !c.DieOnTerm)
		}
	}
	go p.Run()

	if err := runRenderLoop(c); err != nil {
		c.Alive.Store(false)
		disp.Destroy(err.Error())
		return 1, err
	}

	disp.Destroy("")
	return int(c.LastExit.Load()), nil
}

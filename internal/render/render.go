// Package render implements the render loop from spec §4.E: it owns the
// display connection, dispatches input callbacks into the VT adapter,
// refreshes, and handles resize/reset/lifecycle events. It is grounded on
// the teacher's Wrapper.Run main loop and RenderScreen/RenderBar pair
// (internal/terminal/wrapper.go), generalized behind the termctx.Display
// interface so the same loop drives either LocalDisplay (this package) or
// a real shared-memory arcan-tui client.
package render

import (
	"fmt"

	"afsrvterm/internal/termctx"
)

// Loop runs spec §4.E's render iteration against a termctx.Context.
type Loop struct {
	Ctx *termctx.Context

	// Respawn is called on a hard reset once the old child has been torn
	// down (spec §4.E reset state 1's final step); termctx.Context.Respawn
	// satisfies this.
	Respawn func() error
	// SignalChild delivers the exec-state mapping (spec §4.E); satisfied by
	// termctx.Context.SignalChild.
	SignalChild func(termctx.ExecState) error
}

// Run executes spec §4.E's loop until Process reports a fatal result,
// Process or Refresh returns an error, or the child is gone without
// keep_alive. It returns that error, or nil for the other two cases.
func (l *Loop) Run() error {
	c := l.Ctx
	signalReadFD := c.SignalFD()

	for {
		c.Synch.Lock()

		result, err := c.Display.Process(signalReadFD, termctx.Indefinite)
		if err != nil {
			c.Synch.Unlock()
			return fmt.Errorf("render: process: %w", err)
		}
		if result.Fatal {
			c.Synch.Unlock()
			return nil
		}

		if result.Resized {
			l.handleResize(result.Cols, result.Rows)
		}
		if result.Reset != termctx.ResetNone {
			l.handleReset(result.Reset)
		}
		if result.ExecState != termctx.ExecStateNone && l.SignalChild != nil {
			l.SignalChild(result.ExecState)
		}
		if result.Subwindow == "DEBUG" {
			l.bindDebugSubwindow()
		}

		if !c.Alive.Load() && !c.DieOnTerm && !c.Complete.Load() {
			c.Display.Progress("internal", 1.0)
			c.Complete.Store(true)
			if c.Debug != nil {
				c.Debug.ChildExit("keep_alive_progress", true)
			}
		}

		if rerr := c.Display.Refresh(); rerr != nil {
			c.Synch.Unlock()
			return fmt.Errorf("render: refresh: %w", rerr)
		}

		c.Synch.Unlock()

		if result.PTYWork {
			drainWakeup(signalReadFD)
			// Acquire-and-immediately-release Hold: the matching half of the
			// pump's handshake (spec §4.E step 7) — guarantees the pump has
			// completed its mutation before the next iteration locks Synch.
			c.Hold.Lock()
			c.Hold.Unlock()
		}

		if !c.Alive.Load() && c.DieOnTerm {
			return nil
		}
	}
}

// handleResize implements spec §4.E's "Resize": apply the new geometry to
// the PTY and zero the frame counter (tracked on the display side; this
// loop only triggers the PTY-side half).
func (l *Loop) handleResize(cols, rows int) {
	c := l.Ctx
	if c.Child != nil {
		Resize(c.Child.Master, rows, cols)
	}
	c.VT.Resize(rows, cols)
}

// handleReset implements spec §4.E's reset event.
func (l *Loop) handleReset(state termctx.ResetState) {
	c := l.Ctx
	switch state {
	case termctx.ResetSoft:
		c.Display.Reset()
		c.VT.HardReset()
	case termctx.ResetHard:
		c.Display.Reset()
		c.VT.HardReset()
		if c.Alive.Load() {
			c.SignalChild(termctx.ExecStateHUP)
			c.Alive.Store(false)
		}
		if !c.DieOnTerm {
			c.Complete.Store(false)
			c.Display.Progress("internal", 0.0)
		}
		if l.Respawn != nil {
			if err := l.Respawn(); err != nil && c.Debug != nil {
				c.Debug.ChildExit("respawn_failed: "+err.Error(), !c.DieOnTerm)
			}
		}
	case termctx.ResetOther:
		// no-op per spec §4.E
	}
}

// bindDebugSubwindow implements spec §4.E's "only DEBUG subwindows are
// honored; they are bound to the VT's debug sink and a byte is written to
// signalfd to unblock the pump so it can start streaming."
func (l *Loop) bindDebugSubwindow() {
	c := l.Ctx
	sw, ok := c.Display.AcceptSubwindow("DEBUG")
	if !ok {
		return
	}
	sw.Bind(c.Debug)
	pokeWakeup(c.SignalFD())
}

// WriteInput implements spec §4.E's "Input -> PTY path": UTF-8 input from
// the display is written directly to the PTY file descriptor. Write
// failure toggles alive=false and hides the cursor.
func WriteInput(c *termctx.Context, data []byte) {
	if c.Child == nil {
		return
	}
	c.NoteInput()
	if _, err := c.Child.Master.Write(data); err != nil {
		c.Alive.Store(false)
		c.Display.Hide()
	}
}

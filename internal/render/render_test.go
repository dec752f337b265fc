package render

import (
	"testing"
	"time"

	"afsrvterm/internal/argload"
	"afsrvterm/internal/termctx"
)

// fakeDisplay is a minimal termctx.Display double driven entirely by a
// test-fed event channel, standing in for LocalDisplay so Loop.Run can be
// exercised without a real tty or PTY.
type fakeDisplay struct {
	events      chan termctx.ProcessResult
	destroyed   bool
	resetCalled bool
	cols, rows  int
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{events: make(chan termctx.ProcessResult, 8), cols: 80, rows: 24}
}

func (d *fakeDisplay) Process(wakeupFD int, timeout time.Duration) (termctx.ProcessResult, error) {
	return <-d.events, nil
}
func (d *fakeDisplay) Refresh() error                                        { return nil }
func (d *fakeDisplay) Reset() error                                          { d.resetCalled = true; return nil }
func (d *fakeDisplay) SetColor(slot int, rgb [3]uint8) error                 { return nil }
func (d *fakeDisplay) GetColor(slot int) [3]uint8                            { return [3]uint8{} }
func (d *fakeDisplay) Progress(kind string, value float64)                  {}
func (d *fakeDisplay) Ident(title string)                                   {}
func (d *fakeDisplay) Destroy(reason string)                                { d.destroyed = true }
func (d *fakeDisplay) AcceptSubwindow(kind string) (termctx.Subwindow, bool) { return nil, false }
func (d *fakeDisplay) Dimensions() (cols, rows int)                         { return d.cols, d.rows }
func (d *fakeDisplay) Hide()                                                 {}

func TestLoopRunAppliesSoftResetThenExitsOnDeath(t *testing.T) {
	disp := newFakeDisplay()
	c, err := termctx.New(argload.Args{}, disp, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	c.Alive.Store(true) // DieOnTerm defaults true (KeepAlive false)

	loop := &Loop{Ctx: c}

	disp.events <- termctx.ProcessResult{Reset: termctx.ResetSoft}
	go func() {
		c.Alive.Store(false)
		disp.events <- termctx.ProcessResult{}
	}()

	done := make(chan error, 1)
	go func() { done <- loop.Run() }()

	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("Run returned error: %v", runErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if !disp.resetCalled {
		t.Error("expected Display.Reset to be called for a soft reset event")
	}
}

func TestLoopRunAppliesResize(t *testing.T) {
	disp := newFakeDisplay()
	c, err := termctx.New(argload.Args{}, disp, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	c.Alive.Store(true)

	loop := &Loop{Ctx: c}

	disp.events <- termctx.ProcessResult{Resized: true, Cols: 120, Rows: 40}
	go func() {
		c.Alive.Store(false)
		disp.events <- termctx.ProcessResult{}
	}()

	done := make(chan error, 1)
	go func() { done <- loop.Run() }()

	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("Run returned error: %v", runErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	rows, cols := c.VT.Dimensions()
	if rows != 40 || cols != 120 {
		t.Errorf("VT dimensions = %d,%d, want 40,120", rows, cols)
	}
}

// Package vtadapter wraps github.com/vito/midterm's virtual-terminal state
// machine as the narrow interface spec §4.C names: a write-back callback,
// an OSC string callback, palette/color get-set, hard reset, and paste
// input translation. midterm itself plays the role of the out-of-scope "VT
// state machine" (spec §1). Keyboard/mouse-button events have no discrete
// adapter path here: LocalDisplay forwards raw tty bytes straight to the
// PTY master (render.WriteInput), the way a real host terminal's own line
// discipline would, rather than decoding keysyms the way an arcan shmif
// display client's TARGET_COMMAND keyboard events would need to be.
package vtadapter

import (
	"fmt"
	"io"
	"sync"

	"github.com/vito/midterm"

	"afsrvterm/internal/debugsink"
	"afsrvterm/internal/palette"
)

// Engine owns a midterm.Terminal and exposes the callback surface spec
// §4.C describes. All VT mutation must happen with the caller holding the
// terminal context's synch mutex (spec §3 invariant 2) — Engine itself
// does not lock; internal/pump and internal/render are responsible for
// that discipline, exactly as arcterm.c's single-threaded-by-mutex
// convention works.
type Engine struct {
	Vt *midterm.Terminal

	mu         sync.Mutex
	palette    palette.Palette
	colors     [16]palette.RGB
	bg, fg     palette.RGB
	rows, cols int

	scanner oscScanner
	debug   *debugsink.Sink

	// Title is called with the window-title text extracted from an OSC
	// 0/1/2 sequence (spec §4.C: "recognizes 0;,1;,2; prefixes as set
	// window title").
	Title func(string)
}

// New creates an Engine with a freshly allocated midterm.Terminal of the
// given size, writing VT responses (cursor reports, etc.) to ptyWriteback.
func New(rows, cols int, ptyWriteback io.Writer, debug *debugsink.Sink) *Engine {
	vt := midterm.NewTerminal(rows, cols)
	vt.ForwardResponses = ptyWriteback
	e := &Engine{Vt: vt, debug: debug, rows: rows, cols: cols}
	def, _ := palette.Load("default")
	e.applyPalette(def)
	return e
}

// Feed forwards PTY output bytes to the VT, first extracting any OSC
// sequences for the adapter's own handling (title, stubbed color/clipboard
// commands) the way arcterm.c's str_callback intercepts OSC separately
// from tsm_vte_input's cell-grid handling.
func (e *Engine) Feed(data []byte) {
	e.scanner.Feed(data, e.handleOSC)
	e.Vt.Write(data)
}

// Resize resizes the VT's cell grid (spec §4.E "resize").
func (e *Engine) Resize(rows, cols int) {
	e.Vt.Resize(rows, cols)
	e.mu.Lock()
	e.rows, e.cols = rows, cols
	e.mu.Unlock()
}

// Dimensions returns the VT's current size, used by the pump's readout cap
// (spec §4.D: "cap = width*height*4 bytes").
func (e *Engine) Dimensions() (rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows, e.cols
}

func (e *Engine) handleOSC(msg OSCMessage) {
	if msg.Crop || len(msg.Group) == 0 {
		if e.debug != nil {
			e.debug.MalformedOSC("crop-or-empty-group", len(msg.Body))
		}
		return
	}

	switch msg.Group {
	case "0", "1", "2":
		if e.Title != nil {
			e.Title(msg.Body)
		}
	case "4", "5", "52":
		// Palette/special-color/clipboard: stubbed per spec §4.C/§9 — logged,
		// not honored, to stay compatible with the original's silence.
		if e.debug != nil {
			e.debug.UnhandledOSC(msg.Group)
		}
	default:
		if e.debug != nil {
			e.debug.UnhandledOSC(msg.Group)
		}
	}
}

// MouseMotion accepts absolute mouse motion only; relative events are
// dropped, matching arcterm.c's on_mouse_motion (spec §4.C, SPEC_FULL §5).
func (e *Engine) MouseMotion(x, y, mods int, relative bool) {
	if relative {
		return
	}
	// midterm does not model a separate mouse-motion sink, and absolute
	// motion is not forwarded either: no mouse report is written to the
	// child.
	_ = x
	_ = y
	_ = mods
}

// Paste writes pasted UTF-8 bytes to the VT's PTY write-back target. Per
// spec §8 scenario 4, paste bytes reach the PTY master unmodified and in
// order; no bracketed-paste wrapping is added.
func (e *Engine) Paste(data []byte) {
	if e.Vt.ForwardResponses != nil {
		e.Vt.ForwardResponses.Write(data)
	}
}

// HardReset discards VT state and reallocates a fresh cell grid at the same
// dimensions and writeback target (spec §4.E reset state 0/1).
func (e *Engine) HardReset() {
	e.mu.Lock()
	rows, cols := e.rows, e.cols
	e.mu.Unlock()
	fwd := e.Vt.ForwardResponses
	e.Vt = midterm.NewTerminal(rows, cols)
	e.Vt.ForwardResponses = fwd
}

// SetPalette loads a built-in palette by name (spec §4.A "palette").
func (e *Engine) SetPalette(name string) error {
	p, err := palette.Load(name)
	if err != nil {
		return err
	}
	e.applyPalette(p)
	return nil
}

func (e *Engine) applyPalette(p palette.Palette) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.palette = p
	e.colors = p.Colors
	e.bg = p.Background
	e.fg = p.Foreground
}

// SetColor overrides a single palette slot (spec §4.A "ci").
func (e *Engine) SetColor(index uint8, rgb [3]uint8) error {
	if index >= 16 {
		return fmt.Errorf("vtadapter: color index %d out of range", index)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.colors[index] = palette.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}
	return nil
}

// GetColor returns the color of slot, or the background/foreground for the
// special slots 16/17.
func (e *Engine) GetColor(slot int) palette.RGB {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case slot == 16:
		return e.bg
	case slot == 17:
		return e.fg
	case slot >= 0 && slot < 16:
		return e.colors[slot]
	default:
		return palette.RGB{}
	}
}

// Background returns the current background color.
func (e *Engine) Background() palette.RGB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bg
}

// Foreground returns the current foreground color.
func (e *Engine) Foreground() palette.RGB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fg
}

// SetBackground/SetForeground apply explicit overrides (spec §4.A "bgc"/"fgc").
func (e *Engine) SetBackground(rgb palette.RGB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bg = rgb
}

func (e *Engine) SetForeground(rgb palette.RGB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fg = rgb
}

package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/vito/midterm"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"afsrvterm/internal/debugsink"
	"afsrvterm/internal/termctx"
)

// wakeupPollMS mirrors the pump's own poll cadence (spec §4.D): the display
// side has no poll loop of its own to fold the wakeup fd into, so it runs a
// dedicated short-poll watcher instead.
const wakeupPollMS = 10

// LocalDisplay is the concrete Display spec §1/§6 calls an external
// collaborator: it puts the controlling tty into raw mode, renders a
// midterm.Terminal cell grid with ANSI escapes, and turns SIGWINCH into a
// resize ProcessResult — grounded on the teacher's Wrapper.Run,
// RenderScreen/RenderLine, and WatchResize (internal/terminal/wrapper.go).
// Unlike the teacher, which owns the VT directly, LocalDisplay only reads
// it; all mutation happens through vtadapter.Engine under the render
// loop's Synch lock.
type LocalDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	in      io.Reader
	ttyFd   int
	restore *term.State
	vt      *midterm.Terminal
	cols, rows int
	lastFrame  int
	title      string

	inputFn func([]byte) // registered input sink; render.WriteInput via Loop wiring
	pasteFn func([]byte)
	inPaste bool // true between a CSI 200~ start marker and its CSI 201~ end marker

	events chan displayEvent

	inputCh    chan []byte
	wakeupCh   chan struct{}
	wakeupOnce sync.Once

	oscFg, oscBg string
}

type displayEvent struct {
	resize    *[2]int // {cols, rows}
	reset     termctx.ResetState
	execState termctx.ExecState
	subwindow string
}

// NewLocalDisplay puts fd into raw mode and starts the SIGWINCH watcher.
// termctx.New calls disp.Dimensions() to size the VT engine it allocates,
// so the midterm.Terminal the engine owns cannot exist yet when the display
// itself is constructed; callers must follow up with BindVT once that
// engine exists, before the first Refresh.
func NewLocalDisplay(out io.Writer, in io.Reader, fd int) (*LocalDisplay, error) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return nil, fmt.Errorf("render: get terminal size: %w", err)
	}
	restore, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("render: set raw mode: %w", err)
	}

	d := &LocalDisplay{
		out: out, in: in, ttyFd: fd, restore: restore,
		cols: cols, rows: rows,
		events:   make(chan displayEvent, 8),
		inputCh:  make(chan []byte, 8),
		wakeupCh: make(chan struct{}, 1),
	}

	output := termenv.NewOutput(os.Stdout)
	if fg := output.ForegroundColor(); fg != nil {
		d.oscFg = colorToX11(fg)
	}
	if bg := output.BackgroundColor(); bg != nil {
		d.oscBg = colorToX11(bg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go d.watchResize(sigCh)
	if d.in != nil {
		go d.readInput()
	}

	return d, nil
}

// readInput is the persistent keyboard-byte reader: a fresh goroutine per
// Process call would leave the previous call's blocked Read racing the next
// one against the same reader, so this runs once for the display's lifetime
// and feeds inputCh instead. Not started at all when in is nil — pipe mode
// (spec §4.D step 3) gives pump.pipeStdin sole ownership of stdin instead,
// since two goroutines reading the same os.Stdin would race over who gets
// each byte.
func (d *LocalDisplay) readInput() {
	buf := make([]byte, 256)
	for {
		n, err := d.in.Read(buf)
		if err != nil {
			close(d.inputCh)
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		d.inputCh <- cp
	}
}

// watchWakeup polls wakeupFD (the render loop's signalfd end) on the same
// cadence the pump itself polls at (spec §4.D), since there is no unified
// poll loop here to fold the fd into. It only notifies; draining the fd
// after a PTYWork result is the render loop's job (spec §4.E step 7).
func (d *LocalDisplay) watchWakeup(fd int) {
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, wakeupPollMS)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			select {
			case d.wakeupCh <- struct{}{}:
			default:
			}
		}
	}
}

// BindVT attaches the midterm.Terminal the VT engine owns; it must be
// called once, before the render loop's first Refresh.
func (d *LocalDisplay) BindVT(vt *midterm.Terminal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vt = vt
}

// BindInput registers the sink Process forwards raw keyboard bytes to
// (spec §4.E "Input -> PTY path"); paste is forwarded separately once
// bracketed-paste framing is detected.
func (d *LocalDisplay) BindInput(input, paste func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputFn = input
	d.pasteFn = paste
}

// TriggerReset queues an external reset event (spec §4.E "Reset event"),
// the local-display stand-in for a session manager's target command.
func (d *LocalDisplay) TriggerReset(state termctx.ResetState) {
	d.events <- displayEvent{reset: state}
}

// TriggerExecState queues an external exec-state event (spec §4.E
// "Execution-state event").
func (d *LocalDisplay) TriggerExecState(state termctx.ExecState) {
	d.events <- displayEvent{execState: state}
}

// TriggerDebugSubwindow queues a DEBUG subwindow request.
func (d *LocalDisplay) TriggerDebugSubwindow() {
	d.events <- displayEvent{subwindow: "DEBUG"}
}

func (d *LocalDisplay) watchResize(sigCh <-chan os.Signal) {
	for range sigCh {
		cols, rows, err := term.GetSize(d.ttyFd)
		if err != nil {
			continue
		}
		size := [2]int{cols, rows}
		d.events <- displayEvent{resize: &size}
	}
}

// Process implements termctx.Display: it waits for the next keyboard byte,
// wakeup-fd readiness, or queued internal event, dispatching input
// directly and returning everything else as a ProcessResult for the
// render loop to act on (spec §4.E step 2).
func (d *LocalDisplay) Process(wakeupFD int, timeout time.Duration) (termctx.ProcessResult, error) {
	d.wakeupOnce.Do(func() { go d.watchWakeup(wakeupFD) })

	select {
	case data, ok := <-d.inputCh:
		if !ok {
			return termctx.ProcessResult{Fatal: true}, nil
		}
		d.dispatchInput(data)
		return termctx.ProcessResult{}, nil
	case <-d.wakeupCh:
		return termctx.ProcessResult{PTYWork: true}, nil
	case ev := <-d.events:
		return d.applyEvent(ev), nil
	}
}

const (
	bracketedPasteStart = "\033[200~"
	bracketedPasteEnd   = "\033[201~"
)

// dispatchInput splits bracketed-paste spans (CSI 200~ ... CSI 201~) out of
// the raw keyboard stream and routes them to pasteFn, forwarding everything
// else to inputFn — spec §4.C models paste as a distinct callback from
// keyboard input, but a real host terminal multiplexes both over the same
// byte stream the way xterm's bracketed-paste mode does.
func (d *LocalDisplay) dispatchInput(data []byte) {
	d.mu.Lock()
	input, paste := d.inputFn, d.pasteFn
	d.mu.Unlock()

	for len(data) > 0 {
		if !d.inPaste {
			if i := bytes.Index(data, []byte(bracketedPasteStart)); i >= 0 {
				if i > 0 && input != nil {
					input(data[:i])
				}
				d.inPaste = true
				data = data[i+len(bracketedPasteStart):]
				continue
			}
			if input != nil {
				input(data)
			}
			return
		}
		if i := bytes.Index(data, []byte(bracketedPasteEnd)); i >= 0 {
			if paste != nil {
				paste(data[:i])
			}
			d.inPaste = false
			data = data[i+len(bracketedPasteEnd):]
			continue
		}
		if paste != nil {
			paste(data)
		}
		return
	}
}

func (d *LocalDisplay) applyEvent(ev displayEvent) termctx.ProcessResult {
	if ev.resize != nil {
		d.mu.Lock()
		d.cols, d.rows = ev.resize[0], ev.resize[1]
		d.lastFrame = 0
		d.mu.Unlock()
		return termctx.ProcessResult{Resized: true, Cols: ev.resize[0], Rows: ev.resize[1]}
	}
	if ev.reset != termctx.ResetNone {
		return termctx.ProcessResult{Reset: ev.reset}
	}
	if ev.execState != termctx.ExecStateNone {
		return termctx.ProcessResult{ExecState: ev.execState}
	}
	if ev.subwindow != "" {
		return termctx.ProcessResult{Subwindow: ev.subwindow}
	}
	return termctx.ProcessResult{}
}

// Refresh redraws the cell grid, the way the teacher's RenderScreen does.
func (d *LocalDisplay) Refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	buf.WriteString("\033[?25l")
	for row := 0; row < d.rows && row < len(d.vt.Content); row++ {
		fmt.Fprintf(&buf, "\033[%d;1H\033[2K", row+1)
		renderLine(&buf, d.vt, row)
	}
	buf.WriteString("\033[?25h")
	_, err := d.out.Write(buf.Bytes())
	d.lastFrame++
	return err
}

func renderLine(buf *bytes.Buffer, vt *midterm.Terminal, row int) {
	line := vt.Content[row]
	var pos int
	var lastFormat midterm.Format
	for region := range vt.Format.Regions(row) {
		f := region.F
		if f != lastFormat {
			buf.WriteString("\033[0m")
			buf.WriteString(f.Render())
			lastFormat = f
		}
		end := pos + region.Size
		if pos < len(line) {
			contentEnd := end
			if contentEnd > len(line) {
				contentEnd = len(line)
			}
			buf.WriteString(string(line[pos:contentEnd]))
		}
		padStart := len(line)
		if padStart < pos {
			padStart = pos
		}
		if padStart < end {
			buf.WriteString(strings.Repeat(" ", end-padStart))
		}
		pos = end
	}
	buf.WriteString("\033[0m")
}

// Reset implements spec §4.E's soft-reset display.reset() call: clear the
// screen and redraw from scratch on the next Refresh.
func (d *LocalDisplay) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFrame = 0
	_, err := d.out.Write([]byte("\033[2J\033[H"))
	return err
}

// SetColor/GetColor satisfy the Display contract but delegate actual
// storage to vtadapter.Engine's palette; LocalDisplay has no independent
// color state of its own beyond what it renders from midterm.Format.
func (d *LocalDisplay) SetColor(slot int, rgb [3]uint8) error { return nil }
func (d *LocalDisplay) GetColor(slot int) [3]uint8            { return [3]uint8{} }

// Progress renders a one-line status marker (spec §4.E "progress(1.0)").
func (d *LocalDisplay) Progress(kind string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "\033[%d;1H\033[2K[%s %.0f%%]\033[?25l", d.rows+1, kind, value*100)
}

// Ident sets the window title via OSC 0 (spec §4.C "set window title").
func (d *LocalDisplay) Ident(title string) {
	d.mu.Lock()
	d.title = title
	d.mu.Unlock()
	fmt.Fprintf(d.out, "\033]0;%s\007", title)
}

// Destroy tears down raw mode and restores the terminal (spec §3
// "Destroyed": display torn down).
func (d *LocalDisplay) Destroy(reason string) {
	term.Restore(d.ttyFd, d.restore)
	d.out.Write([]byte("\033[?25h\033[0m\r\n"))
}

// AcceptSubwindow only honors "DEBUG" (spec §4.E).
func (d *LocalDisplay) AcceptSubwindow(kind string) (termctx.Subwindow, bool) {
	if kind != "DEBUG" {
		return nil, false
	}
	return debugSubwindow{}, true
}

// debugSubwindow is a stand-in for a real bound subwindow: this local
// adapter has no separate rendering surface to hand the sink to, so
// binding is a no-op beyond satisfying termctx.Subwindow — a real
// shmif-backed Display would route sink's bytes to the subwindow's own
// buffer here.
type debugSubwindow struct{}

func (debugSubwindow) Bind(sink *debugsink.Sink) {}

// Dimensions returns the current cell-grid size.
func (d *LocalDisplay) Dimensions() (cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cols, d.rows
}

// Hide hides the cursor (spec §4.D/E error paths: "hide cursor").
func (d *LocalDisplay) Hide() {
	d.out.Write([]byte("\033[?25l"))
}

// RespondOSCColors answers OSC 10/11 queries with the real host terminal's
// colors, detected before raw mode (grounded verbatim on the teacher's
// RespondOSCColors).
func (d *LocalDisplay) RespondOSCColors(data []byte, reply io.Writer) {
	if d.oscFg != "" && bytes.Contains(data, []byte("\033]10;?")) {
		fmt.Fprintf(reply, "\033]10;%s\033\\", d.oscFg)
	}
	if d.oscBg != "" && bytes.Contains(data, []byte("\033]11;?")) {
		fmt.Fprintf(reply, "\033]11;%s\033\\", d.oscBg)
	}
}

func colorToX11(c termenv.Color) string {
	if v, ok := c.(termenv.RGBColor); ok {
		hex := string(v)
		if len(hex) == 7 && hex[0] == '#' {
			r, _ := strconv.ParseUint(hex[1:3], 16, 8)
			g, _ := strconv.ParseUint(hex[3:5], 16, 8)
			b, _ := strconv.ParseUint(hex[5:7], 16, 8)
			return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
		}
	}
	return ""
}

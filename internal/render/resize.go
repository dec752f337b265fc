package render

import (
	"os"

	"github.com/creack/pty"
)

// Resize applies a new PTY geometry, the way the teacher's WatchResize
// calls pty.Setsize after adjusting its own Vt/Cols/Rows bookkeeping (spec
// §4.E "Resize: ... call pty_resize(cols,rows)").
func Resize(master *os.File, rows, cols int) error {
	return pty.Setsize(master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Package debugsink implements the VT adapter's debug drain: a JSONL log of
// malformed/unhandled escape sequences and other non-fatal VT oddities.
package debugsink

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Sink writes structured JSONL entries describing non-fatal VT events.
// All methods are safe for concurrent use. When disabled (w is nil), all
// methods are no-ops, so a Sink is always safe to pass around even when no
// debug subwindow has bound to it.
type Sink struct {
	mu  sync.Mutex
	w   *os.File
	tag string
}

// New creates a Sink that appends to logPath under the given tag (normally
// the terminal context's instance id). If enabled is false or the file
// cannot be opened, returns a no-op Sink.
func New(enabled bool, logPath, tag string) *Sink {
	if !enabled {
		return &Sink{}
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &Sink{}
	}
	return &Sink{w: f, tag: tag}
}

// Nop returns a disabled Sink.
func Nop() *Sink {
	return &Sink{}
}

type entry struct {
	Timestamp string `json:"ts"`
	Tag       string `json:"tag"`
	Event     string `json:"event"`
}

// MalformedOSC logs an OSC string the VT adapter could not parse (spec §4.C:
// "bad OSC sequence" / arcterm.c's str_callback crop/len check).
func (s *Sink) MalformedOSC(reason string, length int) {
	s.log(struct {
		entry
		Reason string `json:"reason"`
		Length int    `json:"length"`
	}{
		entry:  s.entry("malformed_osc"),
		Reason: reason,
		Length: length,
	})
}

// UnhandledOSC logs a recognized-but-unimplemented OSC command (4, 5, 52 —
// spec §4.C/§9 stubs).
func (s *Sink) UnhandledOSC(command string) {
	s.log(struct {
		entry
		Command string `json:"command"`
	}{
		entry:   s.entry("unhandled_osc"),
		Command: command,
	})
}

// BrokenFD logs a descriptor that was quarantined after repeated close
// failures (spec §7).
func (s *Sink) BrokenFD(fd int, source string) {
	s.log(struct {
		entry
		FD     int    `json:"fd"`
		Source string `json:"source"`
	}{
		entry:  s.entry("broken_fd"),
		FD:     fd,
		Source: source,
	})
}

// ChildExit logs child-lifecycle transitions (exit, keep_alive latch,
// respawn) for post-mortem diagnosis.
func (s *Sink) ChildExit(reason string, keepAlive bool) {
	s.log(struct {
		entry
		Reason    string `json:"reason"`
		KeepAlive bool   `json:"keep_alive"`
	}{
		entry:     s.entry("child_exit"),
		Reason:    reason,
		KeepAlive: keepAlive,
	})
}

// Fd returns the underlying file descriptor, or -1 if the sink is disabled.
// The pump thread polls this to implement spec §4.D's "debug fd" source.
func (s *Sink) Fd() int {
	if s.w == nil {
		return -1
	}
	return int(s.w.Fd())
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}

func (s *Sink) entry(event string) entry {
	return entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Tag:       s.tag,
		Event:     event,
	}
}

func (s *Sink) log(v any) {
	if s.w == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	data = append(data, '\n')
	s.mu.Lock()
	s.w.Write(data)
	s.mu.Unlock()
}

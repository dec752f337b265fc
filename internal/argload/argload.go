// Package argload parses the packed "key1=value:key2:key3=value" argument
// string (ARCAN_ARG) consumed by the terminal frameserver, plus the
// handful of environment variables that override or augment it.
package argload

import (
	"fmt"
	"strconv"
	"strings"
)

// CursorShape names a cursor rendering style (spec §4.A "cursor").
type CursorShape int

const (
	CursorBlock CursorShape = iota
	CursorFrame
	CursorHalfblock
	CursorVline
	CursorUline
)

func parseCursorShape(v string) (CursorShape, error) {
	switch v {
	case "block":
		return CursorBlock, nil
	case "frame":
		return CursorFrame, nil
	case "halfblock":
		return CursorHalfblock, nil
	case "vline":
		return CursorVline, nil
	case "uline":
		return CursorUline, nil
	default:
		return 0, fmt.Errorf("unknown cursor shape %q", v)
	}
}

// Color is an RGB(A) triple/quad parsed from a "r,g,b[,a]" packed value.
type Color struct {
	R, G, B, A uint8
	HasAlpha   bool
}

// IndexedColor is a palette-slot override from the repeatable "ci" key
// ("ind,r,g,b").
type IndexedColor struct {
	Index uint8
	Color Color
}

// Args is the parsed, read-only argument bag described in spec §3 ("args").
type Args struct {
	Env      []string // repeatable "env" key, raw "K=V" strings
	Chdir    string
	BGAlpha  *uint8
	BGColor  *Color
	FGColor  *Color
	CursorColor     *Color
	CursorLockColor *Color
	PaletteOverrides []IndexedColor
	Cursor    CursorShape
	HasCursor bool
	BlinkTicks *int
	Login      *string // nil = no login requested; "" = login as self
	ExecCmd    string
	Cmd        string // supplemented "cmd" key, see SPEC_FULL.md §5
	KeepAlive  bool
	Pipe       bool
	Palette    string
	TPack      bool
	CLI        bool
	Help       bool
}

// Parse splits a packed "key1=value:key2:key3=value" string into Args.
// A backslash before ':' escapes a literal colon inside a value.
func Parse(packed string) (Args, error) {
	var a Args
	for _, field := range splitPacked(packed) {
		if field == "" {
			continue
		}
		key, value, hasValue := strings.Cut(field, "=")
		if err := a.apply(key, value, hasValue); err != nil {
			return Args{}, fmt.Errorf("argload: field %q: %w", field, err)
		}
	}
	return a, nil
}

// splitPacked splits on unescaped ':' and unescapes "\:" to ":".
func splitPacked(packed string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(packed); i++ {
		c := packed[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func (a *Args) apply(key, value string, hasValue bool) error {
	switch key {
	case "env":
		if !hasValue || !strings.Contains(value, "=") {
			return fmt.Errorf("env requires K=V")
		}
		a.Env = append(a.Env, value)
	case "chdir":
		if !hasValue {
			return fmt.Errorf("chdir requires a directory")
		}
		a.Chdir = value
	case "bgalpha":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("bgalpha: %w", err)
		}
		v := uint8(n)
		a.BGAlpha = &v
	case "bgc":
		c, err := parseColor(value)
		if err != nil {
			return fmt.Errorf("bgc: %w", err)
		}
		a.BGColor = &c
	case "fgc":
		c, err := parseColor(value)
		if err != nil {
			return fmt.Errorf("fgc: %w", err)
		}
		a.FGColor = &c
	case "cc":
		c, err := parseColor(value)
		if err != nil {
			return fmt.Errorf("cc: %w", err)
		}
		a.CursorColor = &c
	case "cl":
		c, err := parseColor(value)
		if err != nil {
			return fmt.Errorf("cl: %w", err)
		}
		a.CursorLockColor = &c
	case "ci":
		ic, err := parseIndexedColor(value)
		if err != nil {
			return fmt.Errorf("ci: %w", err)
		}
		a.PaletteOverrides = append(a.PaletteOverrides, ic)
	case "cursor":
		shape, err := parseCursorShape(value)
		if err != nil {
			return err
		}
		a.Cursor = shape
		a.HasCursor = true
	case "blink":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("blink: %w", err)
		}
		a.BlinkTicks = &n
	case "login":
		user := value
		a.Login = &user
	case "exec":
		a.ExecCmd = value
	case "cmd":
		a.Cmd = value
	case "keep_alive":
		a.KeepAlive = true
	case "pipe":
		a.Pipe = true
	case "palette":
		a.Palette = value
	case "tpack":
		a.TPack = true
	case "cli":
		a.CLI = true
	case "help":
		a.Help = true
	default:
		return fmt.Errorf("unrecognized key %q", key)
	}
	return nil
}

func parseColor(v string) (Color, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("expected r,g,b[,a], got %q", v)
	}
	vals := make([]uint8, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Color{}, fmt.Errorf("component %d: %w", i, err)
		}
		vals[i] = uint8(n)
	}
	c := Color{R: vals[0], G: vals[1], B: vals[2]}
	if len(vals) == 4 {
		c.A = vals[3]
		c.HasAlpha = true
	}
	return c, nil
}

func parseIndexedColor(v string) (IndexedColor, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return IndexedColor{}, fmt.Errorf("expected ind,r,g,b, got %q", v)
	}
	idx, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
	if err != nil {
		return IndexedColor{}, fmt.Errorf("index: %w", err)
	}
	c, err := parseColor(strings.Join(parts[1:], ","))
	if err != nil {
		return IndexedColor{}, err
	}
	return IndexedColor{Index: uint8(idx), Color: c}, nil
}

// HelpText is the usage table arcterm.c's dump_help prints, reproduced per
// SPEC_FULL.md §5 (supplemented "help" key).
const HelpText = `Environment variables:
ARCAN_CONNPATH=path_to_server
ARCAN_TERMINAL_EXEC=value : run value through /bin/sh -c instead of shell
ARCAN_TERMINAL_ARGV       : exec will route through execvp instead of execv
ARCAN_TERMINAL_PIDFD_OUT  : writes exec pid into pidfd
ARCAN_TERMINAL_PIDFD_IN   : exec continues on incoming data

ARCAN_ARG=packed_args (key1=value:key2:key3=value)

Accepted packed_args:
    key      	   value   	   description
-------------	-----------	-----------------
 env         	 key=val   	 override default environment (repeatable)
 chdir       	 dir       	 change working dir before spawning shell
 bgalpha     	 rv(0..255)	 background opacity (default: 255, opaque)
 bgc         	 r,g,b     	 background color
 fgc         	 r,g,b     	 foreground color
 ci          	 ind,r,g,b 	 override palette at index
 cc          	 r,g,b     	 cursor color
 cl          	 r,g,b     	 cursor alternate (locked) state color
 cursor      	 name      	 set cursor (block, frame, halfblock, vline, uline)
 blink       	 ticks     	 set blink period, 0 to disable (default: 12)
 login       	 [user]    	 login (optional: user, only works for root)
 exec        	 cmd       	 run a shell command instead of the interactive shell
 cmd         	 cmd       	 argument passed to the interactive shell
 keep_alive  	           	 don't exit if the terminal or shell terminates
 pipe        	           	 map stdin-stdout
 palette     	 name      	 use built-in palette (below)
 tpack       	           	 use text-pack (server-side rendering) mode
 cli         	           	 switch to non-vt cli/builtin shell mode
bgalpha, bgc, fgc, ci, cc, cl, cursor, blink, palette and tpack are parsed
and validated, but the local display does not apply them.
Built-in palettes:
default, solarized, solarized-black, solarized-white, srcery
`

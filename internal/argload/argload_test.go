package argload

import "testing"

func TestParseBasic(t *testing.T) {
	a, err := Parse("palette=solarized:bgc=0,0,0:keep_alive:pipe")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Palette != "solarized" {
		t.Errorf("Palette = %q, want solarized", a.Palette)
	}
	if a.BGColor == nil || *a.BGColor != (Color{R: 0, G: 0, B: 0}) {
		t.Errorf("BGColor = %+v, want 0,0,0", a.BGColor)
	}
	if !a.KeepAlive {
		t.Error("KeepAlive = false, want true")
	}
	if !a.Pipe {
		t.Error("Pipe = false, want true")
	}
}

func TestParseRepeatableEnv(t *testing.T) {
	a, err := Parse("env=FOO=bar:env=BAZ=qux")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Env) != 2 || a.Env[0] != "FOO=bar" || a.Env[1] != "BAZ=qux" {
		t.Errorf("Env = %v", a.Env)
	}
}

func TestParseIndexedColor(t *testing.T) {
	a, err := Parse("ci=4,10,20,30")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.PaletteOverrides) != 1 {
		t.Fatalf("PaletteOverrides = %v", a.PaletteOverrides)
	}
	ic := a.PaletteOverrides[0]
	if ic.Index != 4 || ic.Color != (Color{R: 10, G: 20, B: 30}) {
		t.Errorf("PaletteOverrides[0] = %+v", ic)
	}
}

func TestParseCursorShape(t *testing.T) {
	a, err := Parse("cursor=halfblock")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !a.HasCursor || a.Cursor != CursorHalfblock {
		t.Errorf("Cursor = %v, HasCursor = %v", a.Cursor, a.HasCursor)
	}
}

func TestParseUnknownKey(t *testing.T) {
	if _, err := Parse("bogus=1"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestParseEscapedColon(t *testing.T) {
	a, err := Parse(`env=FOO=a\:b`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Env) != 1 || a.Env[0] != "FOO=a:b" {
		t.Errorf("Env = %v", a.Env)
	}
}

func TestParseLoginOptionalUser(t *testing.T) {
	a, err := Parse("login=alice")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Login == nil || *a.Login != "alice" {
		t.Errorf("Login = %v", a.Login)
	}

	a, err = Parse("login")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Login == nil || *a.Login != "" {
		t.Errorf("Login = %v, want empty string pointer", a.Login)
	}
}

func TestParseCmdAndExecAreDistinct(t *testing.T) {
	a, err := Parse("exec=/bin/echo hi:cmd=-l")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.ExecCmd != "/bin/echo hi" {
		t.Errorf("ExecCmd = %q", a.ExecCmd)
	}
	if a.Cmd != "-l" {
		t.Errorf("Cmd = %q", a.Cmd)
	}
}

func TestParseEmpty(t *testing.T) {
	a, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Palette != "" || a.KeepAlive {
		t.Errorf("expected zero-value Args, got %+v", a)
	}
}

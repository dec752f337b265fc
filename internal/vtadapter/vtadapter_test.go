package vtadapter

import (
	"bytes"
	"testing"
)

func TestOSCScannerTitleBEL(t *testing.T) {
	var s oscScanner
	var got []OSCMessage
	s.Feed([]byte("hello\x1b]0;my title\x07world"), func(m OSCMessage) {
		got = append(got, m)
	})
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(got), got)
	}
	if got[0].Group != "0" || got[0].Body != "my title" || got[0].Crop {
		t.Errorf("message = %+v", got[0])
	}
}

func TestOSCScannerTitleST(t *testing.T) {
	var s oscScanner
	var got []OSCMessage
	s.Feed([]byte("\x1b]2;another title\x1b\\"), func(m OSCMessage) {
		got = append(got, m)
	})
	if len(got) != 1 || got[0].Group != "2" || got[0].Body != "another title" {
		t.Fatalf("message = %+v", got)
	}
}

func TestOSCScannerSplitAcrossFeeds(t *testing.T) {
	var s oscScanner
	var got []OSCMessage
	onOSC := func(m OSCMessage) { got = append(got, m) }
	s.Feed([]byte("\x1b]1;par"), onOSC)
	s.Feed([]byte("tial\x07"), onOSC)
	if len(got) != 1 || got[0].Body != "partial" {
		t.Fatalf("message = %+v", got)
	}
}

func TestOSCScannerCropOnOverlength(t *testing.T) {
	var s oscScanner
	var got []OSCMessage
	body := bytes.Repeat([]byte("x"), 300)
	s.Feed(append([]byte("\x1b]0;"), body...), func(m OSCMessage) {
		got = append(got, m)
	})
	if len(got) != 1 || !got[0].Crop {
		t.Fatalf("message = %+v, want cropped", got)
	}
}

func TestEngineFeedSetsTitle(t *testing.T) {
	var buf bytes.Buffer
	e := New(24, 80, &buf, nil)
	var title string
	e.Title = func(s string) { title = s }
	e.Feed([]byte("\x1b]0;session\x07hi"))
	if title != "session" {
		t.Errorf("title = %q, want session", title)
	}
}

func TestEngineHardResetPreservesDimensions(t *testing.T) {
	var buf bytes.Buffer
	e := New(10, 40, &buf, nil)
	e.Resize(20, 100)
	e.HardReset()
	rows, cols := e.Dimensions()
	if rows != 20 || cols != 100 {
		t.Errorf("Dimensions() = %d,%d, want 20,100", rows, cols)
	}
}

func TestEnginePaletteOverride(t *testing.T) {
	var buf bytes.Buffer
	e := New(24, 80, &buf, nil)
	if err := e.SetPalette("srcery"); err != nil {
		t.Fatalf("SetPalette: %v", err)
	}
	if err := e.SetColor(3, [3]uint8{1, 2, 3}); err != nil {
		t.Fatalf("SetColor: %v", err)
	}
	if got := e.GetColor(3); got.R != 1 || got.G != 2 || got.B != 3 {
		t.Errorf("GetColor(3) = %+v", got)
	}
	if err := e.SetColor(99, [3]uint8{}); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestMouseMotionDropsRelative(t *testing.T) {
	var buf bytes.Buffer
	e := New(24, 80, &buf, nil)
	// Should not panic either way; relative events are simply no-ops.
	e.MouseMotion(1, 2, 0, true)
	e.MouseMotion(1, 2, 0, false)
}

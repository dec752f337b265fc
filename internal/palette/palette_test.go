package palette

import "testing"

func TestLoadAllBuiltins(t *testing.T) {
	for _, name := range Names {
		p, err := Load(name)
		if err != nil {
			t.Fatalf("Load(%q): %v", name, err)
		}
		if p.Name != name {
			t.Errorf("Load(%q).Name = %q", name, p.Name)
		}
	}
}

func TestLoadUnknown(t *testing.T) {
	if _, err := Load("does-not-exist"); err == nil {
		t.Error("expected error for unknown palette")
	}
}

func TestDefaultPaletteColors(t *testing.T) {
	p, err := Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Colors[1] != (RGB{R: 205, G: 0, B: 0}) {
		t.Errorf("Colors[1] = %+v, want red", p.Colors[1])
	}
	if p.Background != (RGB{0, 0, 0}) {
		t.Errorf("Background = %+v", p.Background)
	}
}

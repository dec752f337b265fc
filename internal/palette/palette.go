// Package palette holds the built-in terminal color palettes named in
// spec §4.A's "palette" key, embedded as YAML documents the same way the
// teacher repo serializes its role/config files.
package palette

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RGB is a single palette color.
type RGB struct {
	R, G, B uint8
}

// Palette is the full set of named VT colors a palette defines. Index
// colors 0-15 are the standard ANSI 16; Background/Foreground are the
// default pane colors.
type Palette struct {
	Name       string `yaml:"name"`
	Background RGB    `yaml:"-"`
	Foreground RGB    `yaml:"-"`
	Colors     [16]RGB `yaml:"-"`

	raw rawPalette
}

type rawPalette struct {
	Name       string   `yaml:"name"`
	Background []uint8  `yaml:"background"`
	Foreground []uint8  `yaml:"foreground"`
	Colors     [][]uint8 `yaml:"colors"`
}

//go:embed data/default.yaml
var defaultYAML []byte

//go:embed data/solarized.yaml
var solarizedYAML []byte

//go:embed data/solarized-black.yaml
var solarizedBlackYAML []byte

//go:embed data/solarized-white.yaml
var solarizedWhiteYAML []byte

//go:embed data/srcery.yaml
var srceryYAML []byte

var builtins = map[string][]byte{
	"default":          defaultYAML,
	"solarized":        solarizedYAML,
	"solarized-black":  solarizedBlackYAML,
	"solarized-white":  solarizedWhiteYAML,
	"srcery":           srceryYAML,
}

// Names lists the built-in palette names, in the order arcterm.c's help
// text documents them.
var Names = []string{"default", "solarized", "solarized-black", "solarized-white", "srcery"}

// Load parses a built-in palette by name.
func Load(name string) (Palette, error) {
	data, ok := builtins[name]
	if !ok {
		return Palette{}, fmt.Errorf("palette: unknown palette %q", name)
	}
	return parse(data)
}

func parse(data []byte) (Palette, error) {
	var raw rawPalette
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Palette{}, fmt.Errorf("palette: %w", err)
	}
	if len(raw.Colors) != 16 {
		return Palette{}, fmt.Errorf("palette %q: expected 16 colors, got %d", raw.Name, len(raw.Colors))
	}
	p := Palette{Name: raw.Name, raw: raw}
	p.Background = rgbFrom(raw.Background)
	p.Foreground = rgbFrom(raw.Foreground)
	for i, c := range raw.Colors {
		p.Colors[i] = rgbFrom(c)
	}
	return p, nil
}

func rgbFrom(v []uint8) RGB {
	if len(v) != 3 {
		return RGB{}
	}
	return RGB{R: v[0], G: v[1], B: v[2]}
}

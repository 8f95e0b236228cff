package codec

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPreset is returned by Lookup.
var ErrUnknownPreset = errors.New("unknown codec preset")

// NameAuto asks Select to pick the best working preset.
const NameAuto = "auto"

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadCustom reads user presets from a YAML file of the form
//
//	presets:
//	  - name: my_hevc
//	    encoder: libx265
//	    extension: .mkv
//	    args: [-c:v, libx265, -crf, "{crf}"]
//	    audio: opus
func LoadCustom(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range f.Presets {
		if err := f.Presets[i].validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if f.Presets[i].Encoder == "" && len(f.Presets[i].Args) >= 2 {
			f.Presets[i].Encoder = encoderFromArgs(f.Presets[i].Args)
		}
	}
	return f.Presets, nil
}

func encoderFromArgs(args []string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-c:v" || args[i] == "-vcodec" {
			return args[i+1]
		}
	}
	return ""
}

// Catalog is the ordered set of presets a user can choose from. Custom
// presets shadow built-ins of the same name.
type Catalog struct {
	presets []Preset
}

// NewCatalog returns the built-in presets followed by custom ones.
func NewCatalog(custom ...Preset) *Catalog {
	c := &Catalog{}
	for _, p := range Builtin() {
		if !slices.ContainsFunc(custom, func(q Preset) bool { return q.Name == p.Name }) {
			c.presets = append(c.presets, p)
		}
	}
	c.presets = append(c.presets, custom...)
	return c
}

// All returns a copy of the presets in order.
func (c *Catalog) All() []Preset {
	return slices.Clone(c.presets)
}

// Lookup finds a preset by name.
func (c *Catalog) Lookup(name string) (Preset, error) {
	for _, p := range c.presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

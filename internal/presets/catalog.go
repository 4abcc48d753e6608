// Package presets loads the catalog of named commands that clients can run
// by key instead of sending a full command.
package presets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/martijn/vmorch/internal/execution"
)

var ErrUnknownPreset = errors.New("unknown command preset")

// Preset is one named command.
type Preset struct {
	Type        string `yaml:"type" json:"type"`
	Cmd         string `yaml:"cmd" json:"cmd"`
	HostAlias   string `yaml:"host_alias,omitempty" json:"hostAlias,omitempty"`
	WorkingDir  string `yaml:"working_dir,omitempty" json:"workingDir,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Entry is a preset together with its key.
type Entry struct {
	Key string `json:"key"`
	Preset
}

// Catalog is the set of presets read from the presets file.
type Catalog struct {
	Commands map[string]Preset `yaml:"commands"`
}

// Load reads the catalog at path. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{Commands: map[string]Preset{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	if c.Commands == nil {
		c.Commands = map[string]Preset{}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	for key, p := range c.Commands {
		if strings.TrimSpace(p.Cmd) == "" {
			return fmt.Errorf("preset %q: cmd is required", key)
		}
		kind, err := execution.ParseKind(p.Type)
		if err != nil {
			return fmt.Errorf("preset %q: %w", key, err)
		}
		if kind == execution.KindSSH && p.HostAlias == "" {
			return fmt.Errorf("preset %q: ssh commands need host_alias", key)
		}
	}
	return nil
}

func (c *Catalog) Get(key string) (Preset, bool) {
	p, ok := c.Commands[key]
	return p, ok
}

// List returns all presets ordered by key.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.Commands))
	for key, p := range c.Commands {
		out = append(out, Entry{Key: key, Preset: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Catalog) Len() int {
	return len(c.Commands)
}

// Request builds the execution request of the preset named key.
func (c *Catalog) Request(key, targetRef string) (execution.Request, error) {
	p, ok := c.Get(key)
	if !ok {
		return execution.Request{}, fmt.Errorf("%w: %s", ErrUnknownPreset, key)
	}
	return execution.Request{
		Command:    p.Cmd,
		Kind:       execution.Kind(p.Type),
		WorkingDir: p.WorkingDir,
		HostAlias:  p.HostAlias,
		TargetRef:  targetRef,
	}, nil
}

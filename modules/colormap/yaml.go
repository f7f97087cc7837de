package colormap

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk layout of a color-map file.
type file struct {
	Maps []Map `yaml:"maps"`
}

// UnmarshalYAML decodes a stop written as [r, g, b] or [r, g, b, a].
func (s *Stop) UnmarshalYAML(value *yaml.Node) error {
	var comps []float64
	if err := value.Decode(&comps); err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidStop, value.Line, err)
	}
	if len(comps) != 3 && len(comps) != 4 {
		return fmt.Errorf("%w: line %d: want 3 or 4 components, got %d",
			ErrInvalidStop, value.Line, len(comps))
	}

	s.R, s.G, s.B = comps[0], comps[1], comps[2]
	s.A = nil
	if len(comps) == 4 {
		a := comps[3]
		s.A = &a
	}
	return nil
}

// MarshalYAML encodes a stop as a flow sequence.
func (s Stop) MarshalYAML() (interface{}, error) {
	comps := []float64{s.R, s.G, s.B}
	if s.A != nil {
		comps = append(comps, *s.A)
	}
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	if err := node.Encode(comps); err != nil {
		return nil, err
	}
	node.Style = yaml.FlowStyle
	return node, nil
}

// UnmarshalYAML decodes a named map.
func (m *Map) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name  string `yaml:"name"`
		Stops []Stop `yaml:"stops"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	m.Name = raw.Name
	m.Stops = raw.Stops
	return nil
}

// LoadYAML parses color maps from r and adds them to the registry.
// Maps already registered under the same name are rejected.
func (r *Registry) LoadYAML(src io.Reader) (int, error) {
	var f file
	dec := yaml.NewDecoder(src)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("colormap: failed to parse color maps: %w", err)
	}

	for i, m := range f.Maps {
		if err := r.Add(m); err != nil {
			return i, err
		}
	}
	return len(f.Maps), nil
}

// LoadFile reads a YAML color-map file into the registry.
func (r *Registry) LoadFile(path string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("colormap: failed to open color map file: %w", err)
	}
	defer fh.Close()

	return r.LoadYAML(fh)
}

package flowfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"gopkg.in/yaml.v3"
)

// Format is a flow file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

var (
	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported flow file format")

	// ErrInvalidFlow is wrapped by structural problems in a flow file.
	ErrInvalidFlow = errors.New("invalid flow file")

	// ErrDuplicateFlow is returned when two files declare the same flow id.
	ErrDuplicateFlow = errors.New("duplicate flow id")
)

// Flow is a decoded flow definition.
type Flow struct {
	ID    int64
	Name  string
	Nodes []flowstudio.Node
	Edges []flowstudio.Edge

	// Source is the file the flow was read from, if any.
	Source string
}

// Graph builds and validates the flow's graph.
func (f *Flow) Graph() (*flowstudio.Graph, error) {
	return flowstudio.Build(f.Nodes, f.Edges)
}

// FormatOf returns the format for a file name, based on its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadFile reads a flow file, choosing the format by extension.
func LoadFile(path string) (*Flow, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	f, err := parse(data, format, path)
	if err != nil {
		return nil, err
	}
	f.Source = path
	return f, nil
}

// Parse decodes a flow definition.
func Parse(data []byte, format Format) (*Flow, error) {
	return parse(data, format, "flow."+string(format))
}

func parse(data []byte, format Format, filename string) (*Flow, error) {
	var doc document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml %s: %w", filename, err)
		}
	case FormatJSON:
		if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json %s: %w", filename, err)
		}
	case FormatHCL:
		d, err := decodeHCL(data, filename)
		if err != nil {
			return nil, err
		}
		doc = *d
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc.flow()
}

// document is the format-neutral shape shared by every encoding.
type document struct {
	ID    int64     `json:"id" yaml:"id"`
	Name  string    `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes []nodeDoc `json:"nodes" yaml:"nodes"`
	Edges []edgeDoc `json:"edges" yaml:"edges"`
}

type nodeDoc struct {
	ID       int64               `json:"id" yaml:"id"`
	Name     string              `json:"name,omitempty" yaml:"name,omitempty"`
	Type     string              `json:"type" yaml:"type"`
	Optional bool                `json:"optional,omitempty" yaml:"optional,omitempty"`
	Position flowstudio.Position `json:"position" yaml:"position"`
	Config   map[string]any      `json:"config,omitempty" yaml:"config,omitempty"`
}

type edgeDoc struct {
	ID     int64     `json:"id,omitempty" yaml:"id,omitempty"`
	Source int64     `json:"source" yaml:"source"`
	Target int64     `json:"target" yaml:"target"`
	Branch branchTag `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// branchTag accepts any scalar so that unquoted true/false work as
// CONDITIONAL branch tags.
type branchTag string

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *branchTag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: branch must be a scalar at line %d", ErrInvalidFlow, value.Line)
	}
	*b = branchTag(value.Value)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *branchTag) UnmarshalJSON(data []byte) error {
	var v any
	if err := sonic.ConfigStd.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		*b = ""
	case string:
		*b = branchTag(v)
	case bool, float64:
		*b = branchTag(fmt.Sprint(v))
	default:
		return fmt.Errorf("%w: branch must be a scalar", ErrInvalidFlow)
	}
	return nil
}

func (d *document) flow() (*Flow, error) {
	var errs []error
	if d.ID <= 0 {
		errs = append(errs, fmt.Errorf("%w: flow id must be positive, got %d", ErrInvalidFlow, d.ID))
	}

	f := &Flow{ID: d.ID, Name: d.Name}
	for i, n := range d.Nodes {
		if n.ID <= 0 {
			errs = append(errs, fmt.Errorf("%w: node #%d: id must be positive", ErrInvalidFlow, i+1))
			continue
		}
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("%w: node %d: missing type", ErrInvalidFlow, n.ID))
			continue
		}
		t := flowstudio.NodeType(strings.ToUpper(n.Type))
		payload, err := decodeConfig(t, n.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", n.ID, err))
			continue
		}
		f.Nodes = append(f.Nodes, flowstudio.Node{
			ID:       n.ID,
			FlowID:   d.ID,
			Name:     n.Name,
			Type:     t,
			Position: n.Position,
			Optional: n.Optional,
			Payload:  payload,
		})
	}
	for _, e := range d.Edges {
		f.Edges = append(f.Edges, flowstudio.Edge{
			ID:       e.ID,
			SourceID: e.Source,
			TargetID: e.Target,
			Branch:   string(e.Branch),
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f, nil
}

// decodeConfig turns a generic config mapping into the typed payload by
// round-tripping through JSON.
func decodeConfig(t flowstudio.NodeType, cfg map[string]any) (flowstudio.Payload, error) {
	if len(cfg) == 0 {
		return flowstudio.DecodePayload(t, nil)
	}
	data, err := sonic.ConfigStd.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: encode config: %w", ErrInvalidFlow, err)
	}
	return flowstudio.DecodePayload(t, data)
}

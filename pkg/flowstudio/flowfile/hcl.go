package flowfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclFlowFile is the top-level structure of an HCL flow file.
type hclFlowFile struct {
	ID    int64      `hcl:"id"`
	Name  string     `hcl:"name,optional"`
	Nodes []*hclNode `hcl:"node,block"`
	Edges []*hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	Name     string    `hcl:"name,label"`
	ID       int64     `hcl:"id"`
	Type     string    `hcl:"type"`
	Optional bool      `hcl:"optional,optional"`
	X        float64   `hcl:"x,optional"`
	Y        float64   `hcl:"y,optional"`
	Config   cty.Value `hcl:"config,optional"`
}

type hclEdge struct {
	ID     int64  `hcl:"id,optional"`
	Source int64  `hcl:"source"`
	Target int64  `hcl:"target"`
	Branch string `hcl:"branch,optional"`
}

func decodeHCL(data []byte, filename string) (*document, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse hcl %s: %w", filename, diags)
	}

	var parsed hclFlowFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("decode hcl %s: %w", filename, diags)
	}

	doc := &document{ID: parsed.ID, Name: parsed.Name}
	for _, n := range parsed.Nodes {
		cfg, err := configMap(n.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: node %q: %w", ErrInvalidFlow, filename, n.Name, err)
		}
		doc.Nodes = append(doc.Nodes, nodeDoc{
			ID:       n.ID,
			Name:     n.Name,
			Type:     n.Type,
			Optional: n.Optional,
			Position: flowstudio.Position{X: n.X, Y: n.Y},
			Config:   cfg,
		})
	}
	for _, e := range parsed.Edges {
		doc.Edges = append(doc.Edges, edgeDoc{
			ID:     e.ID,
			Source: e.Source,
			Target: e.Target,
			Branch: branchTag(e.Branch),
		})
	}
	return doc, nil
}

// configMap converts a node's config object into plain Go values.
func configMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("config must be an object, got %s", v.Type().FriendlyName())
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	m, _ := native.(map[string]any)
	return m, nil
}

// ctyToNative recursively converts a cty.Value to its natural Go form.
// Numbers become float64, which JSON decoding narrows to the payload's
// field types.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

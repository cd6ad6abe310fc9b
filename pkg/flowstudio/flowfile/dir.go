package flowfile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
)

// Dir loads flows from the flow files below a directory. Files are read on
// every call, so edits are picked up without a restart. Files with other
// extensions are ignored.
type Dir struct {
	root string
}

var _ flowstudio.GraphLoader = (*Dir)(nil)

// NewDir returns a loader rooted at path.
func NewDir(path string) *Dir {
	return &Dir{root: path}
}

// LoadGraph implements flowstudio.GraphLoader.
func (d *Dir) LoadGraph(ctx context.Context, flowID int64) ([]flowstudio.Node, []flowstudio.Edge, error) {
	flows, err := d.Flows(ctx)
	if err != nil {
		return nil, nil, err
	}
	i, found := slices.BinarySearchFunc(flows, flowID, func(f *Flow, id int64) int {
		return cmp.Compare(f.ID, id)
	})
	if !found {
		return nil, nil, fmt.Errorf("%w: %d", flowstudio.ErrFlowNotFound, flowID)
	}
	return flows[i].Nodes, flows[i].Edges, nil
}

// Flows reads every flow file, sorted by flow id. Two files declaring the
// same id are an error.
func (d *Dir) Flows(ctx context.Context) ([]*Flow, error) {
	var flows []*Flow
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if _, err := FormatOf(path); errors.Is(err, ErrUnsupportedFormat) {
			return nil
		}
		f, err := LoadFile(path)
		if err != nil {
			return err
		}
		flows = append(flows, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load flows from %s: %w", d.root, err)
	}

	slices.SortFunc(flows, func(a, b *Flow) int {
		return cmp.Compare(a.ID, b.ID)
	})
	for i := 1; i < len(flows); i++ {
		if flows[i].ID == flows[i-1].ID {
			return nil, fmt.Errorf("%w: %d in %s and %s", ErrDuplicateFlow, flows[i].ID, flows[i-1].Source, flows[i].Source)
		}
	}
	return flows, nil
}
